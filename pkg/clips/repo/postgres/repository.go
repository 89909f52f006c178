package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements clips.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the clips and users tables if they are missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, clips.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", operation, clips.ErrConflict)
		case "23502": // not_null_violation
			return clips.NewValidationError(pgErr.ColumnName, fmt.Sprintf("required field %s is missing", pgErr.ColumnName))
		case "42P01": // undefined_table
			return fmt.Errorf("%w: table does not exist - database migration required", clips.ErrConfiguration)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return clips.ClassifyBackendError("postgres", "database", operation, err)
}

const clipColumns = `id, owner_id, title, genre, status, video_object_name, thumbnail_object_name,
	views, likes, created_at, updated_at, version`

// Clip operations

func (r *Repository) CreateClip(ctx context.Context, clip *clips.Clip) error {
	query := `
		INSERT INTO clips (` + clipColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		clip.ID, clip.OwnerID, clip.Title, clip.Genre, string(clip.Status),
		clip.VideoObjectName, clip.ThumbnailObjectName,
		clip.Views, likesOrEmpty(clip.Likes), clip.CreatedAt, clip.UpdatedAt, clip.Version,
	)
	if err != nil {
		return r.clipError("create", clip.ID, clip.OwnerID, err)
	}
	return nil
}

func (r *Repository) GetClip(ctx context.Context, id, ownerID string) (*clips.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE owner_id = $1 AND id = $2`

	clip, err := scanClip(r.db.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		return nil, r.clipError("get", id, ownerID, err)
	}
	return clip, nil
}

func (r *Repository) ReplaceClip(ctx context.Context, clip *clips.Clip, expectedVersion int64) error {
	query := `
		UPDATE clips SET
			title = $3, genre = $4, status = $5, video_object_name = $6,
			thumbnail_object_name = $7, views = $8, likes = $9, updated_at = $10,
			version = version + 1
		WHERE owner_id = $1 AND id = $2 AND version = $11`

	tag, err := r.db.Exec(ctx, query,
		clip.OwnerID, clip.ID, clip.Title, clip.Genre, string(clip.Status),
		clip.VideoObjectName, clip.ThumbnailObjectName, clip.Views, likesOrEmpty(clip.Likes),
		clip.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return r.clipError("replace", clip.ID, clip.OwnerID, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clips WHERE owner_id = $1 AND id = $2)`,
			clip.OwnerID, clip.ID).Scan(&exists)
		if err != nil {
			return r.clipError("replace", clip.ID, clip.OwnerID, err)
		}
		if !exists {
			return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrNotFound}
		}
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrConflict}
	}

	clip.Version = expectedVersion + 1
	return nil
}

func (r *Repository) DeleteClip(ctx context.Context, id, ownerID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clips WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return r.clipError("delete", id, ownerID, err)
	}
	if tag.RowsAffected() == 0 {
		return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: clips.ErrNotFound}
	}
	return nil
}

func (r *Repository) ScanClips(ctx context.Context, filter clips.ClipFilter) ([]*clips.Clip, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + clipColumns + ` FROM clips`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("scan clips", err)
	}
	defer rows.Close()

	result := make([]*clips.Clip, 0)
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan clips", err)
		}
		result = append(result, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("scan clips", err)
	}
	return result, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *clips.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, created_at, last_login_at, version)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.CreatedAt, user.LastLoginAt, user.Version,
	)
	if err != nil {
		return r.handlePostgresError("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*clips.User, error) {
	var user clips.User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, created_at, last_login_at, version
		FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Username, &user.CreatedAt, &user.LastLoginAt, &user.Version)
	if err != nil {
		return nil, r.handlePostgresError("get user", err)
	}
	return &user, nil
}

func (r *Repository) ReplaceUser(ctx context.Context, user *clips.User, expectedVersion int64) error {
	var version int64
	err := r.db.QueryRow(ctx, `
		UPDATE users SET username = $2, last_login_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
		RETURNING version`,
		user.ID, user.Username, user.LastLoginAt, expectedVersion,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetUser(ctx, user.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("replace user: %w", clips.ErrConflict)
	}
	if err != nil {
		return r.handlePostgresError("replace user", err)
	}

	user.Version = version
	return nil
}

func (r *Repository) clipError(op, id, ownerID string, err error) error {
	return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: op, Err: r.handlePostgresError(op+" clip", err)}
}

func scanClip(row pgx.Row) (*clips.Clip, error) {
	var (
		clip   clips.Clip
		status string
	)
	err := row.Scan(
		&clip.ID, &clip.OwnerID, &clip.Title, &clip.Genre, &status,
		&clip.VideoObjectName, &clip.ThumbnailObjectName,
		&clip.Views, &clip.Likes, &clip.CreatedAt, &clip.UpdatedAt, &clip.Version,
	)
	if err != nil {
		return nil, err
	}
	clip.Status = clips.ClipStatus(status)
	clip.Likes = likesOrEmpty(clip.Likes)
	clip.CreatedAt = clip.CreatedAt.UTC()
	clip.UpdatedAt = clip.UpdatedAt.UTC()
	return &clip, nil
}

func likesOrEmpty(likes []string) []string {
	if likes == nil {
		return []string{}
	}
	return likes
}
