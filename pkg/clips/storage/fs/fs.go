package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
)

// Config options for the filesystem backend
type Config struct {
	BaseDir   string            // Base directory; the container is a subdirectory of it
	Container string            // Container name bound into grants
	BaseURL   string            // scheme://host the presigned handlers are reachable on
	Signer    *presigned.Signer // signs grant URLs; grants fail without one
}

// Backend is a filesystem implementation of the clips.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	root      string
	container string
	baseURL   string
	signer    *presigned.Signer
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", clips.ErrConfiguration)
	}
	if config.Container == "" {
		return nil, fmt.Errorf("%w: container name is required", clips.ErrConfiguration)
	}

	return &Backend{
		root:      filepath.Join(config.BaseDir, config.Container),
		container: config.Container,
		baseURL:   config.BaseURL,
		signer:    config.Signer,
	}, nil
}

// EnsureContainer creates the container directory if it doesn't exist
func (b *Backend) EnsureContainer(ctx context.Context) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return fmt.Errorf("failed to create container directory: %w", err)
	}
	return nil
}

// IssueGrant returns an HMAC-signed URL served by presigned.Handlers
func (b *Backend) IssueGrant(ctx context.Context, objectName string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	if b.signer == nil {
		return nil, fmt.Errorf("%w: no signer configured for filesystem storage", clips.ErrConfiguration)
	}
	return b.signer.Grant(b.baseURL, b.container, objectName, perm, ttl)
}

// Put writes the object through a temporary file so readers never see partial content
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader, contentType string) error {
	filePath, err := b.path(objectName)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

// Get opens the object file
func (b *Backend) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	filePath, err := b.path(objectName)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(objectName, "get")
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Stat retrieves metadata for an object in the filesystem
func (b *Backend) Stat(ctx context.Context, objectName string) (*clips.ObjectInfo, error) {
	filePath, err := b.path(objectName)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(objectName, "stat")
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &clips.ObjectInfo{
		Name:         objectName,
		Size:         info.Size(),
		ContentType:  detectContentType(filePath),
		LastModified: info.ModTime().UTC(),
	}, nil
}

// DeleteIfExists removes the file and any directories it leaves empty
func (b *Backend) DeleteIfExists(ctx context.Context, objectName string) (bool, error) {
	filePath, err := b.path(objectName)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return true, nil
}

// List walks the container and returns objects whose names start with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]clips.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []clips.ObjectInfo
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, clips.ObjectInfo{
			Name:         name,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// path maps an object name to a file path inside the container
func (b *Backend) path(objectName string) (string, error) {
	local := filepath.FromSlash(objectName)
	if objectName == "" || !filepath.IsLocal(local) {
		return "", clips.NewValidationError("objectName", "object name escapes the container: "+objectName)
	}
	return filepath.Join(b.root, local), nil
}

// cleanupEmptyDirectories removes empty directories up to the container root
func (b *Backend) cleanupEmptyDirectories(dir string) {
	for dir != b.root && strings.HasPrefix(dir, b.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func detectContentType(filePath string) string {
	file, err := os.Open(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return "application/octet-stream"
	}
	return http.DetectContentType(buffer[:n])
}

func notFound(objectName, op string) error {
	return &clips.StorageError{Backend: "fs", Name: objectName, Op: op, Err: clips.ErrNotFound}
}
