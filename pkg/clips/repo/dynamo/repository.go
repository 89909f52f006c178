package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

// API is the subset of the DynamoDB client the repository uses
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// clipItem is one item in the clips table; userId is the partition key and id the sort key
type clipItem struct {
	UserID              string    `dynamodbav:"userId"`
	ID                  string    `dynamodbav:"id"`
	Title               string    `dynamodbav:"title"`
	Genre               string    `dynamodbav:"genre"`
	Status              string    `dynamodbav:"status"`
	VideoObjectName     string    `dynamodbav:"videoObjectName"`
	ThumbnailObjectName *string   `dynamodbav:"thumbnailObjectName,omitempty"`
	Views               int64     `dynamodbav:"views"`
	Likes               []string  `dynamodbav:"likes"`
	CreatedAt           time.Time `dynamodbav:"createdAt"`
	UpdatedAt           time.Time `dynamodbav:"updatedAt"`
	Version             int64     `dynamodbav:"version"`
}

// userItem is one item in the users table keyed by id
type userItem struct {
	ID          string    `dynamodbav:"id"`
	Username    string    `dynamodbav:"username"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
	LastLoginAt time.Time `dynamodbav:"lastLoginAt"`
	Version     int64     `dynamodbav:"version"`
}

// Repository implements clips.Repository on two DynamoDB tables
type Repository struct {
	client     API
	clipsTable string
	usersTable string
}

// New creates a DynamoDB repository
func New(client API, clipsTable, usersTable string) *Repository {
	return &Repository{
		client:     client,
		clipsTable: clipsTable,
		usersTable: usersTable,
	}
}

// EnsureTables creates both tables with on-demand billing when they are missing
func (r *Repository) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name string
		keys []types.KeySchemaElement
		defs []types.AttributeDefinition
	}{
		{
			name: r.clipsTable,
			keys: []types.KeySchemaElement{
				{AttributeName: aws.String("userId"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeRange},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: aws.String("userId"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
		{
			name: r.usersTable,
			keys: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
	}

	for _, t := range tables {
		_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return r.handleError("describe table", t.name, err)
		}

		_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(t.name),
			KeySchema:            t.keys,
			AttributeDefinitions: t.defs,
			BillingMode:          types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return r.handleError("create table", t.name, err)
		}
	}
	return nil
}

// Clip operations

func (r *Repository) CreateClip(ctx context.Context, clip *clips.Clip) error {
	item, err := attributevalue.MarshalMap(toClipItem(clip))
	if err != nil {
		return fmt.Errorf("failed to marshal clip: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.clipsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "create", Err: clips.ErrConflict}
		}
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "create", Err: r.handleError("put item", r.clipsTable, err)}
	}
	return nil
}

func (r *Repository) GetClip(ctx context.Context, id, ownerID string) (*clips.Clip, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.clipsTable),
		Key:            clipKey(id, ownerID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "get", Err: r.handleError("get item", r.clipsTable, err)}
	}
	if len(out.Item) == 0 {
		return nil, &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "get", Err: clips.ErrNotFound}
	}
	return unmarshalClip(out.Item)
}

func (r *Repository) ReplaceClip(ctx context.Context, clip *clips.Clip, expectedVersion int64) error {
	next := toClipItem(clip)
	next.Version = expectedVersion + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("failed to marshal clip: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.clipsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrNotFound}
			}
			return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrConflict}
		}
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: r.handleError("put item", r.clipsTable, err)}
	}

	clip.Version = next.Version
	return nil
}

func (r *Repository) DeleteClip(ctx context.Context, id, ownerID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.clipsTable),
		Key:                 clipKey(id, ownerID),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: clips.ErrNotFound}
		}
		return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: r.handleError("delete item", r.clipsTable, err)}
	}
	return nil
}

// ScanClips queries one partition when an owner is given, otherwise scans the table.
// Status and time filters are applied to the returned items.
func (r *Repository) ScanClips(ctx context.Context, filter clips.ClipFilter) ([]*clips.Clip, error) {
	var pages []map[string]types.AttributeValue

	if filter.OwnerID != "" {
		paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:              aws.String(r.clipsTable),
			KeyConditionExpression: aws.String("userId = :owner"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":owner": &types.AttributeValueMemberS{Value: filter.OwnerID},
			},
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, r.handleError("query", r.clipsTable, err)
			}
			pages = append(pages, page.Items...)
		}
	} else {
		paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
			TableName: aws.String(r.clipsTable),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, r.handleError("scan", r.clipsTable, err)
			}
			pages = append(pages, page.Items...)
		}
	}

	result := make([]*clips.Clip, 0, len(pages))
	for _, raw := range pages {
		clip, err := unmarshalClip(raw)
		if err != nil {
			return nil, err
		}
		if filter.Matches(clip) {
			result = append(result, clip)
		}
	}
	return result, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *clips.User) error {
	item, err := attributevalue.MarshalMap(userItem(*user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.usersTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("create user %s: %w", user.ID, clips.ErrConflict)
		}
		return r.handleError("put item", r.usersTable, err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*clips.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.usersTable),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, r.handleError("get item", r.usersTable, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("user %s: %w", id, clips.ErrNotFound)
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	user := clips.User(item)
	return &user, nil
}

func (r *Repository) ReplaceUser(ctx context.Context, user *clips.User, expectedVersion int64) error {
	next := userItem(*user)
	next.Version = expectedVersion + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.usersTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return fmt.Errorf("user %s: %w", user.ID, clips.ErrNotFound)
			}
			return fmt.Errorf("user %s: %w", user.ID, clips.ErrConflict)
		}
		return r.handleError("put item", r.usersTable, err)
	}

	user.Version = next.Version
	return nil
}

func (r *Repository) handleError(op, table string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: dynamodb table %s does not exist", clips.ErrConfiguration, table)
	}
	return clips.ClassifyBackendError("dynamodb", table, op, err)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func clipKey(id, ownerID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: ownerID},
		"id":     &types.AttributeValueMemberS{Value: id},
	}
}

func toClipItem(clip *clips.Clip) clipItem {
	likes := clip.Likes
	if likes == nil {
		likes = []string{}
	}
	return clipItem{
		UserID:              clip.OwnerID,
		ID:                  clip.ID,
		Title:               clip.Title,
		Genre:               clip.Genre,
		Status:              string(clip.Status),
		VideoObjectName:     clip.VideoObjectName,
		ThumbnailObjectName: clip.ThumbnailObjectName,
		Views:               clip.Views,
		Likes:               likes,
		CreatedAt:           clip.CreatedAt,
		UpdatedAt:           clip.UpdatedAt,
		Version:             clip.Version,
	}
}

func unmarshalClip(raw map[string]types.AttributeValue) (*clips.Clip, error) {
	var item clipItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clip: %w", err)
	}
	likes := item.Likes
	if likes == nil {
		likes = []string{}
	}
	return &clips.Clip{
		ID:                  item.ID,
		OwnerID:             item.UserID,
		Title:               item.Title,
		Genre:               item.Genre,
		Status:              clips.ClipStatus(item.Status),
		VideoObjectName:     item.VideoObjectName,
		ThumbnailObjectName: item.ThumbnailObjectName,
		Views:               item.Views,
		Likes:               likes,
		CreatedAt:           item.CreatedAt.UTC(),
		UpdatedAt:           item.UpdatedAt.UTC(),
		Version:             item.Version,
	}, nil
}
