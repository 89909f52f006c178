package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
)

// Config options for the in-memory backend
type Config struct {
	Container string            // logical container name bound into grants
	BaseURL   string            // scheme://host the presigned handlers are reachable on
	Signer    *presigned.Signer // signs grant URLs; grants fail without one
	Clock     func() time.Time  // optional, defaults to time.Now
}

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Backend is an in-memory implementation of the clips.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	objects   map[string]object
	container string
	baseURL   string
	signer    *presigned.Signer
	now       func() time.Time
}

// New creates a new in-memory storage backend
func New(config Config) *Backend {
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &Backend{
		objects:   make(map[string]object),
		container: config.Container,
		baseURL:   config.BaseURL,
		signer:    config.Signer,
		now:       now,
	}
}

// EnsureContainer only validates configuration; memory has nothing to create
func (b *Backend) EnsureContainer(ctx context.Context) error {
	if b.container == "" {
		return fmt.Errorf("%w: container name is not set", clips.ErrConfiguration)
	}
	return nil
}

// IssueGrant returns an HMAC-signed URL served by presigned.Handlers
func (b *Backend) IssueGrant(ctx context.Context, objectName string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	if b.signer == nil {
		return nil, fmt.Errorf("%w: no signer configured for memory storage", clips.ErrConfiguration)
	}
	return b.signer.Grant(b.baseURL, b.container, objectName, perm, ttl)
}

// Put stores content directly
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectName] = object{data: data, contentType: contentType, lastModified: b.now().UTC()}
	return nil
}

// Get returns a reader over a copy of the stored bytes
func (b *Backend) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectName]
	if !exists {
		return nil, notFound(objectName, "get")
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Stat retrieves metadata for an object in memory
func (b *Backend) Stat(ctx context.Context, objectName string) (*clips.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectName]
	if !exists {
		return nil, notFound(objectName, "stat")
	}
	return &clips.ObjectInfo{
		Name:         objectName,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// DeleteIfExists removes an object if present
func (b *Backend) DeleteIfExists(ctx context.Context, objectName string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.objects[objectName]
	delete(b.objects, objectName)
	return exists, nil
}

// List returns objects under prefix sorted by name
func (b *Backend) List(ctx context.Context, prefix string) ([]clips.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []clips.ObjectInfo
	for name, obj := range b.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		infos = append(infos, clips.ObjectInfo{
			Name:         name,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.lastModified,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func notFound(objectName, op string) error {
	return &clips.StorageError{Backend: "memory", Name: objectName, Op: op, Err: clips.ErrNotFound}
}
