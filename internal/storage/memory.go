package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// memoryChunk is the granularity of progress updates from MemoryObjects
const memoryChunk = 32 * 1024

// MemoryObjects keeps objects in process. It backs offline mode and tests.
type MemoryObjects struct {
	bucket string

	mu      sync.RWMutex
	objects map[string][]byte
	tokens  map[string]string
}

// Ensure MemoryObjects implements Objects interface
var _ Objects = (*MemoryObjects)(nil)

// NewMemoryObjects creates an empty MemoryObjects for the named bucket
func NewMemoryObjects(bucket string) *MemoryObjects {
	return &MemoryObjects{
		bucket:  bucket,
		objects: make(map[string][]byte),
		tokens:  make(map[string]string),
	}
}

// Upload implements Objects
func (m *MemoryObjects) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, progress chan<- Progress) (string, error) {
	if progress != nil {
		defer close(progress)
	}

	var data []byte
	buf := make([]byte, memoryChunk)
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
		}
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if n > 0 {
			sendProgress(progress, Progress{BytesTransferred: int64(len(data)), TotalBytes: size})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
		}
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.objects[objectPath] = data
	m.tokens[objectPath] = token
	m.mu.Unlock()

	return downloadURL(DownloadBaseURL, m.bucket, objectPath, token), nil
}

// URL implements Objects
func (m *MemoryObjects) URL(ctx context.Context, objectPath string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[objectPath]
	if !ok {
		return "", fmt.Errorf("failed to get URL for %s: %w", objectPath, ErrNotFound)
	}
	return downloadURL(DownloadBaseURL, m.bucket, objectPath, token), nil
}

// Delete implements Objects
func (m *MemoryObjects) Delete(ctx context.Context, objectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectPath]; !ok {
		return fmt.Errorf("failed to delete %s: %w", objectPath, ErrNotFound)
	}
	delete(m.objects, objectPath)
	delete(m.tokens, objectPath)
	return nil
}

// Object returns the stored bytes of objectPath
func (m *MemoryObjects) Object(objectPath string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectPath]
	return data, ok
}
