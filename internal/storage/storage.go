// Package storage keeps message attachments. Paths handed back by Put are
// what the message row stores in FilePath.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore is the attachment collaborator.
type FileStore interface {
	Put(ctx context.Context, chatID uuid.UUID, filename, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, filePath string) error
	URL(ctx context.Context, filePath string, ttl time.Duration) (string, error)
}

// ObjectKey lays attachments out per chat with a random directory so two
// uploads of "photo.jpg" never collide.
func ObjectKey(chatID uuid.UUID, filename string) string {
	return path.Join("chats", chatID.String(), uuid.NewString(), path.Base(filename))
}

// MemoryStore keeps objects in memory. Used when S3 is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, chatID uuid.UUID, filename, _ string, body io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	key := ObjectKey(chatID, filename)
	s.mu.Lock()
	s.objects[key] = buf.Bytes()
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStore) Delete(_ context.Context, filePath string) error {
	s.mu.Lock()
	delete(s.objects, filePath)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) URL(_ context.Context, filePath string, _ time.Duration) (string, error) {
	if !s.Exists(filePath) {
		return "", fmt.Errorf("object %q not found", filePath)
	}
	return "memory://" + filePath, nil
}

func (s *MemoryStore) Exists(filePath string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[filePath]
	return ok
}
