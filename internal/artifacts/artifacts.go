// Package artifacts stores evidence file bodies outside the entity store.
package artifacts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound = errors.New("artifact not found")
	ErrEmpty    = errors.New("artifact is empty")
)

// Object describes a stored file.
type Object struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
}

// HumanSize renders Size the way evidence records show file sizes.
func (o Object) HumanSize() string {
	return HumanSize(o.Size)
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Ping(ctx context.Context) error
}

// Digest is the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func HumanSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.Bytes(uint64(size))
}

// ObjectKey places an upload under its evidence ID, keeping only the base
// name of the client-supplied file name.
func ObjectKey(evidenceID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("evidence/%s/%s", evidenceID, name)
}

func describe(key string, data []byte, contentType string) (Object, error) {
	if len(data) == 0 {
		return Object{}, ErrEmpty
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Digest:      Digest(data),
	}, nil
}

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	meta Object
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (Object, error) {
	meta, err := describe(key, data, contentType)
	if err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{meta: meta, data: append([]byte(nil), data...)}
	return meta, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(obj.data))), obj.meta, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
