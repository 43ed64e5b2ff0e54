// Package kvstore is the persisted key-value store the SDK keeps identity and
// cached profile state in. Backends only move bytes; Store layers the typed
// string/long/blob contract on top so every backend behaves identically.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"paykit/pkg/platform/sentinel"
)

// Well-known keys.
const (
	KeyDeviceID        = "device_id"
	KeyProfileID       = "profile_id"
	KeyProfile         = "profile"
	KeyProfileSyncedAt = "profile_last_sync_at"
)

// Backend is a raw byte store. Get returns sentinel.ErrNotFound for missing keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutMany applies all items or none.
	PutMany(ctx context.Context, items map[string][]byte) error
	Clear(ctx context.Context) error
	Close() error
}

// Store provides typed access over a Backend. Missing keys are reported with
// found == false and a nil error.
type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.backend.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return b, true, nil
}

func (s *Store) put(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	b, found, err := s.get(ctx, key)
	return string(b), found, err
}

func (s *Store) SaveString(ctx context.Context, key, value string) error {
	return s.put(ctx, key, []byte(value))
}

func (s *Store) GetLong(ctx context.Context, key string) (int64, bool, error) {
	b, found, err := s.get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode long %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) SaveLong(ctx context.Context, key string, value int64) error {
	return s.put(ctx, key, []byte(strconv.FormatInt(value, 10)))
}

func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(ctx, key)
}

func (s *Store) SaveBytes(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, value)
}

// Batch collects writes that Commit applies atomically.
type Batch struct {
	items map[string][]byte
	err   error
}

func NewBatch() *Batch {
	return &Batch{items: make(map[string][]byte)}
}

func (b *Batch) String(key, value string) *Batch {
	b.items[key] = []byte(value)
	return b
}

func (b *Batch) Long(key string, value int64) *Batch {
	b.items[key] = []byte(strconv.FormatInt(value, 10))
	return b
}

// Data adds v as a JSON blob. An encoding error surfaces from Commit.
func (b *Batch) Data(key string, v any) *Batch {
	raw, err := json.Marshal(v)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("encode %s: %w", key, err))
		return b
	}
	b.items[key] = raw
	return b
}

// Commit writes every key in b, or none of them.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return b.err
	}
	if len(b.items) == 0 {
		return nil
	}
	if err := s.backend.PutMany(ctx, b.items); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Clear removes every key in this store's namespace.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// BlobStore is the subset of Store used for structured blobs.
type BlobStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SaveBytes(ctx context.Context, key string, value []byte) error
}

// GetData decodes the JSON blob stored under key into T.
func GetData[T any](ctx context.Context, s BlobStore, key string) (T, bool, error) {
	var v T
	b, found, err := s.GetBytes(ctx, key)
	if err != nil || !found {
		return v, found, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// SaveData stores v under key as a JSON blob.
func SaveData(ctx context.Context, s BlobStore, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SaveBytes(ctx, key, b)
}
