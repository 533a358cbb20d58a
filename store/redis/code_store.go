// Package redis stores one-time codes in Redis so that several server
// instances can verify codes issued by each other.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/store"
	backend "github.com/redis/go-redis/v9"
)

// CodeStore implements store.CodeStore with one key per (user, code) whose
// Redis TTL mirrors the code's expiry.
type CodeStore struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

var _ store.CodeStore = (*CodeStore)(nil)

type Option func(*CodeStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *CodeStore) {
		s.prefix = prefix
	}
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *CodeStore {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *CodeStore {
	s := &CodeStore{
		client: client,
		prefix: "blaze:otp:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CodeStore) key(code, userID string) string {
	return s.prefix + userID + ":" + code
}

// Ping checks connectivity.
func (s *CodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CodeStore) CreateCode(ctx context.Context, code models.OneTimeCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	ttl := code.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("code already expired at %s", code.ExpiresAt)
	}

	data, err := json.Marshal(record{Code: code.Code, OneTimeCode: code})
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}
	if err := s.client.Set(ctx, s.key(code.Code, code.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save code to redis: %w", err)
	}
	return nil
}

func (s *CodeStore) FindUnverifiedCode(ctx context.Context, code, userID string) (models.OneTimeCode, error) {
	rec, err := s.load(ctx, s.key(code, userID))
	if err != nil {
		return models.OneTimeCode{}, err
	}
	if rec.OneTimeCode.Verified {
		return models.OneTimeCode{}, store.ErrNotFound
	}
	return rec.toModel(), nil
}

// MarkCodeVerified rewrites the record with verified set, keeping its remaining TTL.
func (s *CodeStore) MarkCodeVerified(ctx context.Context, code, userID string) error {
	key := s.key(code, userID)
	rec, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if rec.OneTimeCode.Verified {
		return store.ErrNotFound
	}
	rec.OneTimeCode.Verified = true

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}
	if err := s.client.SetArgs(ctx, key, data, backend.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if errors.Is(err, backend.Nil) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to update code in redis: %w", err)
	}
	return nil
}

func (s *CodeStore) load(ctx context.Context, key string) (record, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return record{}, store.ErrNotFound
		}
		return record{}, fmt.Errorf("failed to get code from redis: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return record{}, fmt.Errorf("failed to unmarshal code: %w", err)
	}
	return rec, nil
}

// Close closes the redis client.
func (s *CodeStore) Close() error {
	return s.client.Close()
}

// record keeps the code itself, which models.OneTimeCode hides from JSON.
type record struct {
	Code string `json:"code"`
	models.OneTimeCode
}

func (r record) toModel() models.OneTimeCode {
	out := r.OneTimeCode
	out.Code = r.Code
	return out
}
