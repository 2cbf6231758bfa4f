package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blyssuz/booking-flow/internal/selection"
)

// SelectionStore persists selections as JSON records with a Redis TTL.
// The record's own timestamp is checked on load as well, so a key written
// with a longer TTL by an older deployment still expires on time.
type SelectionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ selection.Persister = (*SelectionStore)(nil)

func NewSelectionStore(client *redis.Client, ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = selection.DefaultTTL
	}
	return &SelectionStore{client: client, ttl: ttl, now: time.Now}
}

func (s *SelectionStore) Save(ctx context.Context, scope selection.Scope, sel selection.Selection) error {
	data, err := json.Marshal(selection.NewRecord(sel, s.now()))
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	if err := s.client.Set(ctx, scope.Key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (s *SelectionStore) Load(ctx context.Context, scope selection.Scope) (*selection.Selection, error) {
	data, err := s.client.Get(ctx, scope.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}

	var rec selection.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// unreadable record, start over
		_ = s.client.Del(ctx, scope.Key()).Err()
		return nil, nil
	}
	if rec.Expired(s.now(), s.ttl) {
		_ = s.client.Del(ctx, scope.Key()).Err()
		return nil, nil
	}

	sel := rec.Selection()
	return &sel, nil
}

func (s *SelectionStore) Clear(ctx context.Context, scope selection.Scope) error {
	if err := s.client.Del(ctx, scope.Key()).Err(); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
