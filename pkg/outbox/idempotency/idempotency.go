package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/pkg/redis"
)

// Manager remembers which outbox rows a worker already handed off, using Redis
// SETNX with a TTL. Keys follow `tp:idempotency:evt:<worker>:<outbox_id>`.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard that keeps markers for ttl.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when the id was already marked by worker and
// otherwise marks it.
func (m *Manager) CheckAndMark(ctx context.Context, worker string, id uuid.UUID) (bool, error) {
	key, err := m.key(worker, id)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops the marker so the id can be handled again.
func (m *Manager) Release(ctx context.Context, worker string, id uuid.UUID) error {
	key, err := m.key(worker, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(worker string, id uuid.UUID) (string, error) {
	if worker == "" {
		return "", errors.New("worker name is required")
	}
	if id == uuid.Nil {
		return "", errors.New("id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", worker), id.String()), nil
}
