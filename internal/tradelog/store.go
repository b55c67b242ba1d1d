// internal/tradelog/store.go
package tradelog

import (
	"context"
	"sort"
	"sync"
)

// Query selects trades. Zero fields match everything. A post id alone does
// not identify a pool; use Pool for per-pool lookups.
type Query struct {
	Pool   string
	PostID *uint64
	Holder string
	Type   TradeType
}

func (q Query) matches(t Trade) bool {
	if q.Pool != "" && t.Pool != q.Pool {
		return false
	}
	if q.PostID != nil && t.PostID != *q.PostID {
		return false
	}
	if q.Holder != "" && t.Holder != q.Holder {
		return false
	}
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	return true
}

// Store persists trades. Find returns matches oldest first.
type Store interface {
	Append(ctx context.Context, t Trade) error
	Find(ctx context.Context, q Query) ([]Trade, error)
	Close() error
}

// MemoryStore keeps trades in process.
type MemoryStore struct {
	mu     sync.RWMutex
	trades []Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, t Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, q Query) ([]Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Trade
	for _, t := range s.trades {
		if q.matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// OrderHistory returns a holder's trades in one pool, newest first.
func OrderHistory(ctx context.Context, store Store, pool, holder string, typ TradeType) ([]Trade, error) {
	trades, err := store.Find(ctx, Query{Pool: pool, Holder: holder, Type: typ})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}
