// Package cartstore implements cart.Store over Redis, Postgres and process memory.
package cartstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

type memoryCart struct {
	snap  cart.Snapshot
	keys  []string
	items map[string]cart.LineItem
}

// MemoryStore keeps carts in process memory. Used for local development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	active map[string]string
	carts  map[string]*memoryCart
	now    func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active: make(map[string]string),
		carts:  make(map[string]*memoryCart),
		now:    time.Now,
	}
}

// GetActiveCart implements cart.Store.
func (m *MemoryStore) GetActiveCart(_ context.Context, userID string) (cart.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[userID]
	if !ok {
		return cart.Snapshot{}, common.ErrNotFound
	}
	return m.carts[id].snap, nil
}

// CreateCart implements cart.Store.
func (m *MemoryStore) CreateCart(_ context.Context, userID string) (cart.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[userID]; ok {
		return m.carts[id].snap, nil
	}
	snap := cart.Snapshot{ID: uuid.NewString(), UserID: userID, CreatedAt: m.now().UTC()}
	m.carts[snap.ID] = &memoryCart{snap: snap, items: make(map[string]cart.LineItem)}
	m.active[userID] = snap.ID
	return snap, nil
}

// ListItems implements cart.Store. Items come back in first-insert order.
func (m *MemoryStore) ListItems(_ context.Context, cartID string) ([]cart.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := make([]cart.LineItem, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.items[k])
	}
	return out, nil
}

// UpsertItems implements cart.Store.
func (m *MemoryStore) UpsertItems(_ context.Context, cartID string, items []cart.LineItem) error {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return common.ErrNotFound
	}
	for _, it := range items {
		key := it.Key()
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if _, exists := c.items[key]; !exists {
			c.keys = append(c.keys, key)
		}
		c.items[key] = it
	}
	return nil
}

// DeleteItems implements cart.Store.
func (m *MemoryStore) DeleteItems(_ context.Context, cartID string, itemIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return common.ErrNotFound
	}
	drop := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = struct{}{}
	}
	kept := c.keys[:0]
	for _, k := range c.keys {
		if _, gone := drop[c.items[k].ID]; gone {
			delete(c.items, k)
			continue
		}
		kept = append(kept, k)
	}
	c.keys = kept
	return nil
}

// ClearCart implements cart.Store.
func (m *MemoryStore) ClearCart(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return common.ErrNotFound
	}
	c.keys = nil
	c.items = make(map[string]cart.LineItem)
	return nil
}
