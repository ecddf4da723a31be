package cart

import (
	"context"
	"time"
)

// Snapshot identifies the single active cart owned by a user.
type Snapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistent cart collaborator. Implementations must make
// UpsertItems, DeleteItems and ClearCart atomic: either every row is written
// or none is.
type Store interface {
	// GetActiveCart returns the user's active cart or common.ErrNotFound.
	GetActiveCart(ctx context.Context, userID string) (Snapshot, error)
	// CreateCart creates the active cart. When one already exists it is returned instead.
	CreateCart(ctx context.Context, userID string) (Snapshot, error)
	ListItems(ctx context.Context, cartID string) ([]LineItem, error)
	// UpsertItems writes items keyed by their merge key.
	UpsertItems(ctx context.Context, cartID string, items []LineItem) error
	DeleteItems(ctx context.Context, cartID string, itemIDs []string) error
	ClearCart(ctx context.Context, cartID string) error
}

// Locker serialises read-modify-write sequences on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
