package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/events"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
)

// Service owns the user's persisted cart: it creates the single active cart,
// merges client-local batches into it and clears it on checkout.
type Service struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Timeout time.Duration
	Logger  zerolog.Logger
	NewID   func() string
	// Events, when set, receives cart.synced and cart.cleared.
	Events *events.Bus
}

// SyncResult reports the merged cart after a sync.
type SyncResult struct {
	CartID  string     `json:"cartId"`
	Items   []LineItem `json:"items"`
	Written int        `json:"written"`
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) timeout() time.Duration {
	if s == nil || s.Timeout <= 0 {
		return 3 * time.Second
	}
	return s.Timeout
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

func lockKey(userID string) string {
	return "lock:cart:" + userID
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("cart store %s: %w", op, errors.Join(common.ErrUpstreamUnavailable, err))
}

// EnsureCart returns the user's active cart, creating it on first use.
func (s *Service) EnsureCart(ctx context.Context, userID string) (Snapshot, error) {
	if err := s.ready(); err != nil {
		return Snapshot{}, err
	}
	if userID == "" {
		return Snapshot{}, fmt.Errorf("user id required: %w", common.ErrInvalidInput)
	}
	snap, err := s.Store.GetActiveCart(ctx, userID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return Snapshot{}, upstream("get active cart", err)
	}
	snap, err = s.Store.CreateCart(ctx, userID)
	if err != nil {
		return Snapshot{}, upstream("create cart", err)
	}
	return snap, nil
}

// Items returns the persisted items of the user's active cart. A user without
// a cart has an empty one.
func (s *Service) Items(ctx context.Context, userID string) (Snapshot, []LineItem, error) {
	if err := s.ready(); err != nil {
		return Snapshot{}, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	snap, err := s.Store.GetActiveCart(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Snapshot{UserID: userID}, []LineItem{}, nil
		}
		return Snapshot{}, nil, upstream("get active cart", err)
	}
	items, err := s.Store.ListItems(ctx, snap.ID)
	if err != nil {
		return Snapshot{}, nil, upstream("list items", err)
	}
	return snap, items, nil
}

// Sync merges a client-local batch into the persisted cart. The whole
// read-merge-write runs under the user's cart lock so two concurrent syncs
// cannot both add the same batch onto the same remote state. Only rows whose
// content changed are written, in one atomic upsert.
func (s *Service) Sync(ctx context.Context, userID string, local []LineItem) (SyncResult, error) {
	if err := s.ready(); err != nil {
		return SyncResult{}, err
	}
	if userID == "" {
		return SyncResult{}, fmt.Errorf("user id required: %w", common.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	var result SyncResult
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		snap, err := s.EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		remote, err := s.Store.ListItems(ctx, snap.ID)
		if err != nil {
			return upstream("list items", err)
		}
		merged := Merge(local, remote)
		before := Index(remote)
		changed := make([]LineItem, 0, len(local))
		for i := range merged {
			if merged[i].ID == "" {
				merged[i].ID = s.newID()
			}
			prev, ok := before[merged[i].Key()]
			if !ok || !sameRow(prev, merged[i]) {
				changed = append(changed, merged[i])
			}
		}
		if len(changed) > 0 {
			if err := s.Store.UpsertItems(ctx, snap.ID, changed); err != nil {
				return upstream("upsert items", err)
			}
		}
		result = SyncResult{CartID: snap.ID, Items: merged, Written: len(changed)}
		return nil
	})
	s.recordSync(err)
	if err != nil {
		s.Logger.Error().Err(err).Str("user_id", userID).Msg("cart_sync_failed")
		return SyncResult{}, err
	}
	if result.Written > 0 {
		s.emit(ctx, events.TopicCartSynced, result.CartID, map[string]any{"userId": userID, "written": result.Written})
	}
	return result, nil
}

// SetQuantity overwrites the quantity of the named item. A quantity of zero or
// less removes the row instead of persisting it.
func (s *Service) SetQuantity(ctx context.Context, userID, name string, qty float64) ([]LineItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key := Key(name)
	if key == "" {
		return nil, fmt.Errorf("item name is empty: %w", common.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	var items []LineItem
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		snap, err := s.Store.GetActiveCart(ctx, userID)
		if err != nil {
			return upstream("get active cart", err)
		}
		current, err := s.Store.ListItems(ctx, snap.ID)
		if err != nil {
			return upstream("list items", err)
		}
		existing, ok := Index(current)[key]
		if !ok {
			return fmt.Errorf("item %q: %w", name, common.ErrNotFound)
		}
		if qty <= 0 {
			if err := s.Store.DeleteItems(ctx, snap.ID, []string{existing.ID}); err != nil {
				return upstream("delete items", err)
			}
		} else {
			existing.Quantity = qty
			if err := existing.Validate(); err != nil {
				return err
			}
			if err := s.Store.UpsertItems(ctx, snap.ID, []LineItem{existing}); err != nil {
				return upstream("upsert items", err)
			}
		}
		items, err = s.Store.ListItems(ctx, snap.ID)
		return upstream("list items", err)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Clear empties the user's active cart, e.g. on checkout completion.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.withUserLock(ctx, userID, func(ctx context.Context) error {
		snap, err := s.Store.GetActiveCart(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return upstream("get active cart", err)
		}
		if err := s.Store.ClearCart(ctx, snap.ID); err != nil {
			return upstream("clear cart", err)
		}
		s.emit(ctx, events.TopicCartCleared, snap.ID, map[string]any{"userId": userID})
		return nil
	})
}

func (s *Service) emit(ctx context.Context, topic, cartID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, cartID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Str("topic", topic).Msg("cart_event_failed")
	}
}

func (s *Service) withUserLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	var inner error
	err := s.Locker.WithLock(ctx, lockKey(userID), s.lockTTL(), func(ctx context.Context) error {
		inner = fn(ctx)
		return inner
	})
	if err != nil && (inner == nil || !errors.Is(err, inner)) {
		// the lock itself failed: redis down, the wait timed out or the lease was lost
		return upstream("lock", err)
	}
	return err
}

func (s *Service) recordSync(err error) {
	if obs.CartSyncTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.CartSyncTotal.WithLabelValues(result).Inc()
}

func sameRow(a, b LineItem) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Quantity == b.Quantity && a.Unit == b.Unit &&
		a.Category == b.Category && a.UnitPrice == b.UnitPrice && a.SourceType == b.SourceType &&
		a.StoreID == b.StoreID && a.OldPrice() == b.OldPrice()
}
