package cartstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

const uniqueViolation = "23505"

// PostgresStore persists carts in the carts and cart_items tables. A partial
// unique index keeps at most one active cart per user.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// GetActiveCart implements cart.Store. Should two active rows ever exist the
// most recent wins.
func (s *PostgresStore) GetActiveCart(ctx context.Context, userID string) (cart.Snapshot, error) {
	const q = `SELECT id::text, user_id, created_at FROM carts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`
	var snap cart.Snapshot
	err := s.Pool.QueryRow(ctx, q, userID).Scan(&snap.ID, &snap.UserID, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Snapshot{}, common.ErrNotFound
	}
	if err != nil {
		return cart.Snapshot{}, err
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// CreateCart implements cart.Store. Losing the insert race to a concurrent
// request returns the cart that request created.
func (s *PostgresStore) CreateCart(ctx context.Context, userID string) (cart.Snapshot, error) {
	const q = `INSERT INTO carts (id, user_id, status) VALUES ($1, $2, 'active') RETURNING created_at`
	snap := cart.Snapshot{ID: uuid.NewString(), UserID: userID}
	err := s.Pool.QueryRow(ctx, q, snap.ID, userID).Scan(&snap.CreatedAt)
	if isUniqueViolation(err) {
		return s.GetActiveCart(ctx, userID)
	}
	if err != nil {
		return cart.Snapshot{}, err
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// ListItems implements cart.Store.
func (s *PostgresStore) ListItems(ctx context.Context, cartID string) ([]cart.LineItem, error) {
	const q = `SELECT id, name, unit_price, old_unit_price, quantity, unit, category, source_type, store_id
		FROM cart_items WHERE cart_id = $1 ORDER BY position`
	rows, err := s.Pool.Query(ctx, q, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []cart.LineItem{}
	for rows.Next() {
		var (
			it     cart.LineItem
			source string
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.UnitPrice, &it.OldUnitPrice, &it.Quantity,
			&it.Unit, &it.Category, &source, &it.StoreID); err != nil {
			return nil, err
		}
		it.SourceType = cart.SourceType(source)
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpsertItems implements cart.Store. Rows are keyed by (cart_id, item_key) and
// written in one transaction.
func (s *PostgresStore) UpsertItems(ctx context.Context, cartID string, items []cart.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	const q = `INSERT INTO cart_items
		(id, cart_id, item_key, name, unit_price, old_unit_price, quantity, unit, category, source_type, store_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cart_id, item_key) DO UPDATE SET
			name = EXCLUDED.name,
			unit_price = EXCLUDED.unit_price,
			old_unit_price = EXCLUDED.old_unit_price,
			quantity = EXCLUDED.quantity,
			unit = EXCLUDED.unit,
			category = EXCLUDED.category,
			source_type = EXCLUDED.source_type,
			store_id = EXCLUDED.store_id,
			id = EXCLUDED.id,
			updated_at = now()`
	batch := &pgx.Batch{}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(q, id, cartID, it.Key(), it.Name, it.UnitPrice, it.OldUnitPrice, it.Quantity,
			it.Unit, it.Category, string(it.SourceType), it.StoreID)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert cart items: %w", err)
		}
		return s.touch(ctx, tx, cartID)
	})
}

// DeleteItems implements cart.Store.
func (s *PostgresStore) DeleteItems(ctx context.Context, cartID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = ANY($2)`, cartID, itemIDs); err != nil {
			return err
		}
		return s.touch(ctx, tx, cartID)
	})
}

// ClearCart implements cart.Store.
func (s *PostgresStore) ClearCart(ctx context.Context, cartID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return err
		}
		return s.touch(ctx, tx, cartID)
	})
}

// Ping reports database reachability for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) touch(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, time.Now().UTC())
	return err
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
