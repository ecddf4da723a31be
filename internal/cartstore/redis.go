package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// ErrConcurrentWrite is returned when a watched cart changed during a write.
var ErrConcurrentWrite = errors.New("cartstore: cart modified concurrently")

// RedisStore keeps each cart in three keys: a meta hash, an items hash keyed by
// merge key and a sorted set preserving insertion order. cart:active:<user>
// points at the user's single active cart and is only ever set with SETNX.
type RedisStore struct {
	R redis.UniversalClient
	// TTL expires idle carts; zero keeps them forever.
	TTL time.Duration
}

func activeKey(userID string) string { return "cart:active:" + userID }
func metaKey(cartID string) string   { return "cart:" + cartID + ":meta" }
func itemsKey(cartID string) string  { return "cart:" + cartID + ":items" }
func orderKey(cartID string) string  { return "cart:" + cartID + ":order" }
func idsKey(cartID string) string    { return "cart:" + cartID + ":ids" }

// GetActiveCart implements cart.Store.
func (s *RedisStore) GetActiveCart(ctx context.Context, userID string) (cart.Snapshot, error) {
	id, err := s.R.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return cart.Snapshot{}, common.ErrNotFound
	}
	if err != nil {
		return cart.Snapshot{}, err
	}
	return s.snapshot(ctx, id, userID)
}

func (s *RedisStore) snapshot(ctx context.Context, cartID, userID string) (cart.Snapshot, error) {
	created, err := s.R.HGet(ctx, metaKey(cartID), "created_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return cart.Snapshot{}, err
	}
	snap := cart.Snapshot{ID: cartID, UserID: userID}
	if ns, perr := strconv.ParseInt(created, 10, 64); perr == nil {
		snap.CreatedAt = time.Unix(0, ns).UTC()
	}
	return snap, nil
}

// CreateCart implements cart.Store. A lost SETNX race returns the winner's cart.
func (s *RedisStore) CreateCart(ctx context.Context, userID string) (cart.Snapshot, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	ok, err := s.R.SetNX(ctx, activeKey(userID), id, s.TTL).Result()
	if err != nil {
		return cart.Snapshot{}, err
	}
	if !ok {
		return s.GetActiveCart(ctx, userID)
	}
	_, err = s.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(id), "user_id", userID, "created_at", strconv.FormatInt(now.UnixNano(), 10))
		s.touch(ctx, pipe, id, userID)
		return nil
	})
	if err != nil {
		return cart.Snapshot{}, err
	}
	return cart.Snapshot{ID: id, UserID: userID, CreatedAt: now}, nil
}

// ListItems implements cart.Store.
func (s *RedisStore) ListItems(ctx context.Context, cartID string) ([]cart.LineItem, error) {
	keys, err := s.R.ZRange(ctx, orderKey(cartID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []cart.LineItem{}, nil
	}
	raw, err := s.R.HMGet(ctx, itemsKey(cartID), keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]cart.LineItem, 0, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var it cart.LineItem
		if err := json.Unmarshal([]byte(str), &it); err != nil {
			return nil, fmt.Errorf("decode cart item %s: %w", keys[i], err)
		}
		out = append(out, it)
	}
	return out, nil
}

// UpsertItems implements cart.Store. All rows land in one MULTI/EXEC, aborted
// if the items hash changed since WATCH.
func (s *RedisStore) UpsertItems(ctx context.Context, cartID string, items []cart.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	type row struct {
		key, id string
		data    []byte
	}
	rows := make([]row, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		data, err := json.Marshal(it)
		if err != nil {
			return err
		}
		rows = append(rows, row{key: it.Key(), id: it.ID, data: data})
	}
	return s.watch(ctx, cartID, func(tx *redis.Tx) error {
		last, err := tx.ZRangeWithScores(ctx, orderKey(cartID), -1, -1).Result()
		if err != nil {
			return err
		}
		var base float64
		if len(last) > 0 {
			base = last[0].Score + 1
		}
		keys := make([]string, len(rows))
		for i, r := range rows {
			keys[i] = r.key
		}
		stale, err := rowIDs(ctx, tx, cartID, keys)
		if err != nil {
			return err
		}
		var owner string
		if s.TTL > 0 {
			owner, _ = tx.HGet(ctx, metaKey(cartID), "user_id").Result()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, r := range rows {
				if prev := stale[r.key]; prev != "" && prev != r.id {
					pipe.HDel(ctx, idsKey(cartID), prev)
				}
				pipe.HSet(ctx, itemsKey(cartID), r.key, r.data)
				pipe.ZAddNX(ctx, orderKey(cartID), redis.Z{Score: base + float64(i), Member: r.key})
				pipe.HSet(ctx, idsKey(cartID), r.id, r.key)
			}
			s.touch(ctx, pipe, cartID, owner)
			return nil
		})
		return err
	})
}

// DeleteItems implements cart.Store.
func (s *RedisStore) DeleteItems(ctx context.Context, cartID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.watch(ctx, cartID, func(tx *redis.Tx) error {
		found, err := tx.HMGet(ctx, idsKey(cartID), itemIDs...).Result()
		if err != nil {
			return err
		}
		owners := make(map[string]string, len(found))
		var candidates []string
		for i, v := range found {
			if key, ok := v.(string); ok {
				owners[key] = itemIDs[i]
				candidates = append(candidates, key)
			}
		}
		current, err := rowIDs(ctx, tx, cartID, candidates)
		if err != nil {
			return err
		}
		var keys []string
		for _, key := range candidates {
			if current[key] == owners[key] {
				keys = append(keys, key)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(keys) > 0 {
				pipe.HDel(ctx, itemsKey(cartID), keys...)
				members := make([]any, len(keys))
				for i, k := range keys {
					members[i] = k
				}
				pipe.ZRem(ctx, orderKey(cartID), members...)
			}
			pipe.HDel(ctx, idsKey(cartID), itemIDs...)
			return nil
		})
		return err
	})
}

// ClearCart implements cart.Store. The cart stays active with no items.
func (s *RedisStore) ClearCart(ctx context.Context, cartID string) error {
	_, err := s.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, itemsKey(cartID), orderKey(cartID), idsKey(cartID))
		return nil
	})
	return err
}

// rowIDs returns the id stored in each existing row of keys.
func rowIDs(ctx context.Context, tx *redis.Tx, cartID string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raw, err := tx.HMGet(ctx, itemsKey(cartID), keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var it cart.LineItem
		if err := json.Unmarshal([]byte(str), &it); err != nil {
			return nil, fmt.Errorf("decode cart item %s: %w", keys[i], err)
		}
		out[keys[i]] = it.ID
	}
	return out, nil
}

func (s *RedisStore) watch(ctx context.Context, cartID string, fn func(*redis.Tx) error) error {
	err := s.R.Watch(ctx, fn, itemsKey(cartID), orderKey(cartID), idsKey(cartID))
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConcurrentWrite
	}
	return err
}

// touch extends the expiry of every key of the cart, including the owner's
// active pointer when userID is known.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, cartID, userID string) {
	if s.TTL <= 0 {
		return
	}
	keys := []string{metaKey(cartID), itemsKey(cartID), orderKey(cartID), idsKey(cartID)}
	if userID != "" {
		keys = append(keys, activeKey(userID))
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, s.TTL)
	}
}
