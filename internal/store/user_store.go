package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const userKeyPrefix = "users:"

// UserStore persists user aggregates as whole-object JSON under
// "users:{user_id}". It carries no locking of its own — correctness under
// writes comes from the consumer's single-writer configuration; the query
// path only reads and tolerates staleness.
type UserStore struct {
	kv KV
}

// NewUserStore creates a store over the given KV backend.
func NewUserStore(kv KV) *UserStore {
	return &UserStore{kv: kv}
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

// Get returns the stored aggregate or ErrNotFound.
func (s *UserStore) Get(ctx context.Context, userID string) (*UserAggregate, error) {
	raw, err := s.kv.Get(ctx, userKey(userID))
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get user %q: %w", userID, err)
	}
	var u UserAggregate
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("unmarshal user %q: %w", userID, err)
	}
	if u.CreditCards == nil {
		u.CreditCards = map[string]string{}
	}
	if u.AccessFlags == nil {
		u.AccessFlags = map[string]bool{FlagCanMessage: true, FlagCanPurchase: true}
	}
	return &u, nil
}

// Create writes a default aggregate and returns it. Overwrites any existing
// aggregate, which is idempotent since defaults are fixed.
func (s *UserStore) Create(ctx context.Context, userID string) (*UserAggregate, error) {
	u := NewUserAggregate(userID)
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("[UserStore] Created user", "user_id", userID)
	return u, nil
}

// Save replaces the aggregate at its user_id.
func (s *UserStore) Save(ctx context.Context, u *UserAggregate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user %q: %w", u.UserID, err)
	}
	if err := s.kv.Set(ctx, userKey(u.UserID), string(data)); err != nil {
		return fmt.Errorf("save user %q: %w", u.UserID, err)
	}
	return nil
}

// Delete removes the aggregate if present.
func (s *UserStore) Delete(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, userKey(userID)); err != nil {
		return fmt.Errorf("delete user %q: %w", userID, err)
	}
	return nil
}

// Count returns the number of stored aggregates. Best-effort: it scans keys
// and may lag concurrent writes, which is acceptable for the tripwire
// denominator.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, userKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return len(keys), nil
}

// Clear removes all user aggregates. Lifecycle use only.
func (s *UserStore) Clear(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx, userKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	slog.Info("[UserStore] Cleared all users", "count", len(keys))
	return nil
}
