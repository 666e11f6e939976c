// Package store holds the key-value abstraction and the user aggregate store.
//
// KV is the minimal contract the service needs from its backing store. The
// concrete Redis adapter lives in internal/infra — code here never imports a
// driver, it only sees this interface.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key (or hash field) does not exist.
var ErrNotFound = errors.New("not found")

// KV is a minimal interface that any Redis-shaped store can satisfy.
// String keys, string values, plus hash operations for the tripwire state.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error

	// Keys returns all keys matching a glob pattern, e.g. "users:*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// FlushDB wipes the logical database. Lifecycle use only.
	FlushDB(ctx context.Context) error
}
