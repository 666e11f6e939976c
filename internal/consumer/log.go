package consumer

import (
	"context"
	"time"
)

// Entry is one durable-log record: an opaque ordered id plus flat string
// fields ("name", "event_properties", "event_id").
type Entry struct {
	ID     string
	Fields map[string]string
}

// Log is the minimal append-only log contract, shaped after Redis Streams
// consumer groups. Any backend with per-group delivery tracking and
// per-entry acknowledgement can satisfy it. The concrete Redis adapter
// lives in internal/infra.
type Log interface {
	// Append adds an entry and returns its assigned id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// CreateGroup ensures the consumer group exists on the stream,
	// creating the stream if needed. Returns nil if the group already
	// exists.
	CreateGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks up to block for as many as count entries not yet
	// delivered to this group. An empty slice with nil error means the
	// block elapsed with nothing new.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Entry, error)

	// Ack removes entries from the group's pending list.
	Ack(ctx context.Context, stream, group string, ids ...string) error
}
