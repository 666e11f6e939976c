package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-process Log with single-group semantics. It backs
// tests and local development without Redis: entries are delivered once per
// group and stay pending until acked.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[string][]Entry        // stream -> append order
	cursor  map[string]int            // stream/group -> next undelivered index
	pending map[string]map[string]int // stream/group -> entry id -> index
	groups  map[string]bool
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: map[string][]Entry{},
		cursor:  map[string]int{},
		pending: map[string]map[string]int{},
		groups:  map[string]bool{},
	}
}

func groupKey(stream, group string) string {
	return stream + "/" + group
}

func (l *MemoryLog) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	id := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), len(l.entries[stream]))
	l.entries[stream] = append(l.entries[stream], Entry{ID: id, Fields: f})
	return id, nil
}

func (l *MemoryLog) CreateGroup(ctx context.Context, stream, group string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	gk := groupKey(stream, group)
	if !l.groups[gk] {
		l.groups[gk] = true
		l.pending[gk] = map[string]int{}
	}
	return nil
}

func (l *MemoryLog) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	gk := groupKey(stream, group)
	if !l.groups[gk] {
		return nil, fmt.Errorf("no such consumer group %q on stream %q", group, stream)
	}
	all := l.entries[stream]
	start := l.cursor[gk]
	var out []Entry
	for i := start; i < len(all) && int64(len(out)) < count; i++ {
		out = append(out, all[i])
		l.pending[gk][all[i].ID] = i
		l.cursor[gk] = i + 1
	}
	return out, nil
}

func (l *MemoryLog) Ack(ctx context.Context, stream, group string, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	gk := groupKey(stream, group)
	for _, id := range ids {
		delete(l.pending[gk], id)
	}
	return nil
}

// Pending returns the ids still unacknowledged for a group. Test helper.
func (l *MemoryLog) Pending(stream, group string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for id := range l.pending[groupKey(stream, group)] {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of entries appended to a stream. Test helper.
func (l *MemoryLog) Len(stream string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[stream])
}
