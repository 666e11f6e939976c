// Package publisher appends validated events to the durable log.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zacharyclement/feature-restrictions/internal/consumer"
	"github.com/zacharyclement/feature-restrictions/internal/event"
)

// Publisher serializes events into the two-field log format: "name" plus
// "event_properties" as a JSON string. Each event gets a uuid "event_id"
// for tracing; consumers carry it through their logs.
type Publisher struct {
	log    consumer.Log
	stream string
}

// New creates a publisher for the given stream.
func New(log consumer.Log, stream string) *Publisher {
	if stream == "" {
		stream = "event_stream"
	}
	return &Publisher{log: log, stream: stream}
}

// Publish appends the event and returns the log-assigned entry id. Success
// means durably appended, not processed.
func (p *Publisher) Publish(ctx context.Context, ev *event.Event) (string, error) {
	props, err := json.Marshal(ev.Properties)
	if err != nil {
		return "", fmt.Errorf("marshal event_properties: %w", err)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	id, err := p.log.Append(ctx, p.stream, map[string]string{
		"name":             ev.Name,
		"event_properties": string(props),
		"event_id":         ev.ID,
	})
	if err != nil {
		return "", fmt.Errorf("append event %q: %w", ev.Name, err)
	}
	slog.Info("[Publisher] Event appended", "event", ev.Name, "event_id", ev.ID, "entry_id", id)
	return id, nil
}
