// Package consumer drives the event-processing pipeline: it reads batches
// from the durable log as part of a consumer group, dispatches each entry
// through handler → rules → tripwire, and acknowledges.
//
// Acknowledgement policy: malformed entries (bad JSON, missing user_id,
// unknown name, missing required properties) are poison pills — logged,
// acked and dropped so they cannot cause redelivery storms. Transient
// backing-store failures are NOT acked; the entry stays pending and the log
// redelivers it.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zacharyclement/feature-restrictions/internal/event"
	"github.com/zacharyclement/feature-restrictions/internal/handler"
	"github.com/zacharyclement/feature-restrictions/internal/monitoring"
	"github.com/zacharyclement/feature-restrictions/internal/rules"
	"github.com/zacharyclement/feature-restrictions/internal/store"
	"github.com/zacharyclement/feature-restrictions/internal/tripwire"
)

// Config identifies the stream and this reader within its group.
type Config struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

func (c *Config) defaults() {
	if c.Stream == "" {
		c.Stream = "event_stream"
	}
	if c.Group == "" {
		c.Group = "group1"
	}
	if c.Consumer == "" {
		c.Consumer = "consumer1"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
}

// Consumer is a single logical worker on the consumer group. Run one per
// group for the single-writer guarantee on user aggregates; additional
// readers are safe for the log but race on aggregates.
type Consumer struct {
	log      Log
	users    *store.UserStore
	trip     *tripwire.Controller
	engine   *rules.Engine
	handlers map[string]handler.Handler
	metrics  *monitoring.Metrics
	cfg      Config
}

// New wires a consumer over the given log and stores.
func New(log Log, users *store.UserStore, trip *tripwire.Controller, metrics *monitoring.Metrics, cfg Config) *Consumer {
	cfg.defaults()
	return &Consumer{
		log:      log,
		users:    users,
		trip:     trip,
		engine:   rules.NewEngine(users, trip),
		handlers: handler.Registry(users),
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Run ensures the group exists, then reads and processes until ctx is
// canceled. A group-creation failure (other than "already exists", which the
// Log hides) is fatal.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.log.CreateGroup(ctx, c.cfg.Stream, c.cfg.Group); err != nil {
		return fmt.Errorf("create consumer group %q on %q: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	slog.Info("[Consumer] Started",
		"stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer)

	for {
		select {
		case <-ctx.Done():
			slog.Info("[Consumer] Stopped")
			return nil
		default:
		}

		entries, err := c.log.ReadGroup(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("[Consumer] Stopped")
				return nil
			}
			slog.Error("[Consumer] Read failed", "error", err)
			// Back off so a dead backend does not spin the loop hot.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.Block):
			}
			continue
		}

		for _, entry := range entries {
			start := time.Now()
			ack := c.processEntry(ctx, entry)
			c.metrics.ObserveProcessing(time.Since(start))
			if !ack {
				continue
			}
			if err := c.log.Ack(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
				// Entry stays pending; it will be redelivered.
				slog.Error("[Consumer] Ack failed", "entry_id", entry.ID, "error", err)
			}
		}
	}
}

// processEntry runs one entry through the pipeline and reports whether it
// should be acknowledged. false means a transient infrastructure failure.
func (c *Consumer) processEntry(ctx context.Context, entry Entry) bool {
	name := entry.Fields["name"]

	var props map[string]any
	if err := json.Unmarshal([]byte(entry.Fields["event_properties"]), &props); err != nil {
		slog.Error("[Consumer] Unparseable event_properties, dropping",
			"entry_id", entry.ID, "event", name, "error", err)
		c.metrics.Processed(name, "dropped")
		return true
	}
	ev := &event.Event{ID: entry.Fields["event_id"], Name: name, Properties: props}

	userID, err := ev.UserID()
	if err != nil {
		slog.Error("[Consumer] Event without usable user_id, dropping",
			"entry_id", entry.ID, "event", name, "error", err)
		c.metrics.Processed(name, "dropped")
		return true
	}

	u, err := c.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		u, err = c.users.Create(ctx, userID)
	}
	if err != nil {
		slog.Error("[Consumer] User load failed, leaving pending",
			"entry_id", entry.ID, "user_id", userID, "error", err)
		c.metrics.Processed(name, "retried")
		return false
	}

	h, ok := c.handlers[name]
	if !ok {
		slog.Error("[Consumer] No handler for event, dropping",
			"entry_id", entry.ID, "event", name, "error", handler.ErrUnknownEvent)
		c.metrics.Processed(name, "dropped")
		return true
	}

	if err := h.Handle(ctx, ev, u); err != nil {
		if errors.Is(err, handler.ErrBadProperties) {
			slog.Error("[Consumer] Bad event properties, dropping",
				"entry_id", entry.ID, "event", name, "error", err)
			c.metrics.Processed(name, "dropped")
			return true
		}
		slog.Error("[Consumer] Handler failed, leaving pending",
			"entry_id", entry.ID, "event", name, "error", err)
		c.metrics.Processed(name, "retried")
		return false
	}
	slog.Debug("[Consumer] Handled event", "event", name, "user", u.String())

	for _, ruleName := range handler.EventRules[name] {
		r, ok := c.engine.Rule(ruleName)
		if !ok {
			continue
		}
		outcome, err := c.engine.Process(ctx, r, u)
		if err != nil {
			slog.Error("[Consumer] Rule processing failed, leaving pending",
				"entry_id", entry.ID, "rule", ruleName, "error", err)
			c.metrics.Processed(name, "retried")
			return false
		}
		c.metrics.RuleOutcome(ruleName, outcome.String())

		if outcome != rules.Applied {
			continue
		}
		// Denominator is read after the rule saved the user, so the
		// activating user is already counted.
		total, err := c.users.Count(ctx)
		if err != nil {
			slog.Error("[Consumer] User count failed, leaving pending",
				"entry_id", entry.ID, "rule", ruleName, "error", err)
			c.metrics.Processed(name, "retried")
			return false
		}
		if err := c.trip.RecordAndRecompute(ctx, ruleName, u.UserID, total); err != nil {
			slog.Error("[Consumer] Tripwire update failed, leaving pending",
				"entry_id", entry.ID, "rule", ruleName, "error", err)
			c.metrics.Processed(name, "retried")
			return false
		}
		disabled, err := c.trip.IsDisabled(ctx, ruleName)
		if err == nil {
			c.metrics.Tripwire(ruleName, disabled)
		}
	}

	c.metrics.Processed(name, "ok")
	return true
}
