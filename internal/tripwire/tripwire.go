// Package tripwire implements the automatic rule-disabling mechanism.
//
// For every rule the controller tracks which users the rule touched inside a
// sliding window. When the affected fraction of the live user population
// reaches the threshold the rule is disabled ("thrown"); when a later
// recompute drops below it the rule is re-enabled ("disengaged").
//
// State lives in the backing KV:
//
//	tripwire:states                 hash {rule_name: "0"|"1"}
//	tripwire:affected_users:{rule}  hash {user_id: unix_seconds}
package tripwire

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/zacharyclement/feature-restrictions/internal/store"
)

// Defaults per the abuse-detection policy: 5% of users within 5 minutes.
const (
	DefaultWindow    = 300 * time.Second
	DefaultThreshold = 0.05
)

const (
	statesKey         = "tripwire:states"
	affectedKeyPrefix = "tripwire:affected_users:"
)

// Controller maintains per-rule affected-user windows and derives the
// disabled bit. Expiration is lazy: it happens only on the recompute paths
// (RecordAndRecompute, Recompute), never in IsDisabled and never in the
// background. A disabled rule therefore stays disabled until the rule is
// next triggered, at which point expiry can re-enable it.
type Controller struct {
	kv        store.KV
	window    time.Duration
	threshold float64

	// now is injectable for tests.
	now func() time.Time
}

// New creates a controller. Zero window or threshold select the defaults.
func New(kv store.KV, window time.Duration, threshold float64) *Controller {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{kv: kv, window: window, threshold: threshold, now: time.Now}
}

func affectedKey(ruleName string) string {
	return affectedKeyPrefix + ruleName
}

// IsDisabled returns the current disabled bit for a rule. A rule that was
// never recorded is enabled.
func (c *Controller) IsDisabled(ctx context.Context, ruleName string) (bool, error) {
	v, err := c.kv.HGet(ctx, statesKey, ruleName)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("tripwire state for %q: %w", ruleName, err)
	}
	return v == "1", nil
}

// RecordAndRecompute registers that ruleName was applied to userID, expires
// window-old entries, and rederives the disabled bit from the affected
// fraction of totalUsers. Only state transitions are logged.
func (c *Controller) RecordAndRecompute(ctx context.Context, ruleName, userID string, totalUsers int) error {
	return c.recompute(ctx, ruleName, userID, totalUsers)
}

// Recompute expires window-old entries and, only when expiry removed
// something, rederives the disabled bit. The rule engine calls this when a
// disabled rule is triggered, so stale windows can disengage the tripwire.
// A grown user population alone never re-enables on this path; the
// denominator is re-read only on RecordAndRecompute.
func (c *Controller) Recompute(ctx context.Context, ruleName string, totalUsers int) error {
	return c.recompute(ctx, ruleName, "", totalUsers)
}

func (c *Controller) recompute(ctx context.Context, ruleName, userID string, totalUsers int) error {
	affected, err := c.kv.HGetAll(ctx, affectedKey(ruleName))
	if err != nil {
		return fmt.Errorf("affected users for %q: %w", ruleName, err)
	}

	nowSecs := c.now().Unix()
	cutoff := nowSecs - int64(c.window.Seconds())

	var expired []string
	for uid, raw := range affected {
		ts, perr := strconv.ParseFloat(raw, 64)
		if perr != nil || int64(ts) <= cutoff {
			expired = append(expired, uid)
			delete(affected, uid)
		}
	}
	if len(expired) > 0 {
		if err := c.kv.HDel(ctx, affectedKey(ruleName), expired...); err != nil {
			return fmt.Errorf("expire affected users for %q: %w", ruleName, err)
		}
	}

	if userID != "" {
		if err := c.kv.HSet(ctx, affectedKey(ruleName), userID, strconv.FormatInt(nowSecs, 10)); err != nil {
			return fmt.Errorf("record affected user for %q: %w", ruleName, err)
		}
		affected[userID] = strconv.FormatInt(nowSecs, 10)
	} else if len(expired) == 0 {
		// Refresh only: the window is unchanged, the bit stands.
		return nil
	}

	pct := 0.0
	if totalUsers > 0 {
		pct = float64(len(affected)) / float64(totalUsers)
	}
	disabled := pct >= c.threshold

	prev, err := c.IsDisabled(ctx, ruleName)
	if err != nil {
		return err
	}

	bit := "0"
	if disabled {
		bit = "1"
	}
	if err := c.kv.HSet(ctx, statesKey, ruleName, bit); err != nil {
		return fmt.Errorf("set tripwire state for %q: %w", ruleName, err)
	}

	if disabled && !prev {
		slog.Info("[Tripwire] Thrown: rule disabled",
			"rule", ruleName, "affected", len(affected), "total_users", totalUsers, "pct", pct)
	} else if !disabled && prev {
		slog.Info("[Tripwire] Disengaged: rule re-enabled",
			"rule", ruleName, "affected", len(affected), "total_users", totalUsers, "pct", pct)
	}
	return nil
}

// DisabledRules returns a snapshot of all known rule bits for observability.
func (c *Controller) DisabledRules(ctx context.Context) (map[string]bool, error) {
	states, err := c.kv.HGetAll(ctx, statesKey)
	if err != nil {
		return nil, fmt.Errorf("tripwire states: %w", err)
	}
	out := make(map[string]bool, len(states))
	for rule, v := range states {
		out[rule] = v == "1"
	}
	return out, nil
}

// Clear resets all tripwire state.
func (c *Controller) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, affectedKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("clear tripwire: %w", err)
	}
	keys = append(keys, statesKey)
	if err := c.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("clear tripwire: %w", err)
	}
	slog.Info("[Tripwire] Cleared all state")
	return nil
}

// SetClock overrides the time source. Test hook.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}
