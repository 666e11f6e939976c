package rules

import (
	"context"
	"log/slog"

	"github.com/zacharyclement/feature-restrictions/internal/store"
	"github.com/zacharyclement/feature-restrictions/internal/tripwire"
)

// Outcome of processing one rule against one user.
type Outcome int

const (
	// Skipped: the predicate did not hold; user untouched.
	Skipped Outcome = iota
	// Applied: the predicate held, flags were flipped and the user saved.
	Applied
	// Disabled: the tripwire has the rule disabled; user untouched.
	Disabled
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Disabled:
		return "disabled"
	default:
		return "skipped"
	}
}

// Engine processes rules: tripwire gate, evaluate, apply, persist.
type Engine struct {
	users *store.UserStore
	trip  *tripwire.Controller
	rules map[string]Rule
}

// NewEngine creates an engine with the default rule set.
func NewEngine(users *store.UserStore, trip *tripwire.Controller) *Engine {
	return &Engine{users: users, trip: trip, rules: Defaults()}
}

// Rule looks up a rule by name.
func (e *Engine) Rule(name string) (Rule, bool) {
	r, ok := e.rules[name]
	return r, ok
}

// Process runs one rule against a user aggregate. A non-nil error means the
// backing store failed; the outcome is then meaningless and the caller
// should treat the event as transiently failed.
func (e *Engine) Process(ctx context.Context, r Rule, u *store.UserAggregate) (Outcome, error) {
	disabled, err := e.trip.IsDisabled(ctx, r.Name())
	if err != nil {
		return Skipped, err
	}
	if disabled {
		// Give the window a chance to expire before honoring the bit —
		// a stale tripwire disengages on the next trigger.
		total, err := e.users.Count(ctx)
		if err != nil {
			return Skipped, err
		}
		if err := e.trip.Recompute(ctx, r.Name(), total); err != nil {
			return Skipped, err
		}
		disabled, err = e.trip.IsDisabled(ctx, r.Name())
		if err != nil {
			return Skipped, err
		}
	}
	if disabled {
		slog.Info("[Rules] Rule disabled via tripwire, skipping", "rule", r.Name(), "user_id", u.UserID)
		return Disabled, nil
	}

	if !r.Evaluate(u) {
		return Skipped, nil
	}

	r.Apply(u)
	if err := e.users.Save(ctx, u); err != nil {
		return Skipped, err
	}
	slog.Info("[Rules] Rule applied", "rule", r.Name(), "user_id", u.UserID)
	return Applied, nil
}
