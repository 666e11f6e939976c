package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zacharyclement/feature-restrictions/internal/store"
	"github.com/zacharyclement/feature-restrictions/internal/tripwire"
)

func newConsumer(t *testing.T) (*Consumer, *MemoryLog, *store.UserStore, *tripwire.Controller) {
	t.Helper()
	kv := store.NewMemoryKV()
	users := store.NewUserStore(kv)
	trip := tripwire.New(kv, 0, 0)
	log := NewMemoryLog()
	c := New(log, users, trip, nil, Config{})
	return c, log, users, trip
}

func entry(t *testing.T, name string, props map[string]any) Entry {
	t.Helper()
	data, err := json.Marshal(props)
	require.NoError(t, err)
	return Entry{ID: "1-0", Fields: map[string]string{
		"name":             name,
		"event_properties": string(data),
	}}
}

func TestScamMessagesDisableMessaging(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	e := entry(t, "scam_message_flagged", map[string]any{"user_id": "u1"})
	assert.True(t, c.processEntry(ctx, e))
	assert.True(t, c.processEntry(ctx, e))

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Flag(store.FlagCanMessage))
	assert.True(t, u.Flag(store.FlagCanPurchase))
}

func TestZipCodeRuleBoundary(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	add := func(card, zip string) {
		e := entry(t, "credit_card_added", map[string]any{"user_id": "u2", "card_id": card, "zip_code": zip})
		require.True(t, c.processEntry(ctx, e))
	}

	add("c1", "10001")
	add("c2", "10002")
	u, err := users.Get(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, u.Flag(store.FlagCanPurchase), "two cards must not trip the rule")

	add("c3", "10003")
	u, err = users.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, u.Flag(store.FlagCanPurchase))
}

func TestChargebackRatio(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	require.True(t, c.processEntry(ctx, entry(t, "purchase_made", map[string]any{"user_id": "u3", "amount": 100})))
	u, err := users.Get(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, u.Flag(store.FlagCanPurchase), "purchases alone run no rules")

	require.True(t, c.processEntry(ctx, entry(t, "chargeback_occurred", map[string]any{"user_id": "u3", "amount": 15})))
	u, err = users.Get(ctx, "u3")
	require.NoError(t, err)
	assert.False(t, u.Flag(store.FlagCanPurchase)) // 15/100 > 0.10
}

func TestIdempotentCardAdd(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	e := entry(t, "credit_card_added", map[string]any{"user_id": "u4", "card_id": "c1", "zip_code": "10001"})
	require.True(t, c.processEntry(ctx, e))
	require.True(t, c.processEntry(ctx, e)) // redelivery

	u, err := users.Get(ctx, "u4")
	require.NoError(t, err)
	assert.Equal(t, 1, u.TotalCreditCards)
	assert.Len(t, u.UniqueZipCodes, 1)
}

func TestPoisonPillsAreAcked(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	badJSON := Entry{ID: "1-0", Fields: map[string]string{"name": "purchase_made", "event_properties": "{not json"}}
	assert.True(t, c.processEntry(ctx, badJSON))

	noUser := entry(t, "purchase_made", map[string]any{"amount": 5})
	assert.True(t, c.processEntry(ctx, noUser))

	unknown := entry(t, "mystery_event", map[string]any{"user_id": "u5"})
	assert.True(t, c.processEntry(ctx, unknown))

	badProps := entry(t, "credit_card_added", map[string]any{"user_id": "u5"})
	assert.True(t, c.processEntry(ctx, badProps))

	// The unknown-name and bad-props entries still created the aggregate.
	u, err := users.Get(ctx, "u5")
	require.NoError(t, err)
	assert.Equal(t, 0, u.TotalCreditCards)
}

func TestNumericUserIDCoerced(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	require.True(t, c.processEntry(ctx, entry(t, "scam_message_flagged", map[string]any{"user_id": 42})))

	u, err := users.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ScamMessageFlags)
}

func TestTripwireDisablesRuleForLaterUsers(t *testing.T) {
	ctx := context.Background()
	c, _, users, _ := newConsumer(t)

	// A two-user population: one activation is 1/2 = 50% >= 5%, so the
	// first applied rule throws the tripwire.
	_, err := users.Create(ctx, "bystander")
	require.NoError(t, err)

	first := entry(t, "scam_message_flagged", map[string]any{"user_id": "u1"})
	require.True(t, c.processEntry(ctx, first))
	require.True(t, c.processEntry(ctx, first))

	u1, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u1.Flag(store.FlagCanMessage), "first activation lands before the tripwire throws")

	// The rule is now disabled; the next offender keeps messaging.
	second := entry(t, "scam_message_flagged", map[string]any{"user_id": "u2"})
	require.True(t, c.processEntry(ctx, second))
	require.True(t, c.processEntry(ctx, second))

	u2, err := users.Get(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, u2.Flag(store.FlagCanMessage))
	assert.Equal(t, 2, u2.ScamMessageFlags, "handler still counts while the rule is disabled")
}

func TestThrownTripwireHoldsAsPopulationGrows(t *testing.T) {
	ctx := context.Background()
	c, _, users, trip := newConsumer(t)

	// 19 bystanders plus the offender: one activation is exactly
	// 1/20 = 0.05, the throw boundary.
	for i := 0; i < 19; i++ {
		_, err := users.Create(ctx, fmt.Sprintf("bystander_%d", i))
		require.NoError(t, err)
	}
	offender := entry(t, "scam_message_flagged", map[string]any{"user_id": "u1"})
	require.True(t, c.processEntry(ctx, offender))
	require.True(t, c.processEntry(ctx, offender))

	disabled, err := trip.IsDisabled(ctx, "scam_message_rule")
	require.NoError(t, err)
	require.True(t, disabled)

	// A brand-new user grows the population to 21, pushing the fraction
	// under threshold, but nothing in the window has expired: the rule
	// stays disabled and the new offender keeps messaging.
	fresh := entry(t, "scam_message_flagged", map[string]any{"user_id": "u_new"})
	require.True(t, c.processEntry(ctx, fresh))
	require.True(t, c.processEntry(ctx, fresh))

	disabled, err = trip.IsDisabled(ctx, "scam_message_rule")
	require.NoError(t, err)
	assert.True(t, disabled)

	uNew, err := users.Get(ctx, "u_new")
	require.NoError(t, err)
	assert.True(t, uNew.Flag(store.FlagCanMessage))
	assert.Equal(t, 2, uNew.ScamMessageFlags)
}

func TestTripwireReenablesAfterWindow(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	users := store.NewUserStore(kv)
	trip := tripwire.New(kv, 0, 0)
	now := time.Unix(1_700_000_000, 0)
	trip.SetClock(func() time.Time { return now })
	c := New(NewMemoryLog(), users, trip, nil, Config{})

	_, err := users.Create(ctx, "bystander")
	require.NoError(t, err)

	first := entry(t, "scam_message_flagged", map[string]any{"user_id": "u1"})
	require.True(t, c.processEntry(ctx, first))
	require.True(t, c.processEntry(ctx, first))

	disabled, err := trip.IsDisabled(ctx, "scam_message_rule")
	require.NoError(t, err)
	require.True(t, disabled)

	// Past the window, a new offender expires the stale entry; with the
	// population grown the fraction falls below threshold and the rule
	// fires again.
	now = now.Add(301 * time.Second)
	for i := 0; i < 30; i++ {
		_, err := users.Create(ctx, string(rune('a'+i))+"_filler")
		require.NoError(t, err)
	}

	late := entry(t, "scam_message_flagged", map[string]any{"user_id": "u7"})
	require.True(t, c.processEntry(ctx, late))
	require.True(t, c.processEntry(ctx, late))

	u7, err := users.Get(ctx, "u7")
	require.NoError(t, err)
	assert.False(t, u7.Flag(store.FlagCanMessage))
}

// failingKV delegates to MemoryKV but fails Get to simulate a backing-store
// outage.
type failingKV struct {
	*store.MemoryKV
	fail bool
}

func (f *failingKV) Get(ctx context.Context, key string) (string, error) {
	if f.fail {
		return "", errors.New("connection refused")
	}
	return f.MemoryKV.Get(ctx, key)
}

func TestTransientStoreFailureLeavesEntryPending(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: store.NewMemoryKV(), fail: true}
	users := store.NewUserStore(kv)
	trip := tripwire.New(kv, 0, 0)
	c := New(NewMemoryLog(), users, trip, nil, Config{})

	e := entry(t, "scam_message_flagged", map[string]any{"user_id": "u1"})
	assert.False(t, c.processEntry(ctx, e), "infra failure must not ack")

	// Once the store recovers the same entry processes cleanly.
	kv.fail = false
	assert.True(t, c.processEntry(ctx, e))
}

func TestRunConsumesAndAcks(t *testing.T) {
	c, log, users, _ := newConsumer(t)
	c.cfg.Block = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	props, _ := json.Marshal(map[string]any{"user_id": "u1"})
	for i := 0; i < 2; i++ {
		_, err := log.Append(ctx, c.cfg.Stream, map[string]string{
			"name":             "scam_message_flagged",
			"event_properties": string(props),
		})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		u, err := users.Get(context.Background(), "u1")
		return err == nil && !u.Flag(store.FlagCanMessage)
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(log.Pending(c.cfg.Stream, c.cfg.Group)) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunFatalWhenGroupCreationFails(t *testing.T) {
	c, _, _, _ := newConsumer(t)
	c.log = brokenLog{}

	err := c.Run(context.Background())
	assert.Error(t, err)
}

type brokenLog struct{}

func (brokenLog) Append(context.Context, string, map[string]string) (string, error) {
	return "", errors.New("down")
}
func (brokenLog) CreateGroup(context.Context, string, string) error { return errors.New("down") }
func (brokenLog) ReadGroup(context.Context, string, string, string, int64, time.Duration) ([]Entry, error) {
	return nil, errors.New("down")
}
func (brokenLog) Ack(context.Context, string, string, ...string) error { return errors.New("down") }
