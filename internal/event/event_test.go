package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDCoercion(t *testing.T) {
	ev := &Event{Name: ScamMessageFlagged, Properties: map[string]any{"user_id": "u1"}}
	id, err := ev.UserID()
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	// JSON numbers decode to float64 and must coerce without a decimal tail.
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(`{"name":"scam_message_flagged","event_properties":{"user_id":42}}`), &decoded))
	id, err = decoded.UserID()
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestUserIDMissingOrInvalid(t *testing.T) {
	ev := &Event{Name: ScamMessageFlagged, Properties: map[string]any{}}
	_, err := ev.UserID()
	assert.ErrorIs(t, err, ErrBadEvent)

	ev = &Event{Name: ScamMessageFlagged, Properties: map[string]any{"user_id": true}}
	_, err = ev.UserID()
	assert.ErrorIs(t, err, ErrBadEvent)

	ev = &Event{Name: ScamMessageFlagged, Properties: map[string]any{"user_id": ""}}
	_, err = ev.UserID()
	assert.ErrorIs(t, err, ErrBadEvent)
}

func TestValidate(t *testing.T) {
	valid := &Event{Name: PurchaseMade, Properties: map[string]any{"user_id": "u1", "amount": 10.0}}
	assert.NoError(t, valid.Validate())

	missingName := &Event{Properties: map[string]any{"user_id": "u1"}}
	assert.ErrorIs(t, missingName.Validate(), ErrBadEvent)

	unknown := &Event{Name: "mystery_event", Properties: map[string]any{"user_id": "u1"}}
	assert.ErrorIs(t, unknown.Validate(), ErrBadEvent)

	empty := &Event{Name: PurchaseMade, Properties: map[string]any{}}
	assert.ErrorIs(t, empty.Validate(), ErrBadEvent)
}

func TestPropAccessors(t *testing.T) {
	ev := &Event{Name: CreditCardAdded, Properties: map[string]any{
		"user_id":  "u1",
		"card_id":  "c1",
		"zip_code": float64(10001),
		"amount":   "12.5",
	}}

	card, ok := ev.StringProp("card_id")
	require.True(t, ok)
	assert.Equal(t, "c1", card)

	zip, ok := ev.StringProp("zip_code")
	require.True(t, ok)
	assert.Equal(t, "10001", zip)

	amount, ok := ev.NumberProp("amount")
	require.True(t, ok)
	assert.Equal(t, 12.5, amount)

	_, ok = ev.NumberProp("missing")
	assert.False(t, ok)
}
