// Package event defines the wire model for behavioral events.
//
// Events arrive as JSON at the ingress and travel through the durable log
// with their properties serialized to a JSON string (one stream field per
// event). Everything here is pure data — no Redis, no HTTP.
package event

import (
	"errors"
	"fmt"
	"strconv"
)

// The known event names. Anything else is rejected at ingress and dropped
// by the consumer.
const (
	CreditCardAdded    = "credit_card_added"
	ScamMessageFlagged = "scam_message_flagged"
	ChargebackOccurred = "chargeback_occurred"
	PurchaseMade       = "purchase_made"
)

// ErrBadEvent marks validation failures on the event envelope itself:
// missing name, unknown name, empty or invalid properties, missing user_id.
// Events carrying this error never enter the stream.
var ErrBadEvent = errors.New("bad event")

var knownNames = map[string]bool{
	CreditCardAdded:    true,
	ScamMessageFlagged: true,
	ChargebackOccurred: true,
	PurchaseMade:       true,
}

// Known reports whether name is one of the supported event names.
func Known(name string) bool {
	return knownNames[name]
}

// Event is a single behavioral event for one user.
type Event struct {
	// ID is assigned by the publisher when the event is appended to the
	// stream. Used for trace logging only.
	ID string `json:"event_id,omitempty"`

	Name       string         `json:"name"`
	Properties map[string]any `json:"event_properties"`
}

// UserID extracts the user id from the event properties. Numeric values are
// coerced to their string form ("42", not "42.000000") so producers that
// send numbers still address the same aggregate.
func (e *Event) UserID() (string, error) {
	raw, ok := e.Properties["user_id"]
	if !ok {
		return "", fmt.Errorf("%w: missing 'user_id' in event_properties", ErrBadEvent)
	}
	id, ok := coerceString(raw)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: invalid 'user_id' %v", ErrBadEvent, raw)
	}
	return id, nil
}

// Validate checks the envelope the way the ingress does: known name,
// non-empty properties, and a usable user_id.
func (e *Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: missing 'name'", ErrBadEvent)
	}
	if !Known(e.Name) {
		return fmt.Errorf("%w: unknown event name %q", ErrBadEvent, e.Name)
	}
	if len(e.Properties) == 0 {
		return fmt.Errorf("%w: empty 'event_properties'", ErrBadEvent)
	}
	_, err := e.UserID()
	return err
}

// StringProp returns the property as a string, coercing numeric values.
func (e *Event) StringProp(key string) (string, bool) {
	raw, ok := e.Properties[key]
	if !ok {
		return "", false
	}
	return coerceString(raw)
}

// NumberProp returns the property as a float64.
func (e *Event) NumberProp(key string) (float64, bool) {
	raw, ok := e.Properties[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		// JSON numbers decode to float64; 42 must come out as "42".
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}
