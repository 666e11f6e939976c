// Package handler maps event names to the mutations they perform on a user
// aggregate, and to the rules that must run afterwards.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zacharyclement/feature-restrictions/internal/event"
	"github.com/zacharyclement/feature-restrictions/internal/store"
)

var (
	// ErrBadProperties marks a handler that found a required property
	// missing. Per-event terminal: the consumer logs, acks and drops.
	ErrBadProperties = errors.New("bad event properties")

	// ErrUnknownEvent marks an event name with no registered handler.
	ErrUnknownEvent = errors.New("unknown event name")
)

// Handler mutates the aggregate from an event's payload and persists it.
type Handler interface {
	EventName() string
	Handle(ctx context.Context, ev *event.Event, u *store.UserAggregate) error
}

// CreditCardAdded records a new card and its zip code. Idempotent: a card_id
// already on file is a no-op, so at-least-once redelivery cannot inflate the
// counters.
type CreditCardAdded struct {
	Users *store.UserStore
}

func (CreditCardAdded) EventName() string { return event.CreditCardAdded }

func (h CreditCardAdded) Handle(ctx context.Context, ev *event.Event, u *store.UserAggregate) error {
	cardID, ok := ev.StringProp("card_id")
	if !ok || cardID == "" {
		return fmt.Errorf("%w: 'card_id' is required", ErrBadProperties)
	}
	zip, ok := ev.StringProp("zip_code")
	if !ok || zip == "" {
		return fmt.Errorf("%w: 'zip_code' is required", ErrBadProperties)
	}

	if _, exists := u.CreditCards[cardID]; !exists {
		u.CreditCards[cardID] = zip
		u.TotalCreditCards++
		u.AddUniqueZip(zip)
	}
	return h.Users.Save(ctx, u)
}

// ScamMessageFlagged increments the scam counter. Not idempotent; redelivery
// over-counts, an accepted trade-off of at-least-once processing.
type ScamMessageFlagged struct {
	Users *store.UserStore
}

func (ScamMessageFlagged) EventName() string { return event.ScamMessageFlagged }

func (h ScamMessageFlagged) Handle(ctx context.Context, ev *event.Event, u *store.UserAggregate) error {
	u.ScamMessageFlags++
	return h.Users.Save(ctx, u)
}

// ChargebackOccurred adds the chargeback amount to the running total.
type ChargebackOccurred struct {
	Users *store.UserStore
}

func (ChargebackOccurred) EventName() string { return event.ChargebackOccurred }

func (h ChargebackOccurred) Handle(ctx context.Context, ev *event.Event, u *store.UserAggregate) error {
	amount, ok := ev.NumberProp("amount")
	if !ok {
		return fmt.Errorf("%w: 'amount' is required", ErrBadProperties)
	}
	u.TotalChargebacks += amount
	return h.Users.Save(ctx, u)
}

// PurchaseMade adds the purchase amount to total spend. No rules run after
// it; the chargeback ratio is re-checked on the next chargeback event.
type PurchaseMade struct {
	Users *store.UserStore
}

func (PurchaseMade) EventName() string { return event.PurchaseMade }

func (h PurchaseMade) Handle(ctx context.Context, ev *event.Event, u *store.UserAggregate) error {
	amount, ok := ev.NumberProp("amount")
	if !ok {
		return fmt.Errorf("%w: 'amount' is required", ErrBadProperties)
	}
	u.TotalSpend += amount
	slog.Debug("[Handler] Purchase recorded", "user_id", u.UserID, "total_spend", u.TotalSpend)
	return h.Users.Save(ctx, u)
}
