package handler

import (
	"github.com/zacharyclement/feature-restrictions/internal/event"
	"github.com/zacharyclement/feature-restrictions/internal/rules"
	"github.com/zacharyclement/feature-restrictions/internal/store"
)

// Registry returns the event-name → handler table.
func Registry(users *store.UserStore) map[string]Handler {
	return map[string]Handler{
		event.CreditCardAdded:    CreditCardAdded{Users: users},
		event.ScamMessageFlagged: ScamMessageFlagged{Users: users},
		event.ChargebackOccurred: ChargebackOccurred{Users: users},
		event.PurchaseMade:       PurchaseMade{Users: users},
	}
}

// EventRules is the event-name → rule-names table. purchase_made runs no
// rules; its spend only matters to the chargeback ratio, checked when the
// chargeback lands.
var EventRules = map[string][]string{
	event.CreditCardAdded:    {rules.UniqueZipCodeRuleName},
	event.ScamMessageFlagged: {rules.ScamMessageRuleName},
	event.ChargebackOccurred: {rules.ChargebackRatioRuleName},
	event.PurchaseMade:       {},
}
