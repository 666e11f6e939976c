package store

import (
	"fmt"
	"sort"
	"strings"
)

// Access flag keys on a user aggregate.
const (
	FlagCanMessage  = "can_message"
	FlagCanPurchase = "can_purchase"
)

// UserAggregate is the whole persisted object for one user: counters, the
// credit-card map, the zip-code set, and the two access flags. It is
// serialized whole (read-modify-write) — the store has no partial updates.
type UserAggregate struct {
	UserID           string            `json:"user_id"`
	ScamMessageFlags int               `json:"scam_message_flags"`
	CreditCards      map[string]string `json:"credit_cards"` // card_id -> zip_code
	TotalCreditCards int               `json:"total_credit_cards"`
	UniqueZipCodes   []string          `json:"unique_zip_codes"`
	TotalSpend       float64           `json:"total_spend"`
	TotalChargebacks float64           `json:"total_chargebacks"`
	AccessFlags      map[string]bool   `json:"access_flags"`
}

// NewUserAggregate returns a default aggregate: all counters zero, both
// access flags true.
func NewUserAggregate(userID string) *UserAggregate {
	return &UserAggregate{
		UserID:      userID,
		CreditCards: map[string]string{},
		AccessFlags: map[string]bool{
			FlagCanMessage:  true,
			FlagCanPurchase: true,
		},
	}
}

// Flag returns an access flag, defaulting to true when the key is absent.
func (u *UserAggregate) Flag(key string) bool {
	v, ok := u.AccessFlags[key]
	if !ok {
		return true
	}
	return v
}

// AddUniqueZip adds a zip code to the unique set if not already present.
func (u *UserAggregate) AddUniqueZip(zip string) {
	for _, z := range u.UniqueZipCodes {
		if z == zip {
			return
		}
	}
	u.UniqueZipCodes = append(u.UniqueZipCodes, zip)
}

// String renders the aggregate for debug logs.
func (u *UserAggregate) String() string {
	zips := append([]string(nil), u.UniqueZipCodes...)
	sort.Strings(zips)
	return fmt.Sprintf(
		"user_id=%s scam_flags=%d cards=%d zips=[%s] spend=%.2f chargebacks=%.2f can_message=%t can_purchase=%t",
		u.UserID, u.ScamMessageFlags, u.TotalCreditCards, strings.Join(zips, ","),
		u.TotalSpend, u.TotalChargebacks, u.Flag(FlagCanMessage), u.Flag(FlagCanPurchase),
	)
}
