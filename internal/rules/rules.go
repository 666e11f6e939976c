// Package rules holds the abuse-detection rules and the engine that runs
// them against user aggregates.
//
// Rules are split into a pure predicate (Evaluate) and a flag mutation
// (Apply); the Engine owns the processing sequence: tripwire gate, evaluate,
// apply, persist. Recording the activation with the tripwire is the
// consumer's job, after Process returns Applied — a rule's first activation
// never counts itself before its own gate check.
package rules

import (
	"github.com/zacharyclement/feature-restrictions/internal/store"
)

// Rule names. These are also the tripwire keys.
const (
	UniqueZipCodeRuleName   = "unique_zip_code_rule"
	ScamMessageRuleName     = "scam_message_rule"
	ChargebackRatioRuleName = "chargeback_ratio_rule"
)

// Rule is one abuse-detection rule: a predicate over the aggregate and an
// action that flips access flags. Predicates never error; zero denominators
// evaluate to false.
type Rule interface {
	Name() string
	Evaluate(u *store.UserAggregate) bool
	Apply(u *store.UserAggregate)
}

// UniqueZipCodeRule flags card-testing behavior: more than two cards where
// over 75% of them carry distinct zip codes.
type UniqueZipCodeRule struct{}

func (UniqueZipCodeRule) Name() string { return UniqueZipCodeRuleName }

func (UniqueZipCodeRule) Evaluate(u *store.UserAggregate) bool {
	if u.TotalCreditCards <= 2 {
		return false
	}
	ratio := float64(len(u.UniqueZipCodes)) / float64(u.TotalCreditCards)
	return ratio > 0.75
}

func (UniqueZipCodeRule) Apply(u *store.UserAggregate) {
	u.AccessFlags[store.FlagCanPurchase] = false
}

// ScamMessageRule mutes users whose messages were flagged as scams twice.
type ScamMessageRule struct{}

func (ScamMessageRule) Name() string { return ScamMessageRuleName }

func (ScamMessageRule) Evaluate(u *store.UserAggregate) bool {
	return u.ScamMessageFlags >= 2
}

func (ScamMessageRule) Apply(u *store.UserAggregate) {
	u.AccessFlags[store.FlagCanMessage] = false
}

// ChargebackRatioRule blocks purchasing when chargebacks exceed 10% of spend.
type ChargebackRatioRule struct{}

func (ChargebackRatioRule) Name() string { return ChargebackRatioRuleName }

func (ChargebackRatioRule) Evaluate(u *store.UserAggregate) bool {
	if u.TotalSpend == 0 {
		return false
	}
	return u.TotalChargebacks/u.TotalSpend > 0.10
}

func (ChargebackRatioRule) Apply(u *store.UserAggregate) {
	u.AccessFlags[store.FlagCanPurchase] = false
}

// Defaults returns the rule lookup table. Compile-time registry — no
// reflection, no runtime registration.
func Defaults() map[string]Rule {
	return map[string]Rule{
		UniqueZipCodeRuleName:   UniqueZipCodeRule{},
		ScamMessageRuleName:     ScamMessageRule{},
		ChargebackRatioRuleName: ChargebackRatioRule{},
	}
}
