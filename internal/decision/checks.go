package decision

import (
	"github.com/shopspring/decimal"
	"strings"
)

const (
	DefaultAccountSentinel = "missing"
	DefaultFraudToken      = "fraud"
	DefaultSanctionedHost  = "banned.com"
)

// Verdict is what a Check contributes when it fires.
type Verdict struct {
	Disposition Disposition
	Reason      Reason
}

func Approve() Verdict {
	return Verdict{Disposition: DispositionApproved}
}

func Decline(reason Reason) Verdict {
	return Verdict{Disposition: DispositionDeclined, Reason: reason}
}

// Check is one rule of the pipeline. Evaluate must be free of side effects;
// the boolean reports whether the check fired.
type Check interface {
	Name() string
	Evaluate(req ChargeRequest) (Verdict, bool)
}

// AccountCheck stands in for an account registry lookup: the sentinel
// account reference is treated as unknown.
type AccountCheck struct {
	Sentinel string
}

func (c AccountCheck) Name() string { return "account" }

func (c AccountCheck) Evaluate(req ChargeRequest) (Verdict, bool) {
	if c.Sentinel == "" || !strings.EqualFold(req.Account, c.Sentinel) {
		return Verdict{}, false
	}
	return Decline(ReasonAccountNotFound), true
}

type FraudCheck struct {
	Token string
}

func (c FraudCheck) Name() string { return "fraud" }

func (c FraudCheck) Evaluate(req ChargeRequest) (Verdict, bool) {
	if c.Token == "" {
		return Verdict{}, false
	}
	if !strings.Contains(strings.ToLower(req.PayerName), strings.ToLower(c.Token)) {
		return Verdict{}, false
	}
	return Decline(ReasonFraudSuspected), true
}

// SanctionsCheck blocks payers whose email domain is on the list.
type SanctionsCheck struct {
	Domains []string
}

func (c SanctionsCheck) Name() string { return "sanctions" }

func (c SanctionsCheck) Evaluate(req ChargeRequest) (Verdict, bool) {
	at := strings.LastIndexByte(req.PayerEmail, '@')
	if at < 0 {
		return Verdict{}, false
	}
	domain := req.PayerEmail[at+1:]
	for _, d := range c.Domains {
		if d != "" && strings.EqualFold(domain, d) {
			return Decline(ReasonSanctionsBlock), true
		}
	}
	return Verdict{}, false
}

// SettlementCheck is a funds-availability placeholder: even minor-unit
// amounts settle, odd ones are declined. It always fires.
type SettlementCheck struct{}

func (SettlementCheck) Name() string { return "settlement" }

func (SettlementCheck) Evaluate(req ChargeRequest) (Verdict, bool) {
	if MinorUnits(req.Amount).BigInt().Bit(0) == 0 {
		return Approve(), true
	}
	return Decline(ReasonInsufficientFunds), true
}

// MinorUnits converts an amount to cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(2).Round(0)
}

// Rules carries the tunable placeholders of the built-in checks.
type Rules struct {
	AccountSentinel   string
	FraudToken        string
	SanctionedDomains []string
}

func DefaultRules() Rules {
	return Rules{
		AccountSentinel:   DefaultAccountSentinel,
		FraudToken:        DefaultFraudToken,
		SanctionedDomains: []string{DefaultSanctionedHost},
	}
}

// Checks returns the built-in checks in evaluation order.
func (r Rules) Checks() []Check {
	return []Check{
		AccountCheck{Sentinel: r.AccountSentinel},
		FraudCheck{Token: r.FraudToken},
		SanctionsCheck{Domains: r.SanctionedDomains},
		SettlementCheck{},
	}
}
