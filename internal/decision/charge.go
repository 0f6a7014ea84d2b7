package decision

import (
	"github.com/shopspring/decimal"
	"time"
)

type Disposition string

const (
	DispositionApproved Disposition = "APPROVED"
	DispositionDeclined Disposition = "DECLINED"
)

type Reason string

const (
	ReasonAccountNotFound   Reason = "ACCOUNT_NOT_FOUND"
	ReasonFraudSuspected    Reason = "FRAUD_SUSPECTED"
	ReasonSanctionsBlock    Reason = "AML_SANCTIONS_BLOCK"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
)

// ChargeRequest is the input of a single authorization decision.
type ChargeRequest struct {
	Amount     decimal.Decimal
	Currency   string
	PayerName  string
	PayerEmail string
	Account    string
	Metadata   map[string]any
}

// ChargeOutcome is the verdict for a ChargeRequest. TransactionID and
// DecidedAt are only set on approvals, Reason only on declines.
type ChargeOutcome struct {
	Disposition   Disposition
	Reason        Reason
	TransactionID string
	DecidedAt     time.Time
}

func (o ChargeOutcome) Approved() bool {
	return o.Disposition == DispositionApproved
}
