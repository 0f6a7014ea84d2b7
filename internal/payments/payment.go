package payments

import (
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"maps"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a payment may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

var (
	ErrInvalidPayment    = errors.New("invalid payment")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Payment struct {
	ID                    string          `json:"id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                Status          `json:"status"`
	PayerName             string          `json:"payerName,omitempty"`
	PayerEmail            string          `json:"payerEmail,omitempty"`
	Account               string          `json:"account,omitempty"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	ProviderResponse      string          `json:"providerResponse,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	Version               int64           `json:"version"`
}

func (p *Payment) Clone() *Payment {
	c := *p
	c.Metadata = maps.Clone(p.Metadata)
	return &c
}

// Transition moves the payment forward and touches UpdatedAt.
func (p *Payment) Transition(next Status, at time.Time) error {
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.touch(at)
	return nil
}

// touch never lets UpdatedAt go backwards, even with a skewed clock.
func (p *Payment) touch(at time.Time) {
	if at.Before(p.UpdatedAt) {
		return
	}
	p.UpdatedAt = at
}

type CreatePaymentRequest struct {
	Amount     *decimal.Decimal `json:"amount"`
	Currency   string           `json:"currency"`
	PayerName  string           `json:"payerName"`
	PayerEmail string           `json:"payerEmail"`
	Account    string           `json:"account"`
	Metadata   map[string]any   `json:"metadata"`
}

func (r CreatePaymentRequest) Validate() error {
	if r.Amount == nil {
		return fmt.Errorf("%w: amount is required", ErrInvalidPayment)
	}
	if strings.TrimSpace(r.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidPayment)
	}
	return nil
}

// PaymentPatch is a partial update: only non-nil fields are applied.
type PaymentPatch struct {
	Amount     *decimal.Decimal `json:"amount"`
	Currency   *string          `json:"currency"`
	PayerName  *string          `json:"payerName"`
	PayerEmail *string          `json:"payerEmail"`
	Account    *string          `json:"account"`
}

func (pp PaymentPatch) Empty() bool {
	return pp.Amount == nil && pp.Currency == nil && pp.PayerName == nil && pp.PayerEmail == nil && pp.Account == nil
}

func (pp PaymentPatch) Apply(p *Payment, at time.Time) {
	if pp.Amount != nil {
		p.Amount = *pp.Amount
	}
	if pp.Currency != nil {
		p.Currency = *pp.Currency
	}
	if pp.PayerName != nil {
		p.PayerName = *pp.PayerName
	}
	if pp.PayerEmail != nil {
		p.PayerEmail = *pp.PayerEmail
	}
	if pp.Account != nil {
		p.Account = *pp.Account
	}
	p.touch(at)
}

// Transition is one persisted status change, kept for audit.
type Transition struct {
	PaymentID  string
	From       Status
	To         Status
	Detail     string
	OccurredAt time.Time
}
