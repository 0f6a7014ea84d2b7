package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
)

// ChargePayload is the JSON body of a charge call. Amount is kept raw so both
// numbers and numeric strings are accepted, and so it is sent as a JSON number
// without going through float64.
type ChargePayload struct {
	Amount     json.RawMessage `json:"amount,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	PayerName  string          `json:"payerName,omitempty"`
	PayerEmail string          `json:"payerEmail,omitempty"`
	Account    string          `json:"account,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

func NewChargePayload(req ChargeRequest) ChargePayload {
	return ChargePayload{
		Amount:     json.RawMessage(req.Amount.String()),
		Currency:   req.Currency,
		PayerName:  req.PayerName,
		PayerEmail: req.PayerEmail,
		Account:    req.Account,
		Metadata:   req.Metadata,
	}
}

// ChargeRequest converts the payload. With lenient set, a missing or
// unparseable amount decodes as zero instead of failing.
func (p ChargePayload) ChargeRequest(lenient bool) (ChargeRequest, error) {
	amount, err := parseAmount(p.Amount)
	if err != nil {
		if !lenient {
			return ChargeRequest{}, err
		}
		amount = decimal.Zero
	}

	return ChargeRequest{
		Amount:     amount,
		Currency:   p.Currency,
		PayerName:  p.PayerName,
		PayerEmail: p.PayerEmail,
		Account:    p.Account,
		Metadata:   p.Metadata,
	}, nil
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		text = strings.TrimSpace(text)
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return amount, nil
}

// OutcomePayload is the JSON body of a charge response. ApprovedAt is epoch
// milliseconds.
type OutcomePayload struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	ApprovedAt    int64  `json:"approvedAt,omitempty"`
}

func NewOutcomePayload(o ChargeOutcome) OutcomePayload {
	payload := OutcomePayload{
		Status:        string(o.Disposition),
		Reason:        string(o.Reason),
		TransactionID: o.TransactionID,
	}
	if !o.DecidedAt.IsZero() {
		payload.ApprovedAt = o.DecidedAt.UnixMilli()
	}
	return payload
}

// Outcome maps the payload back. Status is matched case-insensitively; an
// unknown or empty status is kept as is and is not an approval.
func (p OutcomePayload) Outcome() ChargeOutcome {
	o := ChargeOutcome{
		Disposition:   Disposition(strings.ToUpper(strings.TrimSpace(p.Status))),
		Reason:        Reason(p.Reason),
		TransactionID: p.TransactionID,
	}
	if p.ApprovedAt > 0 {
		o.DecidedAt = time.UnixMilli(p.ApprovedAt).UTC()
	}
	return o
}
