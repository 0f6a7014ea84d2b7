package decision

import (
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"paygate/internal/ids"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline() *Pipeline {
	return NewPipeline(ids.NewSequence("bank"), WithClock(func() time.Time { return fixedNow }))
}

func chargeOf(amount string) ChargeRequest {
	return ChargeRequest{
		Amount:     decimal.RequireFromString(amount),
		Currency:   "USD",
		PayerName:  "Alice",
		PayerEmail: "alice@example.com",
		Account:    "acct-1",
	}
}

func TestPipeline_AccountSentinelAlwaysDeclines(t *testing.T) {
	p := newTestPipeline()

	for _, account := range []string{"missing", "MISSING", "Missing", "mIsSiNg"} {
		req := chargeOf("10.00")
		req.Account = account
		req.PayerName = "fraud king"
		req.PayerEmail = "x@banned.com"

		out := p.Evaluate(req)

		assert.Equal(t, DispositionDeclined, out.Disposition, account)
		assert.Equal(t, ReasonAccountNotFound, out.Reason, account)
		assert.Empty(t, out.TransactionID)
		assert.True(t, out.DecidedAt.IsZero())
	}
}

func TestPipeline_FraudTokenInPayerName(t *testing.T) {
	p := newTestPipeline()

	for _, name := range []string{"fraud", "Mr FRAUDSTER", "defrauded", "xFrAuDx"} {
		req := chargeOf("10.00")
		req.PayerName = name
		req.PayerEmail = "x@banned.com"

		out := p.Evaluate(req)

		assert.Equal(t, ReasonFraudSuspected, out.Reason, name)
	}
}

func TestPipeline_SanctionedDomain(t *testing.T) {
	p := newTestPipeline()

	for _, email := range []string{"bob@banned.com", "BOB@BANNED.COM", "a.b@Banned.Com"} {
		req := chargeOf("10.00")
		req.PayerEmail = email

		out := p.Evaluate(req)

		assert.Equal(t, ReasonSanctionsBlock, out.Reason, email)
	}

	req := chargeOf("10.00")
	req.PayerEmail = "bob@notbanned.com"
	assert.True(t, p.Evaluate(req).Approved())
}

func TestPipeline_PaddedValuesDoNotMatch(t *testing.T) {
	p := newTestPipeline()

	padded := chargeOf("10.00")
	padded.Account = " missing "
	assert.True(t, p.Evaluate(padded).Approved())

	padded = chargeOf("10.00")
	padded.PayerEmail = "x@banned.com "
	assert.True(t, p.Evaluate(padded).Approved())
}

func TestPipeline_SettlementParity(t *testing.T) {
	p := newTestPipeline()

	cases := []struct {
		amount   string
		approved bool
	}{
		{"10.00", true},
		{"10.01", false},
		{"10.02", true},
		{"0", true},
		{"0.005", false},  // rounds to 1
		{"0.015", true},   // rounds to 2
		{"0.004", true},   // rounds to 0
		{"-0.005", false}, // rounds away from zero to -1
		{"123456789012345678901234.01", false},
	}

	for _, tc := range cases {
		out := p.Evaluate(chargeOf(tc.amount))
		if tc.approved {
			assert.True(t, out.Approved(), tc.amount)
			assert.Empty(t, out.Reason, tc.amount)
		} else {
			assert.Equal(t, DispositionDeclined, out.Disposition, tc.amount)
			assert.Equal(t, ReasonInsufficientFunds, out.Reason, tc.amount)
		}
	}
}

func TestPipeline_ApprovalCarriesFreshTransaction(t *testing.T) {
	p := newTestPipeline()

	first := p.Evaluate(chargeOf("10.00"))
	second := p.Evaluate(chargeOf("10.00"))

	require.True(t, first.Approved())
	assert.Equal(t, "bank-1", first.TransactionID)
	assert.Equal(t, "bank-2", second.TransactionID)
	assert.Equal(t, fixedNow, first.DecidedAt)
}

func TestPipeline_DeclineDoesNotConsumeTransactionID(t *testing.T) {
	p := newTestPipeline()

	declined := p.Evaluate(chargeOf("10.01"))
	approved := p.Evaluate(chargeOf("10.00"))

	assert.Empty(t, declined.TransactionID)
	assert.Equal(t, "bank-1", approved.TransactionID)
}

func TestPipeline_ConcreteScenarios(t *testing.T) {
	p := newTestPipeline()

	missing := chargeOf("10.00")
	missing.Account = "missing"
	out := p.Evaluate(missing)
	assert.Equal(t, DispositionDeclined, out.Disposition)
	assert.Equal(t, ReasonAccountNotFound, out.Reason)

	assert.Equal(t, int64(1000), MinorUnits(decimal.RequireFromString("10.00")).IntPart())
	assert.True(t, p.Evaluate(chargeOf("10.00")).Approved())

	assert.Equal(t, int64(1001), MinorUnits(decimal.RequireFromString("10.01")).IntPart())
	assert.Equal(t, ReasonInsufficientFunds, p.Evaluate(chargeOf("10.01")).Reason)
}

type recordingCheck struct {
	name    string
	verdict Verdict
	fires   bool
	calls   *[]string
}

func (c recordingCheck) Name() string { return c.name }

func (c recordingCheck) Evaluate(ChargeRequest) (Verdict, bool) {
	*c.calls = append(*c.calls, c.name)
	return c.verdict, c.fires
}

func TestPipeline_FirstMatchWinsAndShortCircuits(t *testing.T) {
	var calls []string
	p := NewPipeline(ids.NewSequence("tx"), WithChecks(
		recordingCheck{name: "a", calls: &calls},
		recordingCheck{name: "b", verdict: Decline("B"), fires: true, calls: &calls},
		recordingCheck{name: "c", verdict: Decline("C"), fires: true, calls: &calls},
	))

	out := p.Evaluate(chargeOf("10.00"))

	assert.Equal(t, Reason("B"), out.Reason)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestPipeline_NoCheckFiresApproves(t *testing.T) {
	p := NewPipeline(ids.NewSequence("tx"), WithChecks())

	out := p.Evaluate(chargeOf("10.01"))

	assert.True(t, out.Approved())
	assert.Equal(t, "tx-1", out.TransactionID)
}

func TestRules_EmptyPlaceholdersNeverFire(t *testing.T) {
	p := NewPipeline(ids.NewSequence("tx"), WithChecks(Rules{}.Checks()...))

	req := chargeOf("10.00")
	req.Account = ""
	req.PayerName = ""

	assert.True(t, p.Evaluate(req).Approved())
}

func TestRules_CustomPlaceholders(t *testing.T) {
	rules := Rules{
		AccountSentinel:   "closed",
		FraudToken:        "mallory",
		SanctionedDomains: []string{"blocked.example", "denied.example"},
	}
	p := NewPipeline(ids.NewSequence("tx"), WithChecks(rules.Checks()...))

	req := chargeOf("10.00")
	req.Account = "missing"
	assert.True(t, p.Evaluate(req).Approved())

	req.Account = "Closed"
	assert.Equal(t, ReasonAccountNotFound, p.Evaluate(req).Reason)

	req = chargeOf("10.00")
	req.PayerEmail = "eve@denied.example"
	assert.Equal(t, ReasonSanctionsBlock, p.Evaluate(req).Reason)
}
