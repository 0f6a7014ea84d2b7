package decision

import (
	"paygate/internal/ids"
	"time"
)

// Pipeline evaluates its checks in order; the first one that fires decides.
// A request that no check fires on is approved.
type Pipeline struct {
	checks []Check
	ids    ids.Generator
	now    func() time.Time
}

type Option func(*Pipeline)

func WithChecks(checks ...Check) Option {
	return func(p *Pipeline) {
		p.checks = checks
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(transactionIDs ids.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		checks: DefaultRules().Checks(),
		ids:    transactionIDs,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Evaluate(req ChargeRequest) ChargeOutcome {
	verdict := Approve()
	for _, check := range p.checks {
		if v, fired := check.Evaluate(req); fired {
			verdict = v
			break
		}
	}

	if verdict.Disposition != DispositionApproved {
		return ChargeOutcome{Disposition: verdict.Disposition, Reason: verdict.Reason}
	}

	return ChargeOutcome{
		Disposition:   DispositionApproved,
		TransactionID: p.ids.Next(),
		DecidedAt:     p.now().UTC(),
	}
}
