package payments

import (
	"context"
	"errors"
	"fmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"paygate/internal/decision"
	"paygate/internal/ids"
	"time"
)

const (
	maxWriteAttempts    = 5
	transportDiagPrefix = "ERROR: "
)

// TransitionRecorder receives every persisted status change. Record must not
// block.
type TransitionRecorder interface {
	Record(t Transition)
}

type noopRecorder struct{}

func (noopRecorder) Record(Transition) {}

// Orchestrator owns the payment lifecycle: it is the only component that
// changes a payment's status.
type Orchestrator struct {
	store       Store
	authorizer  Authorizer
	logger      *slog.Logger
	ids         ids.Generator
	now         func() time.Time
	recorder    TransitionRecorder
	authTimeout time.Duration
}

type Option func(*Orchestrator)

func WithIDGenerator(g ids.Generator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithTransitionRecorder(r TransitionRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithAuthorizationTimeout bounds the authorization call. Non-positive values
// keep the default.
func WithAuthorizationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.authTimeout = d
		}
	}
}

func NewOrchestrator(store Store, authorizer Authorizer, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		authorizer:  authorizer,
		logger:      logger,
		ids:         ids.NewUUIDGenerator(""),
		now:         time.Now,
		recorder:    noopRecorder{},
		authTimeout: DefaultAuthorizationTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var tracer = otel.Tracer("payment-orchestrator")

// Create records the payment, authorizes it once and stores the terminal
// state. Declines and transport failures come back as FAILED payments, not
// errors. Once the record exists, caller cancellation no longer interrupts
// the flow.
func (o *Orchestrator) Create(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "payments.create", trace.WithAttributes(
		attribute.String("payment.amount", req.Amount.String()),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	now := o.now().UTC()
	p := &Payment{
		ID:         o.ids.Next(),
		Amount:     *req.Amount,
		Currency:   req.Currency,
		Status:     StatusPending,
		PayerName:  req.PayerName,
		PayerEmail: req.PayerEmail,
		Account:    req.Account,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	span.SetAttributes(attribute.String("payment.id", p.ID))

	if err := o.store.Create(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	o.recorder.Record(Transition{PaymentID: p.ID, To: StatusPending, OccurredAt: now})

	ctx = context.WithoutCancel(ctx)

	p, err := o.transition(ctx, p, StatusProcessing, "", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance to processing failed")
		return nil, fmt.Errorf("advance payment %s: %w", p.ID, err)
	}

	final, detail, apply := o.authorize(ctx, p)

	p, err = o.transition(ctx, p, final, detail, apply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "final update failed")
		return nil, fmt.Errorf("finalize payment %s: %w", p.ID, err)
	}

	span.SetAttributes(attribute.String("payment.status", string(p.Status)))
	span.SetStatus(codes.Ok, "")
	return p, nil
}

// authorize performs the single authorization round-trip and decides the
// terminal status plus the fields to write with it.
func (o *Orchestrator) authorize(ctx context.Context, p *Payment) (Status, string, func(*Payment)) {
	ctx, cancel := context.WithTimeout(ctx, o.authTimeout)
	defer cancel()

	charge := decision.ChargeRequest{
		Amount:     p.Amount,
		Currency:   p.Currency,
		PayerName:  p.PayerName,
		PayerEmail: p.PayerEmail,
		Account:    p.Account,
		Metadata:   p.Metadata,
	}

	auth, err := o.authorizer.Authorize(ctx, charge)
	if err != nil {
		o.logger.Warn("authorization failed", "paymentId", p.ID, "error", err)
		diag := transportDiagPrefix + err.Error()
		return StatusFailed, diag, func(p *Payment) {
			p.ProviderResponse = diag
		}
	}

	outcome := auth.Outcome
	if outcome.Approved() && outcome.TransactionID != "" {
		return StatusCompleted, string(outcome.Disposition), func(p *Payment) {
			p.ProviderResponse = auth.Raw
			p.ProviderTransactionID = outcome.TransactionID
		}
	}

	detail := string(outcome.Disposition)
	if outcome.Reason != "" {
		detail += "/" + string(outcome.Reason)
	}
	if outcome.Approved() {
		o.logger.Warn("approval without transaction id", "paymentId", p.ID)
		detail += "/MISSING_TRANSACTION_ID"
	}
	o.logger.Info("payment not approved", "paymentId", p.ID, "outcome", detail)

	return StatusFailed, detail, func(p *Payment) {
		p.ProviderResponse = auth.Raw
	}
}

// transition persists a status change, re-reading and reapplying it when a
// concurrent writer bumped the version in between.
func (o *Orchestrator) transition(ctx context.Context, p *Payment, to Status, detail string, apply func(*Payment)) (*Payment, error) {
	current := p
	for range maxWriteAttempts {
		next := current.Clone()
		from := next.Status
		if err := next.Transition(to, o.now().UTC()); err != nil {
			return current, err
		}
		if apply != nil {
			apply(next)
		}

		err := o.store.Update(ctx, next)
		if err == nil {
			o.recorder.Record(Transition{PaymentID: next.ID, From: from, To: to, Detail: detail, OccurredAt: next.UpdatedAt})
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return current, err
		}

		o.logger.Debug("version conflict, retrying", "paymentId", p.ID, "to", to)
		fresh, err := o.store.Get(ctx, p.ID)
		if err != nil {
			return current, err
		}
		current = fresh
	}
	return current, ErrVersionConflict
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*Payment, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context) ([]*Payment, error) {
	return o.store.List(ctx)
}

// Update merges the present fields of patch into the payment. It never
// changes status and never re-runs authorization.
func (o *Orchestrator) Update(ctx context.Context, id string, patch PaymentPatch) (*Payment, error) {
	for range maxWriteAttempts {
		p, err := o.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		patch.Apply(p, o.now().UTC())

		err = o.store.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("update payment %s: %w", id, ErrVersionConflict)
}

func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.store.Delete(ctx, id)
}
