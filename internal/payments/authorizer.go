package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"io"
	"net/http"
	"paygate/internal/decision"
	"sync"
	"time"
)

const (
	DefaultAuthorizationTimeout = 5 * time.Second
	maxResponseBytes            = 64 << 10
)

var (
	ErrDecisionUnavailable = errors.New("decision service unavailable")
	ErrMalformedResponse   = errors.New("malformed decision response")
)

// TransportError is any failure that prevented a complete authorization
// round-trip. The remote side may still have processed the charge.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Authorization is a completed round-trip: the decoded outcome plus the raw
// response body, which is kept for audit only.
type Authorization struct {
	Outcome decision.ChargeOutcome
	Raw     string
}

// Authorizer issues one blocking charge request. Implementations must not
// retry and must respect ctx's deadline.
type Authorizer interface {
	Authorize(ctx context.Context, req decision.ChargeRequest) (*Authorization, error)
}

type HTTPAuthorizer struct {
	chargeURL  string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPAuthorizer(httpClient *http.Client, chargeURL string, timeout time.Duration) *HTTPAuthorizer {
	if timeout <= 0 {
		timeout = DefaultAuthorizationTimeout
	}
	return &HTTPAuthorizer{
		chargeURL:  chargeURL,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

var bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

func (a *HTTPAuthorizer) Authorize(ctx context.Context, charge decision.ChargeRequest) (*Authorization, error) {
	tracer := otel.Tracer("decision-client")
	ctx, span := tracer.Start(ctx, "call-decision-service", trace.WithAttributes(
		attribute.String("service.url", a.chargeURL),
		attribute.String("charge.amount", charge.Amount.String()),
		attribute.String("charge.currency", charge.Currency),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	budget := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		budget = time.Until(deadline).Round(time.Millisecond)
	}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := sonic.ConfigStd.NewEncoder(buf).Encode(decision.NewChargePayload(charge)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to serialize request body")
		return nil, fmt.Errorf("failed to serialize the request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.chargeURL, buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create HTTP request")
		return nil, fmt.Errorf("unable to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	span.AddEvent("sending-http-request")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error sending HTTP request")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransportError{Op: "charge", Err: fmt.Errorf("%w: timed out after %s", ErrDecisionUnavailable, budget)}
		}
		return nil, &TransportError{Op: "charge", Err: fmt.Errorf("%w: %v", ErrDecisionUnavailable, err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error reading HTTP response")
		return nil, &TransportError{Op: "charge", Err: fmt.Errorf("%w: reading body: %v", ErrDecisionUnavailable, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "Unexpected HTTP status")
		return nil, &TransportError{Op: "charge", Err: fmt.Errorf("%w: status %d: %s", ErrMalformedResponse, resp.StatusCode, bytes.TrimSpace(body))}
	}

	var payload decision.OutcomePayload
	if err := sonic.ConfigStd.Unmarshal(body, &payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode response body")
		return nil, &TransportError{Op: "charge", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	outcome := payload.Outcome()
	span.SetAttributes(
		attribute.String("charge.disposition", string(outcome.Disposition)),
		attribute.String("charge.reason", string(outcome.Reason)),
	)
	span.SetStatus(codes.Ok, "Decision service call successful")

	return &Authorization{Outcome: outcome, Raw: string(body)}, nil
}
