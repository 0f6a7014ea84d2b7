package workers

import (
	"context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"paygate/internal/payments"
	"sync"
	"time"
)

const (
	DefaultMaxBatchSize   = 100
	DefaultMaxBatchWindow = 50 * time.Millisecond
	flushTimeout          = 5 * time.Second
)

// TransitionSink persists a batch of transitions.
type TransitionSink interface {
	WriteTransitions(ctx context.Context, batch []payments.Transition) error
}

// TransitionBatcher buffers status transitions and writes them in batches,
// either when a batch fills up or when the batch window elapses. Record never
// blocks: when the buffer is full the transition is dropped and logged.
type TransitionBatcher struct {
	sink         TransitionSink
	bufferCh     chan payments.Transition
	logger       *slog.Logger
	maxBatchSize int
	batchWindow  time.Duration
	done         chan struct{}

	mu      sync.RWMutex
	stopped bool
}

func NewTransitionBatcher(sink TransitionSink, logger *slog.Logger, maxBatchSize int, batchWindow time.Duration) *TransitionBatcher {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if batchWindow <= 0 {
		batchWindow = DefaultMaxBatchWindow
	}
	return &TransitionBatcher{
		sink:         sink,
		bufferCh:     make(chan payments.Transition, 10*maxBatchSize),
		logger:       logger,
		maxBatchSize: maxBatchSize,
		batchWindow:  batchWindow,
		done:         make(chan struct{}),
	}
}

// Record enqueues t. Once Run has started shutting down, transitions are
// dropped and logged instead of being left in an unread buffer.
func (b *TransitionBatcher) Record(t payments.Transition) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.logger.Error("Transition batcher stopped, dropping transition", "paymentId", t.PaymentID, "to", t.To)
		return
	}
	select {
	case b.bufferCh <- t:
	default:
		b.logger.Error("Transition buffer is full, dropping transition", "paymentId", t.PaymentID, "to", t.To)
	}
}

// Run consumes the buffer until ctx is cancelled, then flushes whatever is
// still buffered and closes Done.
func (b *TransitionBatcher) Run(ctx context.Context) {
	defer close(b.done)

	var (
		batch   []payments.Transition
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	addToBatch := func(t payments.Transition) {
		batch = append(batch, t)
		if len(batch) == 1 {
			if timer == nil {
				timer = time.NewTimer(b.batchWindow)
			} else {
				timer.Reset(b.batchWindow)
			}
			timerCh = timer.C
		}
		if len(batch) >= b.maxBatchSize {
			b.flush(batch)
			batch = nil
			if timer != nil {
				timer.Stop()
			}
			timerCh = nil
		}
	}

	for {
		select {
		case t := <-b.bufferCh:
			addToBatch(t)
		case <-timerCh:
			if len(batch) > 0 {
				b.logger.Debug("Flushing transitions", "batchSize", len(batch))
				b.flush(batch)
				batch = nil
			}
			timerCh = nil
		case <-ctx.Done():
			b.mu.Lock()
			b.stopped = true
			b.mu.Unlock()
		drain:
			for {
				select {
				case t := <-b.bufferCh:
					batch = append(batch, t)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				b.flush(batch)
			}
			return
		}
	}
}

// Done is closed once Run has drained and returned.
func (b *TransitionBatcher) Done() <-chan struct{} {
	return b.done
}

var tracer = otel.Tracer("transition-batcher")

func (b *TransitionBatcher) flush(batch []payments.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "transition_batcher.flush", trace.WithAttributes(
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	if err := b.sink.WriteTransitions(ctx, batch); err != nil {
		b.logger.Error("failed to write transitions", "error", err, "batchSize", len(batch))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("rows.inserted", len(batch)))
}
