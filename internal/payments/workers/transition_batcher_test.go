package workers

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"paygate/internal/payments"
	"sync"
	"testing"
	"time"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]payments.Transition
	err     error
}

func (s *memorySink) WriteTransitions(_ context.Context, batch []payments.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]payments.Transition(nil), batch...))
	return nil
}

func (s *memorySink) snapshot() [][]payments.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]payments.Transition(nil), s.batches...)
}

func (s *memorySink) total() int {
	n := 0
	for _, b := range s.snapshot() {
		n += len(b)
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func transition(n int) payments.Transition {
	return payments.Transition{
		PaymentID:  fmt.Sprintf("p-%d", n),
		From:       payments.StatusPending,
		To:         payments.StatusProcessing,
		OccurredAt: time.Now().UTC(),
	}
}

func TestTransitionBatcher_FlushesFullBatch(t *testing.T) {
	sink := &memorySink{}
	b := NewTransitionBatcher(sink, discardLogger(), 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := range 3 {
		b.Record(transition(i))
	}

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.snapshot()[0], 3)
}

func TestTransitionBatcher_FlushesOnWindow(t *testing.T) {
	sink := &memorySink{}
	b := NewTransitionBatcher(sink, discardLogger(), 100, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Record(transition(1))
	b.Record(transition(2))

	require.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTransitionBatcher_DrainsOnShutdown(t *testing.T) {
	sink := &memorySink{}
	b := NewTransitionBatcher(sink, discardLogger(), 100, time.Hour)
	for i := range 5 {
		b.Record(transition(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go b.Run(ctx)

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("batcher did not stop")
	}
	assert.Equal(t, 5, sink.total())
}

func TestTransitionBatcher_DropsWhenBufferFull(t *testing.T) {
	sink := &memorySink{}
	b := NewTransitionBatcher(sink, discardLogger(), 1, time.Hour)

	// Not running, so nothing consumes the buffer.
	for i := range 20 {
		b.Record(transition(i))
	}
	assert.Len(t, b.bufferCh, cap(b.bufferCh))
}

func TestTransitionBatcher_SinkErrorDoesNotStopRun(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	b := NewTransitionBatcher(sink, discardLogger(), 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	b.Record(transition(1))
	b.Record(transition(2))
	cancel()

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("batcher did not stop")
	}
	assert.Empty(t, sink.snapshot())
}

func TestTransitionBatcher_RecordAfterShutdownIsDropped(t *testing.T) {
	sink := &memorySink{}
	b := NewTransitionBatcher(sink, discardLogger(), 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	b.Record(transition(1))
	cancel()
	<-b.Done()

	b.Record(transition(2))
	b.Record(transition(3))

	assert.Equal(t, 1, sink.total())
	assert.Empty(t, b.bufferCh)
}
