package job

import (
	"context"
	"testing"
	"time"

	"signal-alert/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubRepricer struct {
	calls   int
	updates []domain.PositionUpdate
}

func (s *stubRepricer) RepriceAll(ctx context.Context) []domain.PositionUpdate {
	s.calls++
	return s.updates
}

func TestRepricePollerStart(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &stubRepricer{}
	poller := NewRepricePoller(tracer, stub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Start(ctx)

	eventually(t, func() bool { return stub.calls >= 2 })
	cancel()
}

type stubSweeper struct {
	calls int
}

func (s *stubSweeper) Sweep(ctx context.Context) int {
	s.calls++
	return 1
}

func TestMaintenanceSweeps(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &stubSweeper{}
	m := NewMaintenance(tracer, stub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)

	eventually(t, func() bool { return stub.calls >= 1 })
	cancel()
}
