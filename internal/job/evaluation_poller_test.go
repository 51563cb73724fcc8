package job

import (
	"context"
	"testing"
	"time"

	"signal-alert/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubEvaluator struct {
	calls     int
	symbols   []string
	intervals [][]string
}

func (s *stubEvaluator) EvaluateMany(ctx context.Context, symbols []string, intervals []string) []domain.EvalResult {
	s.calls++
	s.symbols = append(s.symbols, symbols...)
	s.intervals = append(s.intervals, append([]string(nil), intervals...))
	return nil
}

func TestEvaluationPollerStart(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &stubEvaluator{}
	poller := NewEvaluationPoller(tracer, stub, []string{"BTCUSDT"}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Start(ctx)

	eventually(t, func() bool { return stub.calls > 0 })
	cancel()
}

func TestEvaluationPollerIntradayBatchRotates(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &stubEvaluator{}
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	poller := NewEvaluationPoller(tracer, stub, symbols, time.Hour, time.Hour)

	idx := 0
	poller.runIntradayBatch(context.Background(), &idx, 3)

	if len(stub.symbols) != 3 {
		t.Fatalf("expected 3 symbols, got %d", len(stub.symbols))
	}
	for i, want := range symbols {
		if stub.symbols[i] != want {
			t.Errorf("symbols[%d] = %q, want %q", i, stub.symbols[i], want)
		}
	}
	if len(stub.intervals[0]) != 3 {
		t.Fatalf("unexpected interval set: %+v", stub.intervals[0])
	}
}

func TestEvaluationPollerDailyBatch(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &stubEvaluator{}
	poller := NewEvaluationPoller(tracer, stub, []string{"BTCUSDT", "ETHUSDT"}, time.Hour, time.Hour)

	idx := 0
	poller.runDailyBatch(context.Background(), &idx)
	poller.runDailyBatch(context.Background(), &idx)

	if len(stub.symbols) != 2 || stub.symbols[0] == stub.symbols[1] {
		t.Fatalf("daily batch should rotate: %+v", stub.symbols)
	}
	if len(stub.intervals[0]) != 1 || stub.intervals[0][0] != "1d" {
		t.Fatalf("daily batch should only evaluate 1d: %+v", stub.intervals[0])
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
