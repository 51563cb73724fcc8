package job

import (
	"context"
	"log"
	"time"

	"signal-alert/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var (
	intradayIntervals = []string{"15m", "1h", "4h"}
	dailyIntervals    = []string{"1d"}
)

type Evaluator interface {
	EvaluateMany(ctx context.Context, symbols []string, intervals []string) []domain.EvalResult
}

// EvaluationPoller periodically runs signal evaluation across the configured
// instruments, rotating through them so no tick hammers the exchange.
type EvaluationPoller struct {
	tracer       trace.Tracer
	evaluator    Evaluator
	symbols      []string
	intradayTick time.Duration
	dailyTick    time.Duration
}

func NewEvaluationPoller(tracer trace.Tracer, evaluator Evaluator, symbols []string, intradayTick, dailyTick time.Duration) *EvaluationPoller {
	return &EvaluationPoller{
		tracer:       tracer,
		evaluator:    evaluator,
		symbols:      symbols,
		intradayTick: intradayTick,
		dailyTick:    dailyTick,
	}
}

// Start launches the background evaluation goroutines. Blocks until ctx is
// cancelled.
func (p *EvaluationPoller) Start(ctx context.Context) {
	if p.evaluator == nil || len(p.symbols) == 0 {
		log.Println("Evaluation poller disabled: nothing to evaluate")
		<-ctx.Done()
		return
	}

	log.Println("Evaluation poller starting...")
	go p.pollIntraday(ctx)
	go p.pollDaily(ctx)

	<-ctx.Done()
	log.Println("Evaluation poller stopped")
}

func (p *EvaluationPoller) pollIntraday(ctx context.Context) {
	coinIndex := 0
	coinsPerTick := 2

	p.runIntradayBatch(ctx, &coinIndex, coinsPerTick)

	ticker := time.NewTicker(p.intradayTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runIntradayBatch(ctx, &coinIndex, coinsPerTick)
		}
	}
}

func (p *EvaluationPoller) runIntradayBatch(ctx context.Context, coinIndex *int, count int) {
	for i := 0; i < count; i++ {
		symbol := p.symbols[*coinIndex%len(p.symbols)]
		*coinIndex++

		results := p.evaluator.EvaluateMany(ctx, []string{symbol}, intradayIntervals)
		for _, r := range results {
			log.Printf("signal: %s %s %s (%s, strength %d)", r.Symbol, r.Interval, r.Direction, r.Mode, r.Strength)
		}
	}
}

func (p *EvaluationPoller) pollDaily(ctx context.Context) {
	coinIndex := 0

	p.runDailyBatch(ctx, &coinIndex)

	ticker := time.NewTicker(p.dailyTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runDailyBatch(ctx, &coinIndex)
		}
	}
}

func (p *EvaluationPoller) runDailyBatch(ctx context.Context, coinIndex *int) {
	symbol := p.symbols[*coinIndex%len(p.symbols)]
	*coinIndex++

	p.evaluator.EvaluateMany(ctx, []string{symbol}, dailyIntervals)
}
