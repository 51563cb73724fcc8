package service

import (
	"context"
	"log"
	"time"

	"signal-alert/internal/domain"
	"signal-alert/internal/history"
	"signal-alert/internal/position"
	"signal-alert/internal/risk"
	"signal-alert/internal/signal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type MarketData interface {
	GetIndicatorSnapshot(ctx context.Context, symbol, interval string) (*domain.IndicatorSnapshot, error)
	GetLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}

type Notifier interface {
	NotifySignal(result *domain.EvalResult)
	NotifyPositionUpdate(update domain.PositionUpdate, pos domain.Position)
}

// PositionAudit mirrors lifecycle changes into Postgres. Nil disables the
// mirror; the JSON snapshot remains authoritative either way.
type PositionAudit interface {
	UpsertPosition(ctx context.Context, p *domain.Position) error
	RecordCrossings(ctx context.Context, positionID string, crossings []domain.Crossing) error
}

// ATRStopConfig switches the stop distance from the static risk table to a
// volatility-scaled one.
type ATRStopConfig struct {
	Enabled bool
	Period  int
	Mult    float64
	MinPct  float64
	MaxPct  float64
}

// AlertService drives the evaluate-dedup-create-notify pipeline and the
// reprice cycle.
type AlertService struct {
	tracer   trace.Tracer
	manager  *position.Manager
	store    *position.Store
	guard    *history.Guard
	engine   *signal.Engine
	market   MarketData
	notifier Notifier
	audit    PositionAudit
	atrStop  ATRStopConfig
	now      func() time.Time
}

func NewAlertService(
	tracer trace.Tracer,
	manager *position.Manager,
	store *position.Store,
	guard *history.Guard,
	engine *signal.Engine,
	market MarketData,
	notifier Notifier,
	audit PositionAudit,
	atrStop ATRStopConfig,
	now func() time.Time,
) *AlertService {
	if now == nil {
		now = time.Now
	}
	return &AlertService{
		tracer:   tracer,
		manager:  manager,
		store:    store,
		guard:    guard,
		engine:   engine,
		market:   market,
		notifier: notifier,
		audit:    audit,
		atrStop:  atrStop,
		now:      now,
	}
}

// SetNotifier attaches the delivery sink. The telegram dispatcher needs this
// service as its close handler, so it is constructed after the service and
// attached here before any background job starts.
func (s *AlertService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Evaluate runs signal detection for one pair and timeframe. A nil result
// with a nil error means no signal fired.
func (s *AlertService) Evaluate(ctx context.Context, symbol, interval string) (*domain.EvalResult, error) {
	ctx, span := s.tracer.Start(ctx, "alert.evaluate",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("interval", interval),
		))
	defer span.End()

	snap, err := s.market.GetIndicatorSnapshot(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}

	verdict := s.engine.Evaluate(snap, s.higherTrend(ctx, symbol, interval))
	if !verdict.Direction.IsValid() {
		return nil, nil
	}

	result := &domain.EvalResult{
		Symbol:       symbol,
		Interval:     interval,
		Direction:    verdict.Direction,
		CurrentPrice: snap.Price,
		Strength:     verdict.Strength,
		Mode:         verdict.Mode,
		Timestamp:    s.now(),
	}

	if !s.guard.ShouldNotify(symbol, interval, verdict.Direction) {
		log.Printf("signal suppressed by cooldown: %s %s %s", symbol, interval, verdict.Direction)
		return result, nil
	}

	pos, created, err := s.manager.Create(ctx, position.CreateRequest{
		Symbol:    symbol,
		Interval:  interval,
		Direction: verdict.Direction,
		Price:     snap.Price,
		Strength:  verdict.Strength,
		CreatedBy: verdict.Mode,
		StopPct:   s.stopPct(ctx, symbol, interval),
	})
	if err != nil {
		return nil, err
	}

	// The cooldown clock starts at detection time whether or not a position
	// slot was free, so a refused signal cannot re-fire every cycle.
	s.guard.Record(symbol, interval, verdict.Direction, snap.Price)
	s.guard.ClearOpposite(symbol, interval, verdict.Direction)

	result.Notified = true
	result.PositionCreated = created
	if created {
		result.Levels = domain.RiskLevels{
			Entry:   pos.EntryPrice,
			Stop:    pos.StopLevel,
			Targets: pos.TargetLevels,
		}
		s.mirrorPosition(ctx, pos)
	}

	if s.notifier != nil {
		s.notifier.NotifySignal(result)
	}
	return result, nil
}

// EvaluateMany walks symbol/interval combinations, logging per-pair failures
// instead of aborting the sweep.
func (s *AlertService) EvaluateMany(ctx context.Context, symbols []string, intervals []string) []domain.EvalResult {
	var out []domain.EvalResult
	for _, symbol := range symbols {
		for _, interval := range intervals {
			result, err := s.Evaluate(ctx, symbol, interval)
			if err != nil {
				log.Printf("evaluate %s %s failed: %v", symbol, interval, err)
				continue
			}
			if result != nil {
				out = append(out, *result)
			}
		}
	}
	return out
}

// RepriceAll fetches prices for every instrument with an active position and
// feeds them through the lifecycle manager.
func (s *AlertService) RepriceAll(ctx context.Context) []domain.PositionUpdate {
	ctx, span := s.tracer.Start(ctx, "alert.reprice-all")
	defer span.End()

	symbols := s.store.ActiveSymbols()
	if len(symbols) == 0 {
		return nil
	}

	prices, err := s.market.GetLatestPrices(ctx, symbols)
	if err != nil {
		log.Printf("reprice skipped, price fetch failed: %v", err)
		return nil
	}

	updates := s.manager.Reprice(ctx, prices)
	for _, update := range updates {
		pos, ok := s.store.Get(update.Key.ID())
		if !ok {
			continue
		}
		if s.audit != nil {
			if err := s.audit.RecordCrossings(ctx, update.Key.ID(), update.Crossings); err != nil {
				log.Printf("failed to mirror crossings for %s: %v", update.Key.ID(), err)
			}
		}
		s.mirrorPosition(ctx, &pos)
		if s.notifier != nil {
			s.notifier.NotifyPositionUpdate(update, pos)
		}
	}
	return updates
}

// Close manually closes a position and mirrors the final state.
func (s *AlertService) Close(ctx context.Context, id string, reason domain.CloseReason) bool {
	ctx, span := s.tracer.Start(ctx, "alert.close",
		trace.WithAttributes(attribute.String("position", id)))
	defer span.End()

	if !s.manager.Close(ctx, id, reason) {
		return false
	}
	if pos, ok := s.store.Get(id); ok {
		s.mirrorPosition(ctx, &pos)
	}
	return true
}

func (s *AlertService) higherTrend(ctx context.Context, symbol, interval string) domain.Direction {
	if interval == "1d" || interval == "15m" {
		return domain.DirectionNone
	}
	daily, err := s.market.GetIndicatorSnapshot(ctx, symbol, "1d")
	if err != nil {
		log.Printf("daily trend unavailable for %s: %v", symbol, err)
		return domain.DirectionNone
	}
	return signal.Trend(daily)
}

func (s *AlertService) stopPct(ctx context.Context, symbol, interval string) float64 {
	if !s.atrStop.Enabled {
		return 0
	}
	candles, err := s.market.GetCandles(ctx, symbol, interval, candleLookback)
	if err != nil {
		log.Printf("atr stop unavailable for %s %s: %v", symbol, interval, err)
		return 0
	}
	values := make([]domain.Candle, len(candles))
	for i, c := range candles {
		values[i] = *c
	}
	return risk.StopPctFromATR(values, s.atrStop.Period, s.atrStop.Mult, s.atrStop.MinPct, s.atrStop.MaxPct)
}

func (s *AlertService) mirrorPosition(ctx context.Context, p *domain.Position) {
	if s.audit == nil {
		return
	}
	if err := s.audit.UpsertPosition(ctx, p); err != nil {
		log.Printf("failed to mirror position %s: %v", p.Key.ID(), err)
	}
}
