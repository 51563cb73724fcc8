package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"signal-alert/internal/domain"
	"signal-alert/internal/history"
	"signal-alert/internal/position"
	"signal-alert/internal/signal"
	"signal-alert/internal/store"

	"go.opentelemetry.io/otel/trace"
)

type stubMarket struct {
	snaps  map[string]*domain.IndicatorSnapshot
	prices map[string]float64
}

func (m *stubMarket) GetIndicatorSnapshot(ctx context.Context, symbol, interval string) (*domain.IndicatorSnapshot, error) {
	snap, ok := m.snaps[interval]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", interval)
	}
	return snap, nil
}

func (m *stubMarket) GetLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	return m.prices, nil
}

func (m *stubMarket) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	return nil, nil
}

type stubNotifier struct {
	signals []*domain.EvalResult
	updates []domain.PositionUpdate
}

func (n *stubNotifier) NotifySignal(result *domain.EvalResult) {
	n.signals = append(n.signals, result)
}

func (n *stubNotifier) NotifyPositionUpdate(update domain.PositionUpdate, pos domain.Position) {
	n.updates = append(n.updates, update)
}

type stubAudit struct {
	upserts   []string
	crossings int
}

func (a *stubAudit) UpsertPosition(ctx context.Context, p *domain.Position) error {
	a.upserts = append(a.upserts, p.Key.ID())
	return nil
}

func (a *stubAudit) RecordCrossings(ctx context.Context, positionID string, crossings []domain.Crossing) error {
	a.crossings += len(crossings)
	return nil
}

func newTestAlertService(t *testing.T, market MarketData) (*AlertService, *position.Manager, *history.Guard, *stubNotifier, *stubAudit) {
	t.Helper()
	dir := t.TempDir()
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	tracer := trace.NewNoopTracerProvider().Tracer("test")

	posStore := position.NewStore(store.NewSnapshotFile(filepath.Join(dir, "positions.json")))
	manager := position.NewManager(posStore, position.DefaultConfig(), tracer, now)
	guard := history.NewGuard(store.NewSnapshotFile(filepath.Join(dir, "history.json")), history.DefaultCooldowns(), 0, now)
	notifier := &stubNotifier{}
	audit := &stubAudit{}

	svc := NewAlertService(tracer, manager, posStore, guard, signal.NewEngine(), market, notifier, audit, ATRStopConfig{}, now)
	return svc, manager, guard, notifier, audit
}

func dailyCrossSnapshot(symbol string) *domain.IndicatorSnapshot {
	return &domain.IndicatorSnapshot{
		Symbol:      symbol,
		Interval:    "1d",
		Price:       102,
		EMAFast:     101,
		EMASlow:     100,
		PrevEMAFast: 99,
		PrevEMASlow: 100,
	}
}

func TestEvaluateCreatesPositionAndNotifies(t *testing.T) {
	market := &stubMarket{snaps: map[string]*domain.IndicatorSnapshot{
		"1d": dailyCrossSnapshot("BTCUSDT"),
	}}
	svc, _, guard, notifier, audit := newTestAlertService(t, market)

	result, err := svc.Evaluate(context.Background(), "BTCUSDT", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a signal result")
	}
	if !result.PositionCreated || !result.Notified {
		t.Fatalf("result = %+v, want created and notified", result)
	}
	if result.Direction != domain.DirectionLong || result.Mode != "cross" {
		t.Errorf("verdict = %s/%s, want LONG/cross", result.Direction, result.Mode)
	}
	if result.Levels.Stop >= result.Levels.Entry {
		t.Errorf("stop %v should sit below entry %v", result.Levels.Stop, result.Levels.Entry)
	}
	if len(notifier.signals) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.signals))
	}
	if len(audit.upserts) != 1 {
		t.Fatalf("expected 1 audit upsert, got %d", len(audit.upserts))
	}
	if guard.ShouldNotify("BTCUSDT", "1d", domain.DirectionLong) {
		t.Error("cooldown should be armed after a notification")
	}
}

func TestEvaluateNoSignalReturnsNil(t *testing.T) {
	market := &stubMarket{snaps: map[string]*domain.IndicatorSnapshot{
		"1d": {Symbol: "BTCUSDT", Interval: "1d", Price: 100, EMAFast: 100, EMASlow: 100},
	}}
	svc, _, _, notifier, _ := newTestAlertService(t, market)

	result, err := svc.Evaluate(context.Background(), "BTCUSDT", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if len(notifier.signals) != 0 {
		t.Error("no notification expected")
	}
}

func TestEvaluateCooldownSuppressesRepeat(t *testing.T) {
	market := &stubMarket{snaps: map[string]*domain.IndicatorSnapshot{
		"1d": dailyCrossSnapshot("BTCUSDT"),
	}}
	svc, _, _, notifier, _ := newTestAlertService(t, market)
	ctx := context.Background()

	if _, err := svc.Evaluate(ctx, "BTCUSDT", "1d"); err != nil {
		t.Fatalf("first evaluate failed: %v", err)
	}
	second, err := svc.Evaluate(ctx, "BTCUSDT", "1d")
	if err != nil {
		t.Fatalf("second evaluate failed: %v", err)
	}
	if second == nil {
		t.Fatal("expected a result describing the suppressed signal")
	}
	if second.Notified || second.PositionCreated {
		t.Errorf("second signal should be suppressed: %+v", second)
	}
	if len(notifier.signals) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.signals))
	}
}

func TestEvaluateRecordsHistoryWhenSlotTaken(t *testing.T) {
	market := &stubMarket{snaps: map[string]*domain.IndicatorSnapshot{
		"1d": dailyCrossSnapshot("BTCUSDT"),
	}}
	svc, manager, guard, notifier, _ := newTestAlertService(t, market)
	ctx := context.Background()

	_, created, err := manager.Create(ctx, position.CreateRequest{
		Symbol: "BTCUSDT", Interval: "1d", Direction: domain.DirectionShort, Price: 110,
	})
	if err != nil || !created {
		t.Fatalf("seed position failed: created=%v err=%v", created, err)
	}

	result, err := svc.Evaluate(ctx, "BTCUSDT", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PositionCreated {
		t.Error("slot was taken, no position should be created")
	}
	if !result.Notified {
		t.Error("signal should notify even when the slot is taken")
	}
	if guard.ShouldNotify("BTCUSDT", "1d", domain.DirectionLong) {
		t.Error("history must record the signal despite the refused creation")
	}
	if len(notifier.signals) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.signals))
	}
}

func TestEvaluateIntradayBlockedByDailyTrend(t *testing.T) {
	market := &stubMarket{snaps: map[string]*domain.IndicatorSnapshot{
		"4h": {
			Symbol:     "BTCUSDT",
			Interval:   "4h",
			Price:      100,
			SqueezeOff: true,
			PrevRSI:    55, PrevRSIMA: 50, RSI: 45, RSIMA: 50,
			PrevMACDLine: 5, PrevMACDSignal: 2, MACDLine: -3, MACDSignal: 1,
		},
		"1d": {Symbol: "BTCUSDT", Interval: "1d", EMAFast: 105, EMASlow: 100},
	}}
	svc, _, _, notifier, _ := newTestAlertService(t, market)

	result, err := svc.Evaluate(context.Background(), "BTCUSDT", "4h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("short setup against a long daily trend should be blocked, got %+v", result)
	}
	if len(notifier.signals) != 0 {
		t.Error("no notification expected")
	}
}

func TestRepriceAllNotifiesAndMirrors(t *testing.T) {
	market := &stubMarket{prices: map[string]float64{"BTCUSDT": 103.2}}
	svc, manager, _, notifier, audit := newTestAlertService(t, market)
	ctx := context.Background()

	_, created, err := manager.Create(ctx, position.CreateRequest{
		Symbol: "BTCUSDT", Interval: "4h", Direction: domain.DirectionLong, Price: 100,
	})
	if err != nil || !created {
		t.Fatalf("seed position failed: created=%v err=%v", created, err)
	}

	updates := svc.RepriceAll(ctx)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	if len(updates[0].Crossings) != 1 || updates[0].Crossings[0].Kind != domain.CrossTarget {
		t.Fatalf("expected one target crossing, got %+v", updates[0].Crossings)
	}
	if len(notifier.updates) != 1 {
		t.Fatalf("expected 1 position update notification, got %d", len(notifier.updates))
	}
	if audit.crossings != 1 {
		t.Errorf("expected 1 mirrored crossing, got %d", audit.crossings)
	}
}

func TestCloseMirrorsFinalState(t *testing.T) {
	market := &stubMarket{}
	svc, manager, _, _, audit := newTestAlertService(t, market)
	ctx := context.Background()

	pos, created, err := manager.Create(ctx, position.CreateRequest{
		Symbol: "ETHUSDT", Interval: "1h", Direction: domain.DirectionShort, Price: 2000,
	})
	if err != nil || !created {
		t.Fatalf("seed position failed: created=%v err=%v", created, err)
	}

	if !svc.Close(ctx, pos.Key.ID(), domain.CloseManual) {
		t.Fatal("close should succeed")
	}
	if svc.Close(ctx, pos.Key.ID(), domain.CloseManual) {
		t.Fatal("second close should be a no-op")
	}
	if len(audit.upserts) == 0 {
		t.Error("closed position should be mirrored")
	}
}
