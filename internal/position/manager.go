// Package position tracks the lifecycle of suggested trades: creation gated
// against duplicates, periodic repricing with tolerance-band level detection,
// and terminal close transitions.
package position

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"signal-alert/internal/domain"
	"signal-alert/internal/risk"

	"go.opentelemetry.io/otel/trace"
)

// RiskParams is a per-interval stop/target percentage table entry.
type RiskParams struct {
	StopPct    float64
	TargetPcts [domain.TargetCount]float64
}

type Config struct {
	// Tolerance is the fractional slack band applied when comparing the
	// current price to a level (0.005 = 0.5%).
	Tolerance float64

	// StopWinsTies closes a position with STOP_HIT when a stop and a target
	// condition newly trigger within the same reprice cycle. The stop is a
	// risk cap; target crossings in that tick are still recorded.
	StopWinsTies bool

	// RiskTable maps interval to stop/target percentages. DefaultInterval is
	// used when an interval has no entry.
	RiskTable       map[string]RiskParams
	DefaultInterval string

	// Retention is the age after which CLOSED positions are swept.
	Retention time.Duration
}

const DefaultTolerance = 0.005

func DefaultConfig() Config {
	return Config{
		Tolerance:    DefaultTolerance,
		StopWinsTies: true,
		RiskTable: map[string]RiskParams{
			"15m": {StopPct: 1.5, TargetPcts: [3]float64{1.5, 2.5, 3.5}},
			"1h":  {StopPct: 2.0, TargetPcts: [3]float64{2.0, 3.5, 5.0}},
			"4h":  {StopPct: 3.0, TargetPcts: [3]float64{3.0, 5.0, 7.0}},
			"1d":  {StopPct: 5.0, TargetPcts: [3]float64{5.0, 7.0, 9.0}},
		},
		DefaultInterval: "4h",
		Retention:       30 * 24 * time.Hour,
	}
}

// Manager owns creation gating, batch repricing and close transitions.
type Manager struct {
	store  *Store
	cfg    Config
	tracer trace.Tracer
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewManager(store *Store, cfg Config, tracer trace.Tracer, now func() time.Time) *Manager {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    store,
		cfg:      cfg,
		tracer:   tracer,
		now:      now,
		inflight: make(map[string]struct{}),
	}
}

type CreateRequest struct {
	Symbol    string
	Interval  string
	Direction domain.Direction
	Price     float64
	Strength  int
	CreatedBy string

	// StopPct overrides the table entry when positive (e.g. an ATR-derived
	// stop computed upstream). TargetPcts overrides likewise when all set.
	StopPct    float64
	TargetPcts [domain.TargetCount]float64
}

// Create opens a new ACTIVE position when every gate passes. Refusals are
// expected outcomes, not errors: they return (nil, false, nil). An error is
// returned only for invalid input.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*domain.Position, bool, error) {
	_, span := m.tracer.Start(ctx, "position-manager.create")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	key := domain.PositionKey{Symbol: symbol, Interval: req.Interval, Direction: req.Direction}
	if !req.Direction.IsValid() {
		return nil, false, domain.ErrInvalidPercentages
	}

	// Gate 1: one open idea per (symbol, interval), across both directions.
	if m.store.HasActiveMarket(symbol, req.Interval) {
		log.Printf("position %s refused: market already has an active position", key.ID())
		return nil, false, nil
	}

	// Gate 2: in-flight guard, checked-and-inserted as one atomic step.
	// Closes the race between two triggers passing gate 1 before either
	// has persisted.
	if !m.acquire(key.ID()) {
		log.Printf("position %s refused: creation already in flight", key.ID())
		return nil, false, nil
	}
	defer m.release(key.ID())

	params := m.riskParams(req)
	levels, err := risk.Compute(req.Price, req.Direction, params.StopPct, params.TargetPcts)
	if err != nil {
		return nil, false, err
	}

	now := m.now().UTC()
	pos := domain.Position{
		Key:            key,
		EntryPrice:     req.Price,
		EntryTime:      now,
		Status:         domain.StatusActive,
		TargetLevels:   levels.Targets,
		StopLevel:      levels.Stop,
		CurrentPrice:   req.Price,
		SignalStrength: req.Strength,
		CreatedBy:      req.CreatedBy,
		LastUpdate:     now,
	}
	m.store.Upsert(pos)
	if err := m.store.Save(); err != nil {
		// In-memory state stays authoritative; the next successful save
		// catches up.
		log.Printf("position snapshot save failed: %v", err)
	}

	log.Printf("created %s position %s @ %f", req.Direction, key.ID(), req.Price)
	return &pos, true, nil
}

func (m *Manager) riskParams(req CreateRequest) RiskParams {
	params, ok := m.cfg.RiskTable[req.Interval]
	if !ok {
		params = m.cfg.RiskTable[m.cfg.DefaultInterval]
	}
	if req.StopPct > 0 {
		params.StopPct = req.StopPct
	}
	if req.TargetPcts[0] > 0 && req.TargetPcts[1] > 0 && req.TargetPcts[2] > 0 {
		params.TargetPcts = req.TargetPcts
	}
	return params
}

func (m *Manager) acquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.inflight[id]; exists {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
}

// Reprice updates every ACTIVE position against the supplied price feed.
// Instruments absent from the feed are skipped this cycle. Only crossings
// detected for the first time are returned, so repeated calls with an
// unchanged feed emit nothing new.
func (m *Manager) Reprice(ctx context.Context, prices map[string]float64) []domain.PositionUpdate {
	_, span := m.tracer.Start(ctx, "position-manager.reprice")
	defer span.End()

	now := m.now().UTC()
	var updates []domain.PositionUpdate

	for _, snap := range m.store.ActiveSnapshot() {
		price, ok := prices[snap.Key.Symbol]
		if !ok || price <= 0 {
			continue
		}

		var update domain.PositionUpdate
		m.store.Update(snap.Key.ID(), func(p *domain.Position) {
			update = m.repriceOne(p, price, now)
		})
		if len(update.Crossings) > 0 || update.Closed {
			updates = append(updates, update)
		}
	}

	if len(updates) > 0 {
		log.Printf("reprice: %d positions with new level crossings", len(updates))
	}
	if err := m.store.Save(); err != nil {
		log.Printf("position snapshot save failed: %v", err)
	}
	return updates
}

// repriceOne applies one price observation to one position. Caller holds the
// store lock.
func (m *Manager) repriceOne(p *domain.Position, price float64, now time.Time) domain.PositionUpdate {
	tol := m.cfg.Tolerance
	long := p.Key.Direction == domain.DirectionLong

	p.CurrentPrice = price
	p.LastUpdate = now
	if long {
		p.PnlPercent = (price - p.EntryPrice) / p.EntryPrice * 100
	} else {
		p.PnlPercent = (p.EntryPrice - price) / p.EntryPrice * 100
	}

	update := domain.PositionUpdate{Key: p.Key}

	// Every not-yet-hit target is evaluated each cycle: a single tick can
	// gap through more than one level.
	for i := range p.Targets {
		if p.Targets[i].Hit {
			continue
		}
		level := p.TargetLevels[i]
		hit := false
		if long {
			hit = price >= level*(1-tol)
		} else {
			hit = price <= level*(1+tol)
		}
		if hit {
			p.Targets[i] = domain.TargetFill{Hit: true, Price: price, At: now}
			update.Crossings = append(update.Crossings, domain.Crossing{
				Kind: domain.CrossTarget, Target: i + 1, Level: level, Price: price, At: now,
			})
		}
	}

	stopNew := false
	if !p.StopHit {
		if long {
			stopNew = price <= p.StopLevel*(1+tol)
		} else {
			stopNew = price >= p.StopLevel*(1-tol)
		}
		if stopNew {
			p.StopHit = true
			update.Crossings = append(update.Crossings, domain.Crossing{
				Kind: domain.CrossStop, Level: p.StopLevel, Price: price, At: now,
			})
		}
	}

	// Tie-break: when stop and target conditions trigger in the same cycle
	// the stop decides the close. The target crossings above remain recorded.
	switch {
	case stopNew && m.cfg.StopWinsTies:
		m.closeLocked(p, domain.CloseStopHit, now)
	case p.AllTargetsHit():
		m.closeLocked(p, domain.CloseAllTargetsHit, now)
	case stopNew:
		m.closeLocked(p, domain.CloseStopHit, now)
	}

	if p.Status == domain.StatusClosed {
		update.Closed = true
		update.Reason = p.CloseReason
	}
	update.PnlPercent = p.PnlPercent
	return update
}

func (m *Manager) closeLocked(p *domain.Position, reason domain.CloseReason, now time.Time) {
	p.Status = domain.StatusClosed
	p.CloseReason = reason
	p.CloseTime = now
}

// Close performs a manual ACTIVE to CLOSED transition. Returns false when the
// id is absent or already CLOSED.
func (m *Manager) Close(ctx context.Context, id string, reason domain.CloseReason) bool {
	_, span := m.tracer.Start(ctx, "position-manager.close")
	defer span.End()

	now := m.now().UTC()
	closed := false
	m.store.Update(id, func(p *domain.Position) {
		if !p.IsActive() {
			return
		}
		m.closeLocked(p, reason, now)
		closed = true
	})
	if closed {
		log.Printf("closed position %s: %s", id, reason)
		if err := m.store.Save(); err != nil {
			log.Printf("position snapshot save failed: %v", err)
		}
	}
	return closed
}

// Sweep removes CLOSED positions older than the retention age and returns
// how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	_, span := m.tracer.Start(ctx, "position-manager.sweep")
	defer span.End()

	if m.cfg.Retention <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-m.cfg.Retention)

	var stale []string
	for _, p := range m.store.All() {
		if p.Status == domain.StatusClosed && !p.CloseTime.IsZero() && p.CloseTime.Before(cutoff) {
			stale = append(stale, p.Key.ID())
		}
	}
	if len(stale) == 0 {
		return 0
	}
	m.store.Remove(stale)
	if err := m.store.Save(); err != nil {
		log.Printf("position snapshot save failed: %v", err)
	}
	log.Printf("swept %d closed positions older than %s", len(stale), m.cfg.Retention)
	return len(stale)
}

func (m *Manager) Summary() domain.PositionsSummary {
	return m.store.Summary()
}
