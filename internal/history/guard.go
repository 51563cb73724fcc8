// Package history gates repeat notifications for the same trade idea. One
// durable record is kept per (symbol, interval, direction); a cooldown keyed
// by interval decides when the same idea may be raised again.
package history

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"signal-alert/internal/domain"
	"signal-alert/internal/store"
)

// DefaultCooldowns reflects the intended cadence per timeframe: hour-scale
// for intraday intervals, day-scale for daily.
func DefaultCooldowns() map[string]time.Duration {
	return map[string]time.Duration{
		"15m": time.Hour,
		"1h":  2 * time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
}

const fallbackCooldown = 4 * time.Hour

type Guard struct {
	mu        sync.Mutex
	records   map[string]domain.SignalHistoryRecord
	file      *store.SnapshotFile
	cooldowns map[string]time.Duration

	// flipDwell is the minimum age of the opposite-direction record before a
	// trend flip may clear it. Zero keeps the original always-clear behavior.
	flipDwell time.Duration

	now func() time.Time
}

func NewGuard(file *store.SnapshotFile, cooldowns map[string]time.Duration, flipDwell time.Duration, now func() time.Time) *Guard {
	if cooldowns == nil {
		cooldowns = DefaultCooldowns()
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{
		records:   make(map[string]domain.SignalHistoryRecord),
		file:      file,
		cooldowns: cooldowns,
		flipDwell: flipDwell,
		now:       now,
	}
}

func (g *Guard) Load() (int, error) {
	loaded := make(map[string]domain.SignalHistoryRecord)
	if _, err := g.file.Load(&loaded); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = loaded
	if g.records == nil {
		g.records = make(map[string]domain.SignalHistoryRecord)
	}
	return len(g.records), nil
}

func recordKey(symbol, interval string, dir domain.Direction) string {
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(symbol), interval, dir)
}

// Cooldown returns the notification cooldown for an interval.
func (g *Guard) Cooldown(interval string) time.Duration {
	if d, ok := g.cooldowns[interval]; ok {
		return d
	}
	return fallbackCooldown
}

// ShouldNotify reports whether a signal for the key may be acted upon now:
// true when no record exists or the cooldown for the interval has elapsed.
func (g *Guard) ShouldNotify(symbol, interval string, dir domain.Direction) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[recordKey(symbol, interval, dir)]
	if !ok {
		return true
	}
	return g.now().UTC().Sub(rec.NotifiedAt) >= g.Cooldown(interval)
}

// Record upserts the record for the key with the current time and price.
func (g *Guard) Record(symbol, interval string, dir domain.Direction, price float64) {
	g.mu.Lock()
	g.records[recordKey(symbol, interval, dir)] = domain.SignalHistoryRecord{
		Symbol:     strings.ToUpper(symbol),
		Interval:   interval,
		Direction:  dir,
		Price:      price,
		NotifiedAt: g.now().UTC(),
	}
	data, err := json.MarshalIndent(g.records, "", "  ")
	g.mu.Unlock()

	if err != nil {
		log.Printf("marshal signal history: %v", err)
		return
	}
	if err := g.file.Write(data); err != nil {
		log.Printf("signal history snapshot save failed: %v", err)
	}
}

// ClearOpposite deletes the opposite-direction record for the same market so
// an accepted reversal is not shadowed by stale history. Returns false when
// nothing was cleared, including when the opposite record is younger than the
// flip dwell.
func (g *Guard) ClearOpposite(symbol, interval string, dir domain.Direction) bool {
	opp := dir.Opposite()
	if !opp.IsValid() {
		return false
	}

	g.mu.Lock()
	key := recordKey(symbol, interval, opp)
	rec, ok := g.records[key]
	if !ok {
		g.mu.Unlock()
		return false
	}
	if g.flipDwell > 0 && g.now().UTC().Sub(rec.NotifiedAt) < g.flipDwell {
		g.mu.Unlock()
		log.Printf("flip for %s %s suppressed: opposite record younger than dwell", symbol, interval)
		return false
	}
	delete(g.records, key)
	data, err := json.MarshalIndent(g.records, "", "  ")
	g.mu.Unlock()

	if err != nil {
		log.Printf("marshal signal history: %v", err)
		return true
	}
	if err := g.file.Write(data); err != nil {
		log.Printf("signal history snapshot save failed: %v", err)
	}
	return true
}

// Records returns a copy of all history records, optionally filtered by symbol.
func (g *Guard) Records(symbol string) []domain.SignalHistoryRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := make([]domain.SignalHistoryRecord, 0, len(g.records))
	for _, rec := range g.records {
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
	}
	return out
}
