package position

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"signal-alert/internal/domain"
	"signal-alert/internal/store"
)

// Store owns all Position records. It is safe for concurrent callers; every
// accessor returns copies so iteration never observes a torn state.
type Store struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	file      *store.SnapshotFile
}

func NewStore(file *store.SnapshotFile) *Store {
	return &Store{
		positions: make(map[string]*domain.Position),
		file:      file,
	}
}

// Load replaces the in-memory collection with the durable snapshot.
func (s *Store) Load() (int, error) {
	loaded := make(map[string]*domain.Position)
	if _, err := s.file.Load(&loaded); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = loaded
	if s.positions == nil {
		s.positions = make(map[string]*domain.Position)
	}
	return len(s.positions), nil
}

// Save writes the full collection durably. Serialization happens under the
// read lock; the file write does not hold it.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.positions, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	return s.file.Write(data)
}

func (s *Store) Get(id string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

func (s *Store) Upsert(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.positions[p.Key.ID()] = &cp
}

// Update mutates one record in place under the lock. Returns false when the
// id is unknown.
func (s *Store) Update(id string, fn func(*domain.Position)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// HasActiveMarket reports whether any ACTIVE position exists for the
// (symbol, interval) pair in either direction.
func (s *Store) HasActiveMarket(symbol, interval string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dir := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
		key := domain.PositionKey{Symbol: symbol, Interval: interval, Direction: dir}
		if p, ok := s.positions[key.ID()]; ok && p.IsActive() {
			return true
		}
	}
	return false
}

// ActiveSnapshot returns copies of every ACTIVE position, ordered by id.
func (s *Store) ActiveSnapshot() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.IsActive() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID() < out[j].Key.ID() })
	return out
}

// ActiveSymbols returns the distinct instruments with at least one ACTIVE
// position, uppercased and sorted.
func (s *Store) ActiveSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range s.positions {
		if p.IsActive() {
			seen[strings.ToUpper(p.Key.Symbol)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Store) All() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID() < out[j].Key.ID() })
	return out
}

func (s *Store) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.positions, id)
	}
}

func (s *Store) Summary() domain.PositionsSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum domain.PositionsSummary
	for _, p := range s.positions {
		sum.Total++
		if p.IsActive() {
			sum.Active++
			sum.OpenPnlPct += p.PnlPercent
			continue
		}
		sum.Closed++
		if p.PnlPercent > 0 {
			sum.Wins++
		} else if p.PnlPercent < 0 {
			sum.Losses++
		}
	}
	if sum.Closed > 0 {
		sum.WinRatePct = float64(sum.Wins) / float64(sum.Closed) * 100
	}
	return sum
}
