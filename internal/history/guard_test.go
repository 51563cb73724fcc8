package history

import (
	"path/filepath"
	"testing"
	"time"

	"signal-alert/internal/domain"
	"signal-alert/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(t *testing.T, flipDwell time.Duration) (*Guard, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	file := store.NewSnapshotFile(filepath.Join(t.TempDir(), "signal_history.json"))
	return NewGuard(file, nil, flipDwell, clock.now), clock
}

func TestShouldNotifyCooldownCycle(t *testing.T) {
	g, clock := newTestGuard(t, 0)

	if !g.ShouldNotify("BTCUSDT", "4h", domain.DirectionLong) {
		t.Fatal("expected true with no record")
	}
	g.Record("BTCUSDT", "4h", domain.DirectionLong, 50000)

	if g.ShouldNotify("BTCUSDT", "4h", domain.DirectionLong) {
		t.Fatal("expected false immediately after record")
	}

	clock.advance(4*time.Hour - time.Minute)
	if g.ShouldNotify("BTCUSDT", "4h", domain.DirectionLong) {
		t.Fatal("expected false before cooldown elapses")
	}

	clock.advance(2 * time.Minute)
	if !g.ShouldNotify("BTCUSDT", "4h", domain.DirectionLong) {
		t.Fatal("expected true once cooldown has elapsed")
	}
}

func TestCooldownVariesByInterval(t *testing.T) {
	g, clock := newTestGuard(t, 0)
	g.Record("BTCUSDT", "15m", domain.DirectionLong, 50000)
	g.Record("BTCUSDT", "1d", domain.DirectionLong, 50000)

	clock.advance(90 * time.Minute)
	if !g.ShouldNotify("BTCUSDT", "15m", domain.DirectionLong) {
		t.Fatal("expected 15m cooldown to have elapsed after 90m")
	}
	if g.ShouldNotify("BTCUSDT", "1d", domain.DirectionLong) {
		t.Fatal("expected 1d cooldown to still be active after 90m")
	}
}

func TestDirectionsAreIndependentKeys(t *testing.T) {
	g, _ := newTestGuard(t, 0)
	g.Record("BTCUSDT", "4h", domain.DirectionLong, 50000)
	if !g.ShouldNotify("BTCUSDT", "4h", domain.DirectionShort) {
		t.Fatal("short record should not be blocked by long record")
	}
}

func TestClearOppositeRemovesStaleRecord(t *testing.T) {
	g, _ := newTestGuard(t, 0)
	g.Record("BTCUSDT", "4h", domain.DirectionLong, 50000)

	if !g.ClearOpposite("BTCUSDT", "4h", domain.DirectionShort) {
		t.Fatal("expected opposite (long) record to be cleared")
	}
	if !g.ShouldNotify("BTCUSDT", "4h", domain.DirectionLong) {
		t.Fatal("expected long record gone after flip to short")
	}
	if g.ClearOpposite("BTCUSDT", "4h", domain.DirectionShort) {
		t.Fatal("expected second clear to report nothing removed")
	}
}

func TestClearOppositeHonorsFlipDwell(t *testing.T) {
	g, clock := newTestGuard(t, 30*time.Minute)
	g.Record("BTCUSDT", "4h", domain.DirectionLong, 50000)

	if g.ClearOpposite("BTCUSDT", "4h", domain.DirectionShort) {
		t.Fatal("expected flip suppressed inside dwell window")
	}
	clock.advance(31 * time.Minute)
	if !g.ClearOpposite("BTCUSDT", "4h", domain.DirectionShort) {
		t.Fatal("expected flip allowed after dwell")
	}
}

func TestGuardPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal_history.json")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}

	g := NewGuard(store.NewSnapshotFile(path), nil, 0, clock.now)
	g.Record("SOLUSDT", "1h", domain.DirectionShort, 150)

	reloaded := NewGuard(store.NewSnapshotFile(path), nil, 0, clock.now)
	n, err := reloaded.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
	if reloaded.ShouldNotify("SOLUSDT", "1h", domain.DirectionShort) {
		t.Fatal("expected reloaded record to still block")
	}
}
