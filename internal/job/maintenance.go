package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Maintenance removes closed positions past their retention window on a
// slow cadence.
type Maintenance struct {
	tracer  trace.Tracer
	sweeper Sweeper
	tick    time.Duration
}

func NewMaintenance(tracer trace.Tracer, sweeper Sweeper, tick time.Duration) *Maintenance {
	return &Maintenance{
		tracer:  tracer,
		sweeper: sweeper,
		tick:    tick,
	}
}

// Start blocks until ctx is cancelled.
func (m *Maintenance) Start(ctx context.Context) {
	if m.sweeper == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.sweeper.Sweep(ctx); removed > 0 {
				log.Printf("maintenance: swept %d expired positions", removed)
			}
		}
	}
}
