package job

import (
	"context"
	"log"
	"time"

	"signal-alert/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type Repricer interface {
	RepriceAll(ctx context.Context) []domain.PositionUpdate
}

// RepricePoller drives the position reprice cycle on a fixed interval.
type RepricePoller struct {
	tracer   trace.Tracer
	repricer Repricer
	tick     time.Duration
}

func NewRepricePoller(tracer trace.Tracer, repricer Repricer, tick time.Duration) *RepricePoller {
	return &RepricePoller{
		tracer:   tracer,
		repricer: repricer,
		tick:     tick,
	}
}

// Start blocks until ctx is cancelled.
func (p *RepricePoller) Start(ctx context.Context) {
	if p.repricer == nil {
		log.Println("Reprice poller disabled: no reprice service")
		<-ctx.Done()
		return
	}

	log.Println("Reprice poller starting...")
	p.runOnce(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reprice poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *RepricePoller) runOnce(ctx context.Context) {
	updates := p.repricer.RepriceAll(ctx)
	for _, u := range updates {
		if u.Closed {
			log.Printf("position closed: %s (%s)", u.Key.ID(), u.Reason)
		}
	}
}
