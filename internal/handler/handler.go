package handler

import (
	"context"

	"signal-alert/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type AlertOrchestrator interface {
	Evaluate(ctx context.Context, symbol, interval string) (*domain.EvalResult, error)
	RepriceAll(ctx context.Context) []domain.PositionUpdate
	Close(ctx context.Context, id string, reason domain.CloseReason) bool
}

type PositionViewer interface {
	ActiveSnapshot() []domain.Position
	Summary() domain.PositionsSummary
}

type HistoryViewer interface {
	Records(symbol string) []domain.SignalHistoryRecord
}

// ClosedPositionLister serves the audit mirror. Nil when Postgres is not
// configured.
type ClosedPositionLister interface {
	ListClosed(ctx context.Context, symbol string, limit int) ([]*domain.Position, error)
}

type Handler struct {
	tracer    trace.Tracer
	alerts    AlertOrchestrator
	positions PositionViewer
	history   HistoryViewer
	closed    ClosedPositionLister
	symbols   []string
}

func New(tracer trace.Tracer, alerts AlertOrchestrator, positions PositionViewer, history HistoryViewer, closed ClosedPositionLister, symbols []string) *Handler {
	return &Handler{
		tracer:    tracer,
		alerts:    alerts,
		positions: positions,
		history:   history,
		closed:    closed,
		symbols:   symbols,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/analyze/:symbol/:interval", h.Analyze)
	r.GET("/api/positions", h.GetPositions)
	r.GET("/api/positions/summary", h.GetPositionsSummary)
	r.GET("/api/positions/closed", h.GetClosedPositions)
	r.POST("/api/positions/:id/close", h.ClosePosition)
	r.POST("/api/reprice", h.Reprice)
	r.GET("/api/history", h.GetHistory)
}
