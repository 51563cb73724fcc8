package handler

import (
	"net/http"
	"strconv"
	"strings"

	"signal-alert/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetPositions godoc
// @Summary      List active positions
// @Description  Returns every ACTIVE position, ordered by id
// @Tags         positions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/positions [get]
func (h *Handler) GetPositions(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-positions")
	defer span.End()

	positions := h.positions.ActiveSnapshot()
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// GetPositionsSummary godoc
// @Summary      Position statistics
// @Description  Returns counts, win rate and open PnL across all tracked positions
// @Tags         positions
// @Produce      json
// @Success      200  {object}  domain.PositionsSummary
// @Router       /api/positions/summary [get]
func (h *Handler) GetPositionsSummary(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-positions-summary")
	defer span.End()

	c.JSON(http.StatusOK, h.positions.Summary())
}

// GetClosedPositions godoc
// @Summary      List recently closed positions
// @Description  Reads the Postgres audit mirror, newest first
// @Tags         positions
// @Produce      json
// @Param        symbol  query  string  false  "Filter by symbol"
// @Param        limit   query  int     false  "Max rows (default 50, cap 200)"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/positions/closed [get]
func (h *Handler) GetClosedPositions(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-closed-positions")
	defer span.End()

	if h.closed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "position audit mirror is not configured"})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit, _ := strconv.Atoi(c.Query("limit"))

	positions, err := h.closed.ListClosed(ctx, symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []*domain.Position{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// ClosePosition godoc
// @Summary      Manually close a position
// @Description  Closes the position with reason MANUAL
// @Tags         positions
// @Produce      json
// @Param        id  path  string  true  "Position id (e.g. BTCUSDT_4h_LONG)"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/positions/{id}/close [post]
func (h *Handler) ClosePosition(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.close-position")
	defer span.End()

	id := strings.TrimSpace(c.Param("id"))
	span.SetAttributes(attribute.String("position", id))

	if !h.alerts.Close(ctx, id, domain.CloseManual) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active position " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": id})
}

// Reprice godoc
// @Summary      Run a reprice cycle now
// @Description  Fetches fresh prices for all instruments with active positions and applies target/stop detection
// @Tags         positions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/reprice [post]
func (h *Handler) Reprice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.reprice")
	defer span.End()

	updates := h.alerts.RepriceAll(ctx)
	if updates == nil {
		updates = []domain.PositionUpdate{}
	}
	c.JSON(http.StatusOK, gin.H{"updates": updates, "count": len(updates)})
}
