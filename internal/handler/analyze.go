package handler

import (
	"net/http"
	"slices"
	"strings"

	"signal-alert/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Health godoc
// @Summary      Service health
// @Tags         meta
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Analyze godoc
// @Summary      Evaluate one instrument and timeframe
// @Description  Runs signal detection for the pair; a firing signal may open a position subject to the dedup rules
// @Tags         signals
// @Produce      json
// @Param        symbol    path  string  true  "Instrument (e.g. BTCUSDT)"
// @Param        interval  path  string  true  "Timeframe (15m, 1h, 4h, 1d)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/analyze/{symbol}/{interval} [get]
func (h *Handler) Analyze(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.analyze")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	interval := strings.TrimSpace(c.Param("interval"))
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
	)

	if !slices.Contains(h.symbols, symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported symbol: " + symbol,
			"supported_symbols": h.symbols,
		})
		return
	}
	if !slices.Contains(domain.SupportedIntervals, interval) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":               "unsupported interval: " + interval,
			"supported_intervals": domain.SupportedIntervals,
		})
		return
	}

	result, err := h.alerts.Evaluate(ctx, symbol, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"signal": nil, "message": "no signal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal": result})
}

// GetHistory godoc
// @Summary      Recent signal history
// @Description  Returns recorded signals from the cooldown table, optionally filtered by symbol
// @Tags         signals
// @Produce      json
// @Param        symbol  query  string  false  "Instrument filter"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-history")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	records := h.history.Records(symbol)
	if records == nil {
		records = []domain.SignalHistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records, "count": len(records)})
}
