// Package risk computes stop-loss and take-profit price levels from an
// entry price and percentage tables. All functions are pure.
package risk

import (
	"math"

	"signal-alert/internal/domain"
)

// Compute derives the stop price and the ordered target prices for an entry.
// For LONG the stop sits below entry and targets above; SHORT inverts the signs.
func Compute(entry float64, dir domain.Direction, stopPct float64, targetPcts [domain.TargetCount]float64) (domain.RiskLevels, error) {
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return domain.RiskLevels{}, domain.ErrInvalidEntry
	}
	if stopPct <= 0 {
		return domain.RiskLevels{}, domain.ErrInvalidPercentages
	}
	for i, pct := range targetPcts {
		if pct <= 0 {
			return domain.RiskLevels{}, domain.ErrInvalidPercentages
		}
		if i > 0 && pct <= targetPcts[i-1] {
			return domain.RiskLevels{}, domain.ErrInvalidPercentages
		}
	}

	levels := domain.RiskLevels{Entry: entry}
	switch dir {
	case domain.DirectionLong:
		levels.Stop = entry * (1 - stopPct/100)
		for i, pct := range targetPcts {
			levels.Targets[i] = entry * (1 + pct/100)
		}
	case domain.DirectionShort:
		levels.Stop = entry * (1 + stopPct/100)
		for i, pct := range targetPcts {
			levels.Targets[i] = entry * (1 - pct/100)
		}
	default:
		return domain.RiskLevels{}, domain.ErrInvalidPercentages
	}
	return levels, nil
}

// StopPctFromATR derives a stop percentage from recent realized volatility:
// ATR over the last period candles, scaled by mult and expressed as a
// percentage of the latest close, clamped to [minPct, maxPct]. Returns minPct
// when there is not enough data to compute an ATR.
func StopPctFromATR(candles []domain.Candle, period int, mult, minPct, maxPct float64) float64 {
	if period <= 0 || len(candles) < period+1 {
		return minPct
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr := c.High - c.Low
		tr = math.Max(tr, math.Abs(c.High-prevClose))
		tr = math.Max(tr, math.Abs(c.Low-prevClose))
		sum += tr
	}
	atr := sum / float64(period)

	last := candles[len(candles)-1].Close
	if last <= 0 {
		return minPct
	}

	pct := atr / last * 100 * mult
	if pct < minPct {
		return minPct
	}
	if pct > maxPct {
		return maxPct
	}
	return pct
}
