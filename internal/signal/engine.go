// Package signal evaluates interval-specific entry rules over an indicator
// snapshot and produces a trade direction.
package signal

import (
	"log"

	"signal-alert/internal/domain"
)

const (
	macdCrossBound    = 20.0
	macdMomentumBound = 80.0
	macdPullbackBound = 50.0

	momentumRSIHigh = 65.0
	momentumRSILow  = 35.0

	pullbackRSILow  = 45.0
	pullbackRSIHigh = 55.0

	reboundRSILow    = 35.0
	reboundRSIHigh   = 65.0
	reboundBandSlack = 0.002
)

// Verdict is the outcome of rule evaluation for one snapshot.
type Verdict struct {
	Direction domain.Direction
	Mode      string
	Strength  int
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate applies the rules for the snapshot's interval. higherTrend is the
// daily trend direction used to gate intraday entries; pass DirectionNone
// when evaluating the daily interval itself.
func (e *Engine) Evaluate(snap *domain.IndicatorSnapshot, higherTrend domain.Direction) Verdict {
	if snap == nil {
		return Verdict{}
	}
	switch snap.Interval {
	case "1d":
		return evaluateDaily(snap)
	case "15m":
		return evaluateRebound(snap)
	default:
		return evaluateIntraday(snap, higherTrend)
	}
}

// Trend reads the standing daily trend from the fast/slow moving averages.
func Trend(snap *domain.IndicatorSnapshot) domain.Direction {
	if snap == nil {
		return domain.DirectionNone
	}
	switch {
	case snap.EMAFast > snap.EMASlow:
		return domain.DirectionLong
	case snap.EMAFast < snap.EMASlow:
		return domain.DirectionShort
	}
	return domain.DirectionNone
}

// evaluateDaily implements the daily moving-average strategy: a fresh
// crossover opens the trend, and while the trend stands a close beyond the
// fast average is a continuation (pullback) entry.
func evaluateDaily(snap *domain.IndicatorSnapshot) Verdict {
	crossUp := snap.PrevEMAFast <= snap.PrevEMASlow && snap.EMAFast > snap.EMASlow
	crossDown := snap.PrevEMAFast >= snap.PrevEMASlow && snap.EMAFast < snap.EMASlow

	switch {
	case crossUp && snap.Price > snap.EMAFast:
		return Verdict{Direction: domain.DirectionLong, Mode: "cross", Strength: 90}
	case crossDown && snap.Price < snap.EMAFast:
		return Verdict{Direction: domain.DirectionShort, Mode: "cross", Strength: 90}
	case snap.EMAFast > snap.EMASlow && snap.Price > snap.EMAFast:
		return Verdict{Direction: domain.DirectionLong, Mode: "pullback", Strength: 75}
	case snap.EMAFast < snap.EMASlow && snap.Price < snap.EMAFast:
		return Verdict{Direction: domain.DirectionShort, Mode: "pullback", Strength: 75}
	}
	return Verdict{}
}

// evaluateIntraday implements the 4h/1h strategy: RSI-vs-MA and MACD
// crossovers with the squeeze released, plus strong-momentum and pullback
// modes, all aligned against the daily trend.
func evaluateIntraday(snap *domain.IndicatorSnapshot, higherTrend domain.Direction) Verdict {
	if !snap.SqueezeOff {
		return Verdict{}
	}

	rsiCrossUp := snap.PrevRSI <= snap.PrevRSIMA && snap.RSI > snap.RSIMA
	rsiCrossDown := snap.PrevRSI >= snap.PrevRSIMA && snap.RSI < snap.RSIMA

	prevDelta := snap.PrevMACDLine - snap.PrevMACDSignal
	currDelta := snap.MACDLine - snap.MACDSignal
	macdCrossUp := prevDelta <= 0 && currDelta > 0
	macdCrossDown := prevDelta >= 0 && currDelta < 0

	var verdict Verdict
	switch {
	case rsiCrossUp && macdCrossUp && snap.MACDLine > -macdCrossBound:
		verdict = Verdict{Direction: domain.DirectionLong, Mode: "crossover", Strength: 80}
	case rsiCrossDown && macdCrossDown && snap.MACDLine < macdCrossBound:
		verdict = Verdict{Direction: domain.DirectionShort, Mode: "crossover", Strength: 80}
	case snap.RSI > momentumRSIHigh && snap.RSI > snap.PrevRSI &&
		snap.MACDLine > macdMomentumBound && snap.MACDLine > snap.PrevMACDLine:
		verdict = Verdict{Direction: domain.DirectionLong, Mode: "momentum", Strength: 90}
	case snap.RSI < momentumRSILow && snap.RSI < snap.PrevRSI &&
		snap.MACDLine < -macdMomentumBound && snap.MACDLine < snap.PrevMACDLine:
		verdict = Verdict{Direction: domain.DirectionShort, Mode: "momentum", Strength: 90}
	case snap.MACDLine > macdPullbackBound &&
		snap.RSI > pullbackRSILow && snap.RSI < pullbackRSIHigh && snap.RSI > snap.PrevRSI:
		verdict = Verdict{Direction: domain.DirectionLong, Mode: "pullback", Strength: 70}
	case snap.MACDLine < -macdPullbackBound &&
		snap.RSI > pullbackRSILow && snap.RSI < pullbackRSIHigh && snap.RSI < snap.PrevRSI:
		verdict = Verdict{Direction: domain.DirectionShort, Mode: "pullback", Strength: 70}
	default:
		return Verdict{}
	}

	// Intraday entries must align with the daily trend.
	if higherTrend.IsValid() && verdict.Direction != higherTrend {
		log.Printf("%s %s %s blocked by daily trend %s",
			snap.Symbol, snap.Interval, verdict.Direction, higherTrend)
		return Verdict{}
	}
	return verdict
}

// evaluateRebound implements the 15m mean-reversion rule: oversold RSI with
// price at the lower Bollinger band, or overbought at the upper band. The
// band touch is bounded so a runaway move does not count as a rebound.
func evaluateRebound(snap *domain.IndicatorSnapshot) Verdict {
	longSetup := snap.RSI < reboundRSILow &&
		snap.Price <= snap.BollLower &&
		snap.Price > snap.BollLower*(1-reboundBandSlack)
	shortSetup := snap.RSI > reboundRSIHigh &&
		snap.Price >= snap.BollUpper &&
		snap.Price < snap.BollUpper*(1+reboundBandSlack)

	switch {
	case longSetup:
		return Verdict{Direction: domain.DirectionLong, Mode: "rebound", Strength: 100}
	case shortSetup:
		return Verdict{Direction: domain.DirectionShort, Mode: "rebound", Strength: 100}
	}
	return Verdict{}
}
