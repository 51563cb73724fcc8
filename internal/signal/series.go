package signal

import (
	"fmt"
	"math"
	"sort"

	"signal-alert/internal/domain"
)

const (
	rsiPeriod      = 14
	rsiMAPeriod    = 14
	macdFastPeriod = 8
	macdSlowPeriod = 17
	macdSignPeriod = 9
	emaFastPeriod  = 12
	emaSlowPeriod  = 26
	bollPeriod     = 20
	bollStdDevs    = 2.0
	keltnerMult    = 1.5
	atrPeriod      = 14

	// MinCandles is the minimum history SnapshotFromCandles accepts.
	MinCandles = 40
)

// SnapshotFromCandles computes the indicator state the rule engine consumes
// from completed candles, oldest first.
func SnapshotFromCandles(candles []domain.Candle) (*domain.IndicatorSnapshot, error) {
	normalized := normalizeCandles(candles)
	if len(normalized) < MinCandles {
		return nil, fmt.Errorf("need at least %d candles, got %d", MinCandles, len(normalized))
	}

	closes := extractCloses(normalized)
	last := len(closes) - 1
	latest := normalized[last]

	emaFast := emaSeries(closes, emaFastPeriod)
	emaSlow := emaSeries(closes, emaSlowPeriod)
	rsi := rsiSeries(closes, rsiPeriod)
	rsiMA := smaSeries(rsi, rsiMAPeriod)
	macdLine, signalLine := macdSeries(closes, macdFastPeriod, macdSlowPeriod, macdSignPeriod)

	mean, std := meanStd(closes[last-bollPeriod+1 : last+1])
	atr := atrValue(normalized, atrPeriod)

	kcUpper := emaSeries(closes, bollPeriod)[last] + keltnerMult*atr
	kcLower := emaSeries(closes, bollPeriod)[last] - keltnerMult*atr
	bbUpper := mean + bollStdDevs*std
	bbLower := mean - bollStdDevs*std
	squeezed := bbUpper < kcUpper && bbLower > kcLower

	snap := &domain.IndicatorSnapshot{
		Symbol:   latest.Symbol,
		Interval: latest.Interval,
		Price:    latest.Close,

		EMAFast:     emaFast[last],
		EMASlow:     emaSlow[last],
		PrevEMAFast: emaFast[last-1],
		PrevEMASlow: emaSlow[last-1],

		RSI:       rsi[last],
		RSIMA:     rsiMA[last],
		PrevRSI:   rsi[last-1],
		PrevRSIMA: rsiMA[last-1],

		MACDLine:       macdLine[last],
		PrevMACDLine:   macdLine[last-1],
		MACDSignal:     signalLine[last],
		PrevMACDSignal: signalLine[last-1],

		BollUpper:  bbUpper,
		BollMiddle: mean,
		BollLower:  bbLower,

		SqueezeOff: !squeezed,
		ATR:        atr,
	}

	if math.IsNaN(snap.RSI) || math.IsNaN(snap.RSIMA) || math.IsNaN(snap.PrevRSI) || math.IsNaN(snap.PrevRSIMA) {
		return nil, fmt.Errorf("indicator series not warm for %s %s", latest.Symbol, latest.Interval)
	}
	return snap, nil
}

func normalizeCandles(in []domain.Candle) []domain.Candle {
	out := make([]domain.Candle, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

func extractCloses(candles []domain.Candle) []float64 {
	values := make([]float64, len(candles))
	for i := range candles {
		values[i] = candles[i].Close
	}
	return values
}

func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func smaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func rsiSeries(closes []float64, period int) []float64 {
	series := make([]float64, len(closes))
	for i := range series {
		series[i] = math.NaN()
	}
	if len(closes) <= period {
		return series
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func macdSeries(values []float64, fast, slow, sign int) ([]float64, []float64) {
	fastEMA := emaSeries(values, fast)
	slowEMA := emaSeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaSeries(macdLine, sign)
	return macdLine, signalLine
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) == 1 {
		return mean, 0
	}
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}

func atrValue(candles []domain.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
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
	return sum / float64(period)
}
