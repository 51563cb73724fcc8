package domain

import (
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = ""
)

func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	}
	return DirectionNone
}

func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

var SupportedIntervals = []string{"15m", "1h", "4h", "1d"}

func IsSupportedInterval(interval string) bool {
	for _, iv := range SupportedIntervals {
		if iv == interval {
			return true
		}
	}
	return false
}

type PositionStatus string

const (
	StatusActive PositionStatus = "ACTIVE"
	StatusClosed PositionStatus = "CLOSED"
)

type CloseReason string

const (
	CloseAllTargetsHit CloseReason = "ALL_TARGETS_HIT"
	CloseStopHit       CloseReason = "STOP_HIT"
	CloseManual        CloseReason = "MANUAL"
	CloseReplaced      CloseReason = "REPLACED"
)

// PositionKey identifies a position by market, timeframe and side.
type PositionKey struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Direction Direction `json:"direction"`
}

func (k PositionKey) ID() string {
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(k.Symbol), k.Interval, k.Direction)
}

// TargetCount is fixed: every position carries exactly three take-profit levels.
const TargetCount = 3

// TargetFill records when and at what observed price a target level was crossed.
type TargetFill struct {
	Hit   bool      `json:"hit"`
	Price float64   `json:"price,omitempty"`
	At    time.Time `json:"at,omitzero"`
}

type Position struct {
	Key            PositionKey             `json:"key"`
	EntryPrice     float64                 `json:"entry_price"`
	EntryTime      time.Time               `json:"entry_time"`
	Status         PositionStatus          `json:"status"`
	CloseReason    CloseReason             `json:"close_reason,omitempty"`
	CloseTime      time.Time               `json:"close_time,omitzero"`
	TargetLevels   [TargetCount]float64    `json:"target_levels"`
	Targets        [TargetCount]TargetFill `json:"targets"`
	StopLevel      float64                 `json:"stop_level"`
	StopHit        bool                    `json:"stop_hit"`
	CurrentPrice   float64                 `json:"current_price"`
	PnlPercent     float64                 `json:"pnl_percent"`
	SignalStrength int                     `json:"signal_strength"`
	CreatedBy      string                  `json:"created_by"`
	LastUpdate     time.Time               `json:"last_update"`
}

func (p *Position) IsActive() bool {
	return p.Status == StatusActive
}

func (p *Position) AllTargetsHit() bool {
	for _, t := range p.Targets {
		if !t.Hit {
			return false
		}
	}
	return true
}

// RiskLevels holds the computed stop and ordered take-profit prices for an entry.
type RiskLevels struct {
	Entry   float64              `json:"entry"`
	Stop    float64              `json:"stop"`
	Targets [TargetCount]float64 `json:"targets"`
}

type CrossingKind string

const (
	CrossTarget CrossingKind = "target"
	CrossStop   CrossingKind = "stop"
)

// Crossing is one newly-detected level crossing observed during a reprice cycle.
type Crossing struct {
	Kind   CrossingKind `json:"kind"`
	Target int          `json:"target,omitempty"` // 1-based, zero for stop
	Level  float64      `json:"level"`
	Price  float64      `json:"price"`
	At     time.Time    `json:"at"`
}

// PositionUpdate carries the newly-crossed events for one position in one cycle.
type PositionUpdate struct {
	Key        PositionKey `json:"key"`
	Crossings  []Crossing  `json:"crossings"`
	Closed     bool        `json:"closed"`
	Reason     CloseReason `json:"reason,omitempty"`
	PnlPercent float64     `json:"pnl_percent"`
}

// SignalHistoryRecord remembers the last accepted notification for a key.
type SignalHistoryRecord struct {
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	NotifiedAt time.Time `json:"notified_at"`
}

// EvalResult is the outcome of one orchestrated evaluation, handed to the
// notification sink regardless of whether a position could be opened.
type EvalResult struct {
	Symbol          string     `json:"symbol"`
	Interval        string     `json:"interval"`
	Direction       Direction  `json:"direction"`
	CurrentPrice    float64    `json:"current_price"`
	Levels          RiskLevels `json:"levels"`
	Strength        int        `json:"strength"`
	Mode            string     `json:"mode,omitempty"`
	PositionCreated bool       `json:"position_created"`
	Notified        bool       `json:"notified"`
	Timestamp       time.Time  `json:"timestamp"`
}

type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Closed   bool      `json:"closed"`
}

// IndicatorSnapshot is the externally-computed indicator state a rule
// evaluation consumes. Prev* fields refer to the previous completed candle.
type IndicatorSnapshot struct {
	Symbol   string
	Interval string
	Price    float64

	EMAFast     float64
	EMASlow     float64
	PrevEMAFast float64
	PrevEMASlow float64

	RSI       float64
	RSIMA     float64
	PrevRSI   float64
	PrevRSIMA float64

	MACDLine       float64
	PrevMACDLine   float64
	MACDSignal     float64
	PrevMACDSignal float64

	BollUpper  float64
	BollMiddle float64
	BollLower  float64

	SqueezeOff bool
	ATR        float64
}

type PositionsSummary struct {
	Total      int     `json:"total"`
	Active     int     `json:"active"`
	Closed     int     `json:"closed"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRatePct float64 `json:"win_rate_pct"`
	OpenPnlPct float64 `json:"open_pnl_pct"`
}
