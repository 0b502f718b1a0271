package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind distinguishes opening and closing signals.
type SignalKind string

const (
	SignalEntry SignalKind = "entry"
	SignalExit  SignalKind = "exit"
)

// SignalDirection is the sign of the deviation at emission time.
type SignalDirection string

const (
	DirectionUp   SignalDirection = "UP"
	DirectionDown SignalDirection = "DOWN"
)

// Signal is emitted by the detector when the cross-exchange deviation crosses
// the entry threshold, and again when it converges below the exit threshold.
type Signal struct {
	Symbol            string          `json:"symbol"`
	Exchange1         string          `json:"exchange1"`
	Exchange2         string          `json:"exchange2"`
	Deviation         decimal.Decimal `json:"deviation"`
	Direction         SignalDirection `json:"direction"`
	CheapExchange     string          `json:"cheapExchange"`
	ExpensiveExchange string          `json:"expensiveExchange"`
	Kind              SignalKind      `json:"kind"`
	Timestamp         time.Time       `json:"timestamp"`
}
