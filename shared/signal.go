package shared

import (
	"time"

	"github.com/google/uuid"
)

// StatusCode represents a request or signal status code.
type StatusCode int

const (
	Processing StatusCode = iota
	Processed
)

// TrendSignal represents a change in the monotonic trend of a tracked market series.
type TrendSignal struct {
	ID        string
	Market    string
	Timeframe Timeframe
	Field     PriceField
	Window    int32
	Previous  Monotonic
	Current   Monotonic
	Price     float64
	CreatedOn time.Time
	Status    chan StatusCode
}

// NewTrendSignal initializes a new trend signal.
func NewTrendSignal(market string, timeframe Timeframe, field PriceField, window int32,
	previous Monotonic, current Monotonic, price float64, created time.Time) TrendSignal {
	return TrendSignal{
		ID:        uuid.New().String(),
		Market:    market,
		Timeframe: timeframe,
		Field:     field,
		Window:    window,
		Previous:  previous,
		Current:   current,
		Price:     price,
		CreatedOn: created,
		Status:    make(chan StatusCode, 1),
	}
}

// CatchUpSignal represents a signal to catchup on market data.
type CatchUpSignal struct {
	Market    string
	Timeframe Timeframe
	Start     time.Time
	Status    chan StatusCode
}

// NewCatchUpSignal initializes a new catch up signal.
func NewCatchUpSignal(market string, timeframe Timeframe, start time.Time) CatchUpSignal {
	return CatchUpSignal{
		Market:    market,
		Timeframe: timeframe,
		Start:     start,
		Status:    make(chan StatusCode, 1),
	}
}

// CaughtUpSignal represents a signal to conclude a catch up on market data.
type CaughtUpSignal struct {
	Market string
	Status chan StatusCode
}

// NewCaughtUpSignal initializes a new caught up signal.
func NewCaughtUpSignal(market string) CaughtUpSignal {
	return CaughtUpSignal{
		Market: market,
		Status: make(chan StatusCode, 1),
	}
}
