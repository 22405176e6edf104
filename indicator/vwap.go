package indicator

import (
	"fmt"
	"time"

	"github.com/dnldd/trend/shared"
	"go.uber.org/atomic"
)

const (
	// vwapResetHour is the hour (in new york time) at which the vwap resets for a new
	// trading day.
	vwapResetHour = 17
)

// VWAP represents a unit VWAP entry for a market.
type VWAP struct {
	Value float64
	Date  time.Time
}

// VWAPGenerator represents the Volume Weighted Average Price Indicator.
type VWAPGenerator struct {
	TypicalPriceVolume atomic.Float64
	Volume             atomic.Float64
	Current            atomic.Pointer[VWAP]
	Market             string
	Timeframe          shared.Timeframe
	LastUpdateTime     atomic.Pointer[time.Time]
}

// NewVWAPGenerator initializes a VWAP indicator for the provided market and timeframe.
func NewVWAPGenerator(market string, timeframe shared.Timeframe) *VWAPGenerator {
	return &VWAPGenerator{
		Market:    market,
		Timeframe: timeframe,
	}
}

// tradingDay returns the trading day the provided time belongs to. Trading days
// roll over at the vwap reset hour.
func tradingDay(t time.Time) time.Time {
	shifted := t.Add(time.Hour * time.Duration(24-vwapResetHour))
	return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, shifted.Location())
}

// Update cummulatively updates the VWAP indicator with the provided candlestick data.
func (v *VWAPGenerator) Update(candle *shared.Candlestick) (*VWAP, error) {
	if candle.Timeframe != v.Timeframe {
		return nil, fmt.Errorf("expected candles with timeframe %s, got %s",
			v.Timeframe.String(), candle.Timeframe.String())
	}

	last := v.LastUpdateTime.Load()
	if last != nil && !tradingDay(*last).Equal(tradingDay(candle.Date)) {
		v.Reset()
	}

	typicalPrice := (candle.High + candle.Low + candle.Close) / 3
	v.TypicalPriceVolume.Add(typicalPrice * candle.Volume)
	v.Volume.Add(candle.Volume)

	date := candle.Date
	v.LastUpdateTime.Store(&date)

	vwap := &VWAP{
		Date: candle.Date,
	}

	if v.TypicalPriceVolume.Load() == 0 {
		return vwap, nil
	}

	vwap.Value = v.TypicalPriceVolume.Load() / v.Volume.Load()
	v.Current.Store(vwap)

	return vwap, nil
}

// Reset resets the VWAP indicator after a trading session.
func (v *VWAPGenerator) Reset() {
	v.TypicalPriceVolume.Store(0)
	v.Volume.Store(0)
}
