package market

import (
	"fmt"
	"sync"

	"github.com/dnldd/trend/indicator"
	"github.com/dnldd/trend/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// minWindow is the smallest window that can establish a trend.
	minWindow = 2
)

// MarketConfig represents the market configuration.
type MarketConfig struct {
	// Market is the name of the tracked market.
	Market string
	// Timeframe is the tracked timeframe.
	Timeframe shared.Timeframe
	// Fields are the price fields classified on every update.
	Fields []shared.PriceField
	// Window is the number of most recent candles classified on every update.
	Window int32
	// SignalTrend relays the provided trend signal.
	SignalTrend func(signal shared.TrendSignal)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Market tracks the monotonic trends of a market's price fields.
type Market struct {
	cfg            *MarketConfig
	candleSnapshot *shared.CandlestickSnapshot
	vwapGenerator  *indicator.VWAPGenerator
	trends         map[shared.PriceField]shared.Monotonic
	trendsMtx      sync.RWMutex
	caughtUp       atomic.Bool
}

// NewMarket initializes a new market.
func NewMarket(cfg *MarketConfig) (*Market, error) {
	if cfg.Window < minWindow {
		return nil, fmt.Errorf("window must be at least %d, got %d", minWindow, cfg.Window)
	}

	size := cfg.Window
	if size < shared.SnapshotSize {
		size = shared.SnapshotSize
	}

	candleSnapshot, err := shared.NewCandlestickSnapshot(size, cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("creating candlestick snapshot: %w", err)
	}

	return &Market{
		cfg:            cfg,
		candleSnapshot: candleSnapshot,
		vwapGenerator:  indicator.NewVWAPGenerator(cfg.Market, cfg.Timeframe),
		trends:         make(map[shared.PriceField]shared.Monotonic, len(cfg.Fields)),
	}, nil
}

// SetCaughtUpStatus sets the caught up status of the market.
func (m *Market) SetCaughtUpStatus(status bool) {
	m.caughtUp.Store(status)
}

// CaughtUp returns the caught up status of the market.
func (m *Market) CaughtUp() bool {
	return m.caughtUp.Load()
}

// Trend returns the last classification of the provided field.
func (m *Market) Trend(field shared.PriceField) (shared.Monotonic, bool) {
	m.trendsMtx.RLock()
	defer m.trendsMtx.RUnlock()

	trend, ok := m.trends[field]
	return trend, ok
}

// Update processes incoming market data for the market.
func (m *Market) Update(candle *shared.Candlestick) error {
	if candle.Timeframe != m.cfg.Timeframe {
		// do nothing.
		return nil
	}

	vwap, err := m.vwapGenerator.Update(candle)
	if err != nil {
		return fmt.Errorf("updating vwap: %w", err)
	}
	candle.VWAP = vwap.Value

	err = m.candleSnapshot.Update(candle)
	if err != nil {
		return fmt.Errorf("updating candlestick snapshot: %w", err)
	}

	if m.candleSnapshot.Count() < minWindow {
		return nil
	}

	m.trendsMtx.Lock()
	defer m.trendsMtx.Unlock()

	for idx := range m.cfg.Fields {
		field := m.cfg.Fields[idx]
		series := m.candleSnapshot.Series(field, m.cfg.Window)
		current := shared.Classify[float64](series)

		previous, seen := m.trends[field]
		if seen && previous == current {
			continue
		}

		m.trends[field] = current
		m.cfg.Logger.Debug().Msgf("%s %s %s trend changed from %s to %s", m.cfg.Market,
			m.cfg.Timeframe.String(), field.String(), previous.String(), current.String())

		if !previous.IsMonotonic() && !current.IsMonotonic() {
			// Only changes into or out of a trend are signalled.
			continue
		}

		if !m.caughtUp.Load() {
			// Track trends while catching up but only signal live changes.
			continue
		}

		signal := shared.NewTrendSignal(m.cfg.Market, m.cfg.Timeframe, field, int32(series.Len()),
			previous, current, field.Value(candle), candle.Date)
		m.cfg.SignalTrend(signal)
	}

	return nil
}

// Classify returns the monotonic property of the last n values of the provided field
// traversed in the provided direction. The number of values is clamped to the
// available candles when n is not positive or exceeds them.
func (m *Market) Classify(field shared.PriceField, n int32, direction shared.Direction) (shared.Monotonic, int32) {
	count := m.candleSnapshot.Count()
	if n <= 0 || n > count {
		n = count
	}

	series := m.candleSnapshot.Series(field, n)
	view := shared.NewView[float64](series, direction)

	return shared.Classify[float64](view), int32(view.Len())
}
