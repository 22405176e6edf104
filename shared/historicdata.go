package shared

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// FilePath is the filepath to the historic market data.
	FilePath string
	// SignalCaughtUp signals a market is caught up on market data.
	SignalCaughtUp func(signal CaughtUpSignal)
	// NotifySubscribers relays the provided market update to all subscribers.
	NotifySubscribers func(candle Candlestick) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HistoricDataConfig) Validate() error {
	var errs error

	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("historic data filepath cannot be an empty string"))
	}
	if cfg.SignalCaughtUp == nil {
		errs = errors.Join(errs, fmt.Errorf("signal caught up function cannot be nil"))
	}
	if cfg.NotifySubscribers == nil {
		errs = errors.Join(errs, fmt.Errorf("notify subscribers function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// HistoricData represents historic market data.
type HistoricData struct {
	cfg        *HistoricDataConfig
	market     string
	candles    []Candlestick
	timeframes []string
	startTime  time.Time
	endTime    time.Time
}

// loadHistoricData loads the historic data bytes from the provided file path.
func loadHistoricData(filepath string) (*gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("invalid historic data json in file with path '%s'", filepath)
	}

	b := gjson.ParseBytes(readb)

	return &b, nil
}

// compareCandlesticks orders candlesticks by date, then by timeframe with the shorter timeframe first.
func compareCandlesticks(a, b Candlestick) int {
	switch {
	case a.Date.Before(b.Date):
		return -1
	case a.Date.After(b.Date):
		return 1
	}

	switch {
	case a.Timeframe == FiveMinute && b.Timeframe == OneHour:
		return -1
	case a.Timeframe == OneHour && b.Timeframe == FiveMinute:
		return 1
	default:
		return 0
	}
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating historic data config: %w", err)
	}

	b, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	market := b.Get("market").String()
	if market == "" {
		return nil, fmt.Errorf("no market provided in historic data")
	}

	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	historicData := HistoricData{
		market: market,
		cfg:    cfg,
	}

	timeframes := []Timeframe{FiveMinute, OneHour}
	for idx := range timeframes {
		timeframe := timeframes[idx]

		data := b.Get(timeframe.String()).Array()
		if len(data) == 0 {
			continue
		}

		candles, err := ParseCandlesticks(data, market, timeframe, loc)
		if err != nil {
			return nil, fmt.Errorf("parsing candlesticks: %w", err)
		}

		historicData.timeframes = append(historicData.timeframes, timeframe.String())
		historicData.candles = append(historicData.candles, candles...)
	}

	if len(historicData.candles) == 0 {
		return nil, fmt.Errorf("no candlesticks found in historic data for %s", market)
	}

	slices.SortFunc(historicData.candles, compareCandlesticks)

	historicData.startTime = historicData.candles[0].Date
	historicData.endTime = historicData.candles[len(historicData.candles)-1].Date

	return &historicData, nil
}

// ProcessHistoricalData streams historical data for a market, waiting on each
// update to be processed before relaying the next.
func (h *HistoricData) ProcessHistoricalData() error {
	timeDiffInHours := h.endTime.Sub(h.startTime).Hours()
	tfs := strings.Join(h.timeframes, ",")
	h.cfg.Logger.Info().Msgf("processing historical [%s] data covering %.2f hours, from %s, to %s",
		tfs, timeDiffInHours, h.startTime.Format(time.RFC1123), h.endTime.Format(time.RFC1123))

	// Every trend change in the historical data is signalled.
	sig := NewCaughtUpSignal(h.market)
	h.cfg.SignalCaughtUp(sig)
	select {
	case <-sig.Status:
	case <-time.After(TimeoutDuration):
		return fmt.Errorf("timed out processing caught up signal for %s", h.market)
	}

	for idx := range h.candles {
		candle := h.candles[idx]
		err := h.cfg.NotifySubscribers(candle)
		if err != nil {
			return fmt.Errorf("processing historical data: %w", err)
		}

		select {
		case <-candle.Status:
		case <-time.After(TimeoutDuration):
			return fmt.Errorf("timed out processing %s market update at %s", h.market,
				candle.Date.Format(DateLayout))
		}
	}

	h.cfg.Logger.Info().Msgf("processed %d historical candles for %s", len(h.candles), h.market)

	return nil
}

// FetchStartTime returns the start time of the loaded historical data.
func (h *HistoricData) FetchStartTime() time.Time {
	return h.startTime
}

// FetchEndTime returns the end time of the loaded historical data.
func (h *HistoricData) FetchEndTime() time.Time {
	return h.endTime
}

// FetchMarket returns the backtest market.
func (h *HistoricData) FetchMarket() string {
	return h.market
}
