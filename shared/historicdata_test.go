package shared

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

const historicDataJSON = `{
	"market": "^GSPC",
	"5m": [
		{"open":10,"close":11,"high":12,"low":9,"volume":5,"date":"2025-02-04 10:05:00"},
		{"open":9,"close":10,"high":11,"low":8,"volume":5,"date":"2025-02-04 10:00:00"},
		{"open":11,"close":12,"high":13,"low":10,"volume":5,"date":"2025-02-04 10:10:00"}
	],
	"1H": [
		{"open":9,"close":12,"high":13,"low":8,"volume":15,"date":"2025-02-04 10:00:00"}
	]
}`

// writeHistoricData writes the provided historic data to a temporary file.
func writeHistoricData(t *testing.T, data string) string {
	path := filepath.Join(t.TempDir(), "historicdata.json")
	err := os.WriteFile(path, []byte(data), 0o600)
	assert.NoError(t, err)

	return path
}

func TestHistoricDataConfigValidate(t *testing.T) {
	// Ensure historic data cannot be initialized with an invalid config.
	_, err := NewHistoricData(&HistoricDataConfig{})
	assert.Error(t, err)

	cfg := &HistoricDataConfig{
		SignalCaughtUp:    func(signal CaughtUpSignal) {},
		NotifySubscribers: func(candle Candlestick) error { return nil },
		Logger:            &log.Logger,
	}

	// Ensure a missing file errors.
	cfg.FilePath = filepath.Join(t.TempDir(), "missing.json")
	_, err = NewHistoricData(cfg)
	assert.Error(t, err)

	// Ensure malformed json errors.
	cfg.FilePath = writeHistoricData(t, `{"market": `)
	_, err = NewHistoricData(cfg)
	assert.Error(t, err)

	// Ensure historic data without a market errors.
	cfg.FilePath = writeHistoricData(t, `{"5m": []}`)
	_, err = NewHistoricData(cfg)
	assert.Error(t, err)

	// Ensure historic data without candles errors.
	cfg.FilePath = writeHistoricData(t, `{"market": "^GSPC"}`)
	_, err = NewHistoricData(cfg)
	assert.Error(t, err)
}

func TestHistoricalData(t *testing.T) {
	caughtUpSignals := make(chan CaughtUpSignal, 5)
	signalCaughtUp := func(signal CaughtUpSignal) {
		caughtUpSignals <- signal
	}

	marketUpdateSignals := make(chan Candlestick, 5)
	notifySubscribers := func(candle Candlestick) error {
		marketUpdateSignals <- candle
		return nil
	}

	cfg := &HistoricDataConfig{
		FilePath:          writeHistoricData(t, historicDataJSON),
		SignalCaughtUp:    signalCaughtUp,
		NotifySubscribers: notifySubscribers,
		Logger:            &log.Logger,
	}

	// Ensure historic data can be initialized.
	historicData, err := NewHistoricData(cfg)
	assert.NoError(t, err)
	assert.Equal(t, historicData.FetchMarket(), "^GSPC")
	assert.Equal(t, historicData.FetchStartTime().Format(DateLayout), "2025-02-04 10:00:00")
	assert.Equal(t, historicData.FetchEndTime().Format(DateLayout), "2025-02-04 10:10:00")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var candles []Candlestick
	caughtUpCount := 0
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case candle := <-marketUpdateSignals:
				// The market must be caught up before any update is relayed.
				assert.Equal(t, caughtUpCount, 1)
				candle.Status <- Processed
				candles = append(candles, candle)
			case sig := <-caughtUpSignals:
				sig.Status <- Processed
				caughtUpCount++
			}
		}
	}()

	go func() {
		err := historicData.ProcessHistoricalData()
		assert.NoError(t, err)
		cancel()
	}()

	// Ensure the historical data process terminates gracefully.
	<-done
	assert.Equal(t, len(candles), 4)
	assert.Equal(t, caughtUpCount, 1)

	// Ensure candles are relayed by date, then by timeframe.
	assert.Equal(t, candles[0].Timeframe, FiveMinute)
	assert.Equal(t, candles[0].Close, float64(10))
	assert.Equal(t, candles[1].Timeframe, OneHour)
	assert.Equal(t, candles[2].Close, float64(11))
	assert.Equal(t, candles[3].Close, float64(12))
}

func TestHistoricalDataTimeout(t *testing.T) {
	cfg := &HistoricDataConfig{
		FilePath: writeHistoricData(t, historicDataJSON),
		SignalCaughtUp: func(signal CaughtUpSignal) {
			signal.Status <- Processed
		},
		NotifySubscribers: func(candle Candlestick) error {
			return nil
		},
		Logger: &log.Logger,
	}

	historicData, err := NewHistoricData(cfg)
	assert.NoError(t, err)

	// Ensure unprocessed market updates time out.
	err = historicData.ProcessHistoricalData()
	assert.Error(t, err)
}
