package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/trend/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

const historicDataJSON = `{
	"market": "^GSPC",
	"5m": [
		{"open":9,"close":10,"high":11,"low":8,"volume":5,"date":"2025-02-04 10:00:00"},
		{"open":10,"close":11,"high":12,"low":9,"volume":5,"date":"2025-02-04 10:05:00"},
		{"open":11,"close":12,"high":13,"low":10,"volume":5,"date":"2025-02-04 10:10:00"},
		{"open":12,"close":12,"high":13,"low":11,"volume":5,"date":"2025-02-04 10:15:00"},
		{"open":12,"close":9,"high":12,"low":8,"volume":5,"date":"2025-02-04 10:20:00"}
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

func TestTrendConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         TrendConfig
		errContains []string
	}{
		{
			name: "valid live config",
			cfg: TrendConfig{
				Markets:   []string{"^GSPC"},
				FMPAPIKey: "key",
				Window:    4,
				Fields:    []shared.PriceField{shared.ClosePrice},
				Cancel:    func() {},
			},
		},
		{
			name: "valid backtest config",
			cfg: TrendConfig{
				Backtest:             true,
				BacktestDataFilepath: "data.json",
				Window:               4,
				Fields:               []shared.PriceField{shared.ClosePrice},
				Cancel:               func() {},
			},
		},
		{
			name: "invalid live config",
			cfg:  TrendConfig{},
			errContains: []string{
				"no markets provided",
				"fmp api key cannot be an empty string",
				"window must be at least 2",
				"no price fields provided",
				"context cancellation function cannot be nil",
			},
		},
		{
			name: "invalid backtest config",
			cfg: TrendConfig{
				Backtest: true,
				Window:   4,
				Fields:   []shared.PriceField{shared.ClosePrice},
				Cancel:   func() {},
			},
			errContains: []string{"backtest data filepath cannot be an empty string"},
		},
	}

	for _, test := range tests {
		err := test.cfg.Validate()
		if len(test.errContains) == 0 {
			if err != nil {
				t.Errorf("%s: expected no error, got %v", test.name, err)
			}
			continue
		}

		if err == nil {
			t.Errorf("%s: expected an error, got none", test.name)
			continue
		}

		for _, want := range test.errContains {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("%s: expected error to contain %q, got %v", test.name, want, err)
			}
		}
	}
}

func TestTrendBacktest(t *testing.T) {
	var statements []string
	var statementsMtx sync.Mutex
	db := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "INSERT INTO trendsignal") {
			// Slow persistence keeps signals in flight when the backtest completes.
			time.Sleep(time.Millisecond * 50)
		}
		statementsMtx.Lock()
		statements = append(statements, string(body))
		statementsMtx.Unlock()

		w.Write([]byte(`{"results":[{"rows_affected":1}],"time":0.001}`))
	}))
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &TrendConfig{
		Backtest:             true,
		BacktestDataFilepath: writeHistoricData(t, historicDataJSON),
		Timeframe:            shared.FiveMinute,
		Window:               4,
		Fields:               []shared.PriceField{shared.ClosePrice},
		DBEndpoint:           db.URL,
		Cancel:               cancel,
	}

	trend, err := NewTrend(ctx, cfg)
	assert.NoError(t, err)

	// Ensure the backtest runs to completion and terminates the service.
	done := make(chan struct{})
	go func() {
		trend.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting on backtest to complete")
	}

	// Ensure every trend change was signalled: rising, rising non-strict, not monotonic.
	assert.Equal(t, trend.signalCount.Load(), int64(3))
	assert.Equal(t, trend.pending.Load(), int64(0))

	// Ensure the tables were bootstrapped and all signals persisted.
	statementsMtx.Lock()
	defer statementsMtx.Unlock()
	assert.Equal(t, len(statements), 4)
	assert.True(t, strings.Contains(statements[0], "CREATE TABLE IF NOT EXISTS trendsignal"))
	for _, stmt := range statements[1:] {
		assert.True(t, strings.Contains(stmt, "INSERT INTO trendsignal"))
	}
}

func TestTrendGracefulShutdown(t *testing.T) {
	fmp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer fmp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &TrendConfig{
		Markets:    []string{"^GSPC"},
		FMPAPIKey:  "key",
		FMPBaseURL: fmp.URL,
		Timeframe:  shared.FiveMinute,
		Window:     4,
		Fields:     []shared.PriceField{shared.ClosePrice, shared.VWAPValue},
		Cancel:     cancel,
	}

	trend, err := NewTrend(ctx, cfg)
	assert.NoError(t, err)

	// Ensure the trend service can be run and gracefully terminated.
	time.AfterFunc(time.Millisecond*500, func() {
		cancel()
	})

	done := make(chan struct{})
	go func() {
		trend.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting on the trend service to terminate")
	}

	// Ensure the market was caught up without any market data.
	state, err := trend.marketManager.FetchCaughtUpState("^GSPC")
	assert.NoError(t, err)
	assert.True(t, state)
}

// StoreMock records the context state of persisted trend signals.
type StoreMock struct {
	mtx       sync.Mutex
	persisted []string
	ctxErrs   []error
}

func (m *StoreMock) PersistTrendSignal(ctx context.Context, signal *shared.TrendSignal) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.persisted = append(m.persisted, signal.ID)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())

	return ctx.Err()
}

func newTestTrend(store shared.TrendStorer) *Trend {
	return &Trend{
		cfg:          &TrendConfig{Backtest: true, Cancel: func() {}},
		store:        store,
		trendSignals: make(chan shared.TrendSignal, bufferSize),
		logger:       &log.Logger,
	}
}

func newTestTrendSignal() shared.TrendSignal {
	return shared.NewTrendSignal("^GSPC", shared.FiveMinute, shared.ClosePrice, 4,
		shared.NotMonotonicResult, shared.NewRising(true), 12, time.Now())
}

func TestHandleTrendSignalAfterTermination(t *testing.T) {
	store := &StoreMock{}
	trend := newTestTrend(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Ensure a trend signal handled after termination is still persisted.
	signal := newTestTrendSignal()
	trend.SendTrendSignal(signal)
	assert.Equal(t, trend.pending.Load(), int64(1))

	queued := <-trend.trendSignals
	err := trend.handleTrendSignal(ctx, &queued)
	assert.NoError(t, err)
	assert.Equal(t, <-signal.Status, shared.Processed)
	assert.Equal(t, trend.pending.Load(), int64(0))

	store.mtx.Lock()
	defer store.mtx.Unlock()
	assert.Equal(t, store.persisted, []string{signal.ID})
	assert.Nil(t, store.ctxErrs[0])
}

func TestWaitForPendingSignals(t *testing.T) {
	store := &StoreMock{}
	trend := newTestTrend(store)

	// Ensure waiting without pending signals returns immediately.
	err := trend.waitForPendingSignals(time.Millisecond * 50)
	assert.NoError(t, err)

	// Ensure waiting on unprocessed signals times out.
	trend.SendTrendSignal(newTestTrendSignal())
	trend.SendTrendSignal(newTestTrendSignal())
	err = trend.waitForPendingSignals(time.Millisecond * 50)
	assert.Error(t, err)

	// Ensure waiting returns once pending signals are processed, even when the
	// service is terminated while they are in flight.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trend.processTrendSignals(ctx)
		close(done)
	}()

	err = trend.waitForPendingSignals(time.Second * 2)
	assert.NoError(t, err)
	cancel()
	<-done

	store.mtx.Lock()
	defer store.mtx.Unlock()
	assert.Equal(t, len(store.persisted), 2)
	for _, ctxErr := range store.ctxErrs {
		assert.Nil(t, ctxErr)
	}
}

func TestFillTrendSignalChannel(t *testing.T) {
	trend := newTestTrend(nil)

	// Ensure dropped trend signals are not counted as pending.
	for range bufferSize + 1 {
		trend.SendTrendSignal(newTestTrendSignal())
	}

	assert.Equal(t, len(trend.trendSignals), bufferSize)
	assert.Equal(t, trend.pending.Load(), int64(bufferSize))
}
