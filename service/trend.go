package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/trend/database"
	"github.com/dnldd/trend/fetch"
	"github.com/dnldd/trend/market"
	"github.com/dnldd/trend/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// persistTimeout is the maximum time spent persisting a trend signal.
	persistTimeout = time.Second * 5
	// drainTimeout is the maximum time spent waiting on pending trend signals
	// before a backtest terminates the service.
	drainTimeout = time.Second * 10
	// drainInterval is the pending trend signals polling interval.
	drainInterval = time.Millisecond * 10
)

// TrendConfig represents the configuration struct for the trend service.
type TrendConfig struct {
	// Markets represents the tracked markets.
	Markets []string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// FMPBaseURL is the FMP api base url, defaults to the public api.
	FMPBaseURL string
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// Timeframe is the tracked timeframe.
	Timeframe shared.Timeframe
	// Window is the number of most recent candles classified on every update.
	Window int32
	// Fields are the price fields classified on every update.
	Fields []shared.PriceField
	// CatchUpWindow is the period of market data fetched on start.
	CatchUpWindow time.Duration
	// DBEndpoint is the rqlite endpoint trend signals are persisted to, optional.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *TrendConfig) Validate() error {
	var errs error

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
	case false:
		if len(cfg.Markets) == 0 {
			errs = errors.Join(errs, fmt.Errorf("no markets provided for trend service"))
		}
		if cfg.FMPAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
		}
	}

	if cfg.Window < 2 {
		errs = errors.Join(errs, fmt.Errorf("window must be at least 2"))
	}
	if len(cfg.Fields) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no price fields provided for trend service"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Trend represents a market trend tracking service.
type Trend struct {
	cfg           *TrendConfig
	fetchManager  *fetch.Manager
	marketManager *market.Manager
	historicData  *shared.HistoricData
	store         shared.TrendStorer
	trendSignals  chan shared.TrendSignal
	signalCount   atomic.Int64
	pending       atomic.Int64
	logger        *zerolog.Logger
	wg            sync.WaitGroup
}

// NewTrend initializes a new trend service.
func NewTrend(ctx context.Context, cfg *TrendConfig) (*Trend, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating trend config: %w", err)
	}

	var marketMgr *market.Manager
	var fetchMgr *fetch.Manager
	var historicData *shared.HistoricData

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "trend").Logger()

	service := &Trend{
		cfg:          cfg,
		trendSignals: make(chan shared.TrendSignal, bufferSize),
		logger:       &logger,
	}

	caughtUpFunc := func(signal shared.CaughtUpSignal) {
		if marketMgr != nil {
			marketMgr.SendCaughtUpSignal(signal)
		}
	}

	markets := cfg.Markets
	var subscribeFunc func(name string, sub chan shared.Candlestick)

	switch cfg.Backtest {
	case true:
		// Backtest market updates are relayed straight to the market manager.
		notifySubscribersFunc := func(candle shared.Candlestick) error {
			if marketMgr != nil {
				marketMgr.SendMarketUpdate(candle)
			}

			return nil
		}

		historicDataLogger := logger.With().Str("component", "historicdata").Logger()
		historicData, err = shared.NewHistoricData(&shared.HistoricDataConfig{
			FilePath:          cfg.BacktestDataFilepath,
			SignalCaughtUp:    caughtUpFunc,
			NotifySubscribers: notifySubscribersFunc,
			Logger:            &historicDataLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating historic data: %w", err)
		}

		markets = []string{historicData.FetchMarket()}
		subscribeFunc = func(name string, sub chan shared.Candlestick) {}

	case false:
		_, loc, err := shared.NewYorkTime()
		if err != nil {
			return nil, fmt.Errorf("fetching new york time: %w", err)
		}

		baseURL := cfg.FMPBaseURL
		if baseURL == "" {
			baseURL = fetch.BaseURL
		}

		fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{APIKey: cfg.FMPAPIKey, BaseURL: baseURL})
		if err != nil {
			return nil, fmt.Errorf("creating fmp client: %w", err)
		}

		fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
		fetchMgr, err = fetch.NewManager(&fetch.ManagerConfig{
			Markets:        markets,
			Timeframe:      cfg.Timeframe,
			ExchangeClient: fmp,
			SignalCaughtUp: caughtUpFunc,
			CatchUpWindow:  cfg.CatchUpWindow,
			JobScheduler:   gocron.NewScheduler(loc),
			Logger:         &fetchMgrLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating fetch manager: %w", err)
		}

		subscribeFunc = fetchMgr.Subscribe
	}

	marketMgrLogger := logger.With().Str("component", "marketmanager").Logger()
	marketMgr, err = market.NewManager(&market.ManagerConfig{
		Markets:     markets,
		Timeframe:   cfg.Timeframe,
		Fields:      cfg.Fields,
		Window:      cfg.Window,
		Subscribe:   subscribeFunc,
		SignalTrend: service.SendTrendSignal,
		Logger:      &marketMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market manager: %w", err)
	}

	if cfg.DBEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}

		service.store = db
	}

	service.fetchManager = fetchMgr
	service.marketManager = marketMgr
	service.historicData = historicData

	return service, nil
}

// SendTrendSignal relays the provided trend signal for processing.
func (t *Trend) SendTrendSignal(signal shared.TrendSignal) {
	t.pending.Inc()
	select {
	case t.trendSignals <- signal:
		// do nothing.
	default:
		t.pending.Dec()
		t.logger.Error().Msgf("trend signal channel at capacity: %d/%d",
			len(t.trendSignals), bufferSize)
	}
}

// handleTrendSignal logs and persists the provided trend signal.
func (t *Trend) handleTrendSignal(ctx context.Context, signal *shared.TrendSignal) error {
	defer func() {
		t.pending.Dec()
		select {
		case signal.Status <- shared.Processed:
		default:
		}
	}()

	t.signalCount.Inc()
	t.logger.Info().
		Str("id", signal.ID).
		Str("market", signal.Market).
		Str("timeframe", signal.Timeframe.String()).
		Str("field", signal.Field.String()).
		Int32("window", signal.Window).
		Str("previous", signal.Previous.String()).
		Str("current", signal.Current.String()).
		Float64("price", signal.Price).
		Time("createdon", signal.CreatedOn).
		Msg("trend changed")

	if t.store == nil {
		return nil
	}

	// Persistence outlives service termination so signals in flight are not lost.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := t.store.PersistTrendSignal(ctx, signal)
	if err != nil {
		return fmt.Errorf("persisting trend signal: %w", err)
	}

	return nil
}

// processTrendSignals handles trend signals until the provided context is cancelled,
// flushing signals raised before termination.
func (t *Trend) processTrendSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case signal := <-t.trendSignals:
					err := t.handleTrendSignal(ctx, &signal)
					if err != nil {
						t.logger.Error().Err(err).Send()
					}
				default:
					return
				}
			}

		case signal := <-t.trendSignals:
			err := t.handleTrendSignal(ctx, &signal)
			if err != nil {
				t.logger.Error().Err(err).Send()
			}
		}
	}
}

// waitForPendingSignals blocks until every relayed trend signal has been handled.
func (t *Trend) waitForPendingSignals(timeout time.Duration) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for t.pending.Load() > 0 {
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("timed out waiting on %d pending trend signals", t.pending.Load())
		}
	}

	return nil
}

// Run handles the lifecycle processes of the trend service.
func (t *Trend) Run(ctx context.Context) {
	t.wg.Add(2)

	go func() {
		t.marketManager.Run(ctx)
		t.wg.Done()
	}()

	go func() {
		t.processTrendSignals(ctx)
		t.wg.Done()
	}()

	switch t.cfg.Backtest {
	case true:
		go func() {
			err := t.historicData.ProcessHistoricalData()
			if err != nil {
				t.logger.Error().Err(err).Msg("processing historical data")
			}

			err = t.waitForPendingSignals(drainTimeout)
			if err != nil {
				t.logger.Error().Err(err).Send()
			}

			t.logger.Info().Msgf("backtest for %s done", t.historicData.FetchMarket())
			t.cfg.Cancel()
		}()

	case false:
		t.wg.Add(1)
		go func() {
			t.fetchManager.Run(ctx)
			t.wg.Done()
		}()
	}

	t.wg.Wait()

	t.logger.Info().Msgf("trend service stopped after %d trend signals", t.signalCount.Load())
}
