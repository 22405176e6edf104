package market

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dnldd/trend/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// maxWorkers is the maximum number of concurrent workers.
	maxWorkers = 8
	// subscriberName is the name the manager subscribes for market updates with.
	subscriberName = "marketmanager"
)

// ManagerConfig represents the market manager configuration.
type ManagerConfig struct {
	// Markets represents the collection of ids of the markets to manage.
	Markets []string
	// Timeframe is the tracked timeframe.
	Timeframe shared.Timeframe
	// Fields are the price fields classified on every update.
	Fields []shared.PriceField
	// Window is the number of most recent candles classified on every update.
	Window int32
	// Subscribe registers the provided named subscriber for market updates.
	Subscribe func(name string, sub chan shared.Candlestick)
	// SignalTrend relays the provided trend signal.
	SignalTrend func(signal shared.TrendSignal)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for market manager"))
	}
	if len(cfg.Fields) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no price fields provided for market manager"))
	}
	if cfg.Window < minWindow {
		errs = errors.Join(errs, fmt.Errorf("window must be at least %d", minWindow))
	}
	if cfg.Subscribe == nil {
		errs = errors.Join(errs, fmt.Errorf("subscribe function cannot be nil"))
	}
	if cfg.SignalTrend == nil {
		errs = errors.Join(errs, fmt.Errorf("signal trend function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager manages the lifecycle processes of all tracked markets.
type Manager struct {
	cfg                    *ManagerConfig
	markets                map[string]*Market
	marketsMtx             sync.RWMutex
	updateSignals          chan shared.Candlestick
	caughtUpSignals        chan shared.CaughtUpSignal
	classificationRequests chan shared.ClassificationRequest
	marketWorkers          map[string]chan struct{}
	workers                chan struct{}
}

// NewManager initializes a new market manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating market manager config: %w", err)
	}

	markets := make(map[string]*Market, len(cfg.Markets))
	marketWorkers := make(map[string]chan struct{}, len(cfg.Markets))
	for idx := range cfg.Markets {
		mkt, err := NewMarket(&MarketConfig{
			Market:      cfg.Markets[idx],
			Timeframe:   cfg.Timeframe,
			Fields:      cfg.Fields,
			Window:      cfg.Window,
			SignalTrend: cfg.SignalTrend,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s market: %w", cfg.Markets[idx], err)
		}

		markets[cfg.Markets[idx]] = mkt
		// Updates for a market are processed one at a time and in order.
		marketWorkers[cfg.Markets[idx]] = make(chan struct{}, 1)
	}

	mgr := &Manager{
		cfg:                    cfg,
		markets:                markets,
		updateSignals:          make(chan shared.Candlestick, bufferSize),
		caughtUpSignals:        make(chan shared.CaughtUpSignal, bufferSize),
		classificationRequests: make(chan shared.ClassificationRequest, bufferSize),
		marketWorkers:          marketWorkers,
		workers:                make(chan struct{}, maxWorkers),
	}

	// Subscribe before running so no catch up data is missed.
	cfg.Subscribe(subscriberName, mgr.updateSignals)

	return mgr, nil
}

// fetchMarket returns the tracked market with the provided name.
func (m *Manager) fetchMarket(name string) (*Market, error) {
	m.marketsMtx.RLock()
	defer m.marketsMtx.RUnlock()

	mkt, ok := m.markets[name]
	if !ok {
		return nil, fmt.Errorf("no market found with name %s", name)
	}

	return mkt, nil
}

// SendMarketUpdate relays the provided candlestick for processing.
func (m *Manager) SendMarketUpdate(candle shared.Candlestick) {
	select {
	case m.updateSignals <- candle:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("market update channel at capacity: %d/%d",
			len(m.updateSignals), bufferSize)
	}
}

// SendCaughtUpSignal relays the provided caught up signal for processing.
func (m *Manager) SendCaughtUpSignal(signal shared.CaughtUpSignal) {
	select {
	case m.caughtUpSignals <- signal:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("caught up signal channel at capacity: %d/%d",
			len(m.caughtUpSignals), bufferSize)
	}
}

// SendClassificationRequest relays the provided classification request for processing.
func (m *Manager) SendClassificationRequest(req shared.ClassificationRequest) {
	select {
	case m.classificationRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("classification request channel at capacity: %d/%d",
			len(m.classificationRequests), bufferSize)
	}
}

// FetchCaughtUpState returns the caught up state of the provided market.
func (m *Manager) FetchCaughtUpState(market string) (bool, error) {
	mkt, err := m.fetchMarket(market)
	if err != nil {
		return false, err
	}

	return mkt.CaughtUp(), nil
}

// signalStatus marks the provided status channel processed without blocking.
func signalStatus(status chan shared.StatusCode) {
	if status == nil {
		return
	}

	select {
	case status <- shared.Processed:
	default:
	}
}

// handleUpdateCandle processes the provided market update candle.
func (m *Manager) handleUpdateCandle(candle *shared.Candlestick) error {
	defer signalStatus(candle.Status)

	mkt, err := m.fetchMarket(candle.Market)
	if err != nil {
		return err
	}

	err = mkt.Update(candle)
	if err != nil {
		return fmt.Errorf("updating %s market: %w", candle.Market, err)
	}

	return nil
}

// handleCaughtUpSignal processes the provided caught up signal.
func (m *Manager) handleCaughtUpSignal(signal *shared.CaughtUpSignal) error {
	defer signalStatus(signal.Status)

	mkt, err := m.fetchMarket(signal.Market)
	if err != nil {
		return err
	}

	mkt.SetCaughtUpStatus(true)
	m.cfg.Logger.Info().Msgf("%s market caught up", signal.Market)

	return nil
}

// handleClassificationRequest processes the provided classification request.
func (m *Manager) handleClassificationRequest(req *shared.ClassificationRequest) error {
	mkt, err := m.fetchMarket(req.Market)
	if err != nil {
		req.Response <- shared.ClassificationResponse{Result: shared.NotMonotonicResult, Err: err}
		return err
	}

	if req.Timeframe != m.cfg.Timeframe {
		err := fmt.Errorf("%s timeframe is not tracked for %s", req.Timeframe.String(), req.Market)
		req.Response <- shared.ClassificationResponse{Result: shared.NotMonotonicResult, Err: err}
		return err
	}

	result, size := mkt.Classify(req.Field, req.N, req.Direction)
	req.Response <- shared.ClassificationResponse{Result: result, Size: size}

	return nil
}

// Run manages the lifecycle processes of the market manager.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case candle := <-m.updateSignals:
			// use the dedicated market worker to handle the update signal.
			worker, ok := m.marketWorkers[candle.Market]
			if !ok {
				m.cfg.Logger.Error().Msgf("no market found with name %s for update", candle.Market)
				signalStatus(candle.Status)
				continue
			}

			select {
			case worker <- struct{}{}:
			case <-ctx.Done():
				signalStatus(candle.Status)
				return
			}

			go func(candle *shared.Candlestick) {
				err := m.handleUpdateCandle(candle)
				if err != nil {
					m.cfg.Logger.Error().Err(err).Send()
				}
				<-worker
			}(&candle)

		case signal := <-m.caughtUpSignals:
			// wait for in-flight updates of the market before marking it caught up.
			worker, ok := m.marketWorkers[signal.Market]
			if !ok {
				m.cfg.Logger.Error().Msgf("no market found with name %s for caught up signal", signal.Market)
				signalStatus(signal.Status)
				continue
			}

			select {
			case worker <- struct{}{}:
			case <-ctx.Done():
				signalStatus(signal.Status)
				return
			}

			err := m.handleCaughtUpSignal(&signal)
			if err != nil {
				m.cfg.Logger.Error().Err(err).Send()
			}
			<-worker

		case req := <-m.classificationRequests:
			select {
			case m.workers <- struct{}{}:
			case <-ctx.Done():
				req.Response <- shared.ClassificationResponse{Result: shared.NotMonotonicResult, Err: ctx.Err()}
				return
			}

			go func(req *shared.ClassificationRequest) {
				err := m.handleClassificationRequest(req)
				if err != nil {
					m.cfg.Logger.Error().Err(err).Send()
				}
				<-m.workers
			}(&req)
		}
	}
}
