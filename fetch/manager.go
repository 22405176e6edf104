package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dnldd/trend/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// maxWorkers is the maximum number of concurrent workers.
	maxWorkers = 8
	// defaultCatchUpWindow is the default period of market data fetched on start.
	defaultCatchUpWindow = time.Hour * 24
)

// ManagerConfig represents the configuration for the fetch manager.
type ManagerConfig struct {
	// Markets represents the collection of ids of the markets to fetch data for.
	Markets []string
	// Timeframe is the fetched timeframe.
	Timeframe shared.Timeframe
	// ExchangeClient represents the market exchange client.
	ExchangeClient shared.MarketFetcher
	// SignalCaughtUp signals a market is caught up on market data.
	SignalCaughtUp func(signal shared.CaughtUpSignal)
	// CatchUpWindow is the period of market data fetched on start.
	CatchUpWindow time.Duration
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for fetch manager"))
	}
	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.SignalCaughtUp == nil {
		errs = errors.Join(errs, fmt.Errorf("signal caught up function cannot be nil"))
	}
	if cfg.CatchUpWindow < 0 {
		errs = errors.Join(errs, fmt.Errorf("catch up window cannot be negative"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager represents the market data fetch manager.
type Manager struct {
	cfg              *ManagerConfig
	location         *time.Location
	lastUpdatedTimes map[string]time.Time
	caughtUp         map[string]bool
	marketStateMtx   sync.RWMutex
	marketLocks      map[string]*sync.Mutex
	catchUpSignals   chan shared.CatchUpSignal
	subscribers      map[string]chan shared.Candlestick
	subscribersMtx   sync.RWMutex
	workers          chan struct{}
}

// NewManager initializes the fetch manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fetch manager config: %w", err)
	}

	_, err = cfg.Timeframe.Duration()
	if err != nil {
		return nil, err
	}

	if cfg.CatchUpWindow == 0 {
		cfg.CatchUpWindow = defaultCatchUpWindow
	}

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, err
	}

	lastUpdatedTimes := make(map[string]time.Time, len(cfg.Markets))
	marketLocks := make(map[string]*sync.Mutex, len(cfg.Markets))
	for idx := range cfg.Markets {
		lastUpdatedTimes[cfg.Markets[idx]] = time.Time{}
		marketLocks[cfg.Markets[idx]] = new(sync.Mutex)
	}

	mgr := &Manager{
		cfg:              cfg,
		location:         loc,
		lastUpdatedTimes: lastUpdatedTimes,
		caughtUp:         make(map[string]bool, len(cfg.Markets)),
		marketLocks:      marketLocks,
		catchUpSignals:   make(chan shared.CatchUpSignal, bufferSize),
		subscribers:      make(map[string]chan shared.Candlestick),
		workers:          make(chan struct{}, maxWorkers),
	}

	return mgr, nil
}

// Subscribe registers the provided subscriber for market updates.
func (m *Manager) Subscribe(name string, sub chan shared.Candlestick) {
	m.subscribersMtx.Lock()
	defer m.subscribersMtx.Unlock()

	m.subscribers[name] = sub
}

// NotifySubscribers notifies subscribers of the new market update.
func (m *Manager) NotifySubscribers(candle shared.Candlestick) error {
	m.subscribersMtx.RLock()
	defer m.subscribersMtx.RUnlock()

	for name, sub := range m.subscribers {
		select {
		case sub <- candle:
		case <-time.After(shared.TimeoutDuration):
			return fmt.Errorf("timed out notifying %s of %s market update", name, candle.Market)
		}
	}

	return nil
}

// hasSubscribers returns whether there are subscribers for market updates.
func (m *Manager) hasSubscribers() bool {
	m.subscribersMtx.RLock()
	defer m.subscribersMtx.RUnlock()

	return len(m.subscribers) > 0
}

// SendCatchUpSignal relays the provided market catch up signal for processing.
func (m *Manager) SendCatchUpSignal(catchUp shared.CatchUpSignal) {
	select {
	case m.catchUpSignals <- catchUp:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("catchup signal channel at capacity: %d/%d",
			len(m.catchUpSignals), bufferSize)
	}
}

// lastUpdated returns the date of the last market update relayed for the provided market.
func (m *Manager) lastUpdated(market string) (time.Time, error) {
	m.marketStateMtx.RLock()
	defer m.marketStateMtx.RUnlock()

	last, ok := m.lastUpdatedTimes[market]
	if !ok {
		return time.Time{}, fmt.Errorf("no market found with name %s", market)
	}

	return last, nil
}

// fetchMarketDataJob queues a fetch of the market data since the last update of the provided market.
func (m *Manager) fetchMarketDataJob(market string, timeframe shared.Timeframe) error {
	start, err := m.lastUpdated(market)
	if err != nil {
		return err
	}

	if start.IsZero() {
		start = time.Now().In(m.location).Add(-m.cfg.CatchUpWindow)
	}

	m.SendCatchUpSignal(shared.NewCatchUpSignal(market, timeframe, start))

	return nil
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

// handleCatchUpSignal processes the provided catch up signal.
func (m *Manager) handleCatchUpSignal(ctx context.Context, signal *shared.CatchUpSignal) error {
	defer signalStatus(signal.Status)

	lock, ok := m.marketLocks[signal.Market]
	if !ok {
		return fmt.Errorf("no market found with name %s", signal.Market)
	}

	// Catch ups of a market are processed one at a time.
	lock.Lock()
	defer lock.Unlock()

	data, err := m.cfg.ExchangeClient.FetchIndexIntradayHistorical(ctx, signal.Market,
		signal.Timeframe, signal.Start, time.Time{})
	if err != nil {
		return fmt.Errorf("catching up on %s: %w", signal.Market, err)
	}

	candles, err := shared.ParseCandlesticks(data, signal.Market, signal.Timeframe, m.location)
	if err != nil {
		return fmt.Errorf("parsing candlesticks for %s: %w", signal.Market, err)
	}

	// Market data is returned newest first.
	slices.SortFunc(candles, func(a, b shared.Candlestick) int {
		return a.Date.Compare(b.Date)
	})

	lastUpdated, err := m.lastUpdated(signal.Market)
	if err != nil {
		return err
	}

	var last *shared.Candlestick
	for idx := range candles {
		if !candles[idx].Date.After(lastUpdated) {
			continue
		}

		err := m.NotifySubscribers(candles[idx])
		if err != nil {
			return err
		}

		last = &candles[idx]
	}

	m.marketStateMtx.Lock()
	if last != nil {
		m.lastUpdatedTimes[signal.Market] = last.Date
	}
	caughtUp := m.caughtUp[signal.Market]
	m.marketStateMtx.Unlock()

	if caughtUp {
		return nil
	}

	if last != nil && m.hasSubscribers() {
		// Wait for the catch up data to be processed before signalling the market is caught up.
		select {
		case <-last.Status:
		case <-time.After(shared.TimeoutDuration):
			return fmt.Errorf("timed out waiting on %s catch up data to be processed", signal.Market)
		}
	}

	m.marketStateMtx.Lock()
	m.caughtUp[signal.Market] = true
	m.marketStateMtx.Unlock()

	m.cfg.SignalCaughtUp(shared.NewCaughtUpSignal(signal.Market))
	m.cfg.Logger.Info().Msgf("%s caught up with %d candles", signal.Market, len(candles))

	return nil
}

// scheduleMarketDataJobs schedules periodic market data fetches for all tracked markets.
func (m *Manager) scheduleMarketDataJobs() error {
	interval, err := m.cfg.Timeframe.Duration()
	if err != nil {
		return err
	}

	for idx := range m.cfg.Markets {
		market := m.cfg.Markets[idx]
		_, err := m.cfg.JobScheduler.Every(interval).Tag(market).WaitForSchedule().Do(func() {
			open, _, err := shared.IsMarketOpen(time.Now().In(m.location))
			if err != nil {
				m.cfg.Logger.Error().Err(err).Send()
				return
			}

			if !open {
				m.cfg.Logger.Debug().Msgf("market closed, skipping %s market data fetch", market)
				return
			}

			err = m.fetchMarketDataJob(market, m.cfg.Timeframe)
			if err != nil {
				m.cfg.Logger.Error().Err(err).Msgf("fetching %s market data", market)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling %s market data job: %w", market, err)
		}
	}

	return nil
}

// Run manages the lifecycle processes of the fetch manager.
func (m *Manager) Run(ctx context.Context) {
	for idx := range m.cfg.Markets {
		err := m.fetchMarketDataJob(m.cfg.Markets[idx], m.cfg.Timeframe)
		if err != nil {
			m.cfg.Logger.Error().Err(err).Send()
		}
	}

	err := m.scheduleMarketDataJobs()
	if err != nil {
		m.cfg.Logger.Error().Err(err).Send()
	}

	m.cfg.JobScheduler.StartAsync()

	for {
		select {
		case <-ctx.Done():
			m.cfg.JobScheduler.Stop()
			return

		case signal := <-m.catchUpSignals:
			m.workers <- struct{}{}
			go func(signal *shared.CatchUpSignal) {
				err := m.handleCatchUpSignal(ctx, signal)
				if err != nil {
					m.cfg.Logger.Error().Err(err).Send()
				}
				<-m.workers
			}(&signal)
		}
	}
}
