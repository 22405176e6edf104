package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/trend/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createTrendSignalTableSQL = "CREATE TABLE IF NOT EXISTS trendsignal (id TEXT PRIMARY KEY, market TEXT, timeframe TEXT, field TEXT, windowsize INTEGER, previous TEXT, previousstrict INTEGER, current TEXT, currentstrict INTEGER, price REAL, createdon INTEGER)"
	createTrendStatsTableSQL  = "CREATE TABLE IF NOT EXISTS trendstats (id TEXT PRIMARY KEY, market TEXT, total INTEGER, rising INTEGER, falling INTEGER, notmonotonic INTEGER, createdon INTEGER)"
	persistTrendSignalSQL     = "INSERT INTO trendsignal(id, market, timeframe, field, windowsize, previous, previousstrict, current, currentstrict, price, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?)"
	upsertTrendStatsSQL       = "INSERT INTO trendstats(id, market, total, rising, falling, notmonotonic, createdon) VALUES(?,?,1,?,?,?,?) ON CONFLICT(id) DO UPDATE SET total = total + 1, rising = rising + excluded.rising, falling = falling + excluded.falling, notmonotonic = notmonotonic + excluded.notmonotonic"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the TrendStorer interface.
var _ shared.TrendStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, statements rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, statements, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("executing statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTrendSignalTableSQL},
		{SQL: createTrendStatsTableSQL},
	})
}

// generateStatsID generates deterministic ids for trend stats using the
// iso year, week and market of the provided time.
func generateStatsID(currentTime time.Time, market string) string {
	year, week := currentTime.ISOWeek()

	id := fmt.Sprintf("%d-Week-%02d-%s", year, week, market)
	return id
}

// trendCounts returns the stats increments of the provided trend.
func trendCounts(current shared.Monotonic) (rising int, falling int, notMonotonic int, ok bool) {
	switch current.Trend {
	case shared.Rising:
		return 1, 0, 0, true
	case shared.Falling:
		return 0, 1, 0, true
	case shared.NotMonotonic:
		return 0, 0, 1, true
	default:
		return 0, 0, 0, false
	}
}

// PersistTrendSignal stores the provided trend signal to the database and
// updates the weekly trend stats of its market.
func (db *Database) PersistTrendSignal(ctx context.Context, signal *shared.TrendSignal) error {
	rising, falling, notMonotonic, ok := trendCounts(signal.Current)
	if !ok {
		db.cfg.Logger.Error().Msgf("unexpected trend signal state for stats calculations: %s", spew.Sdump(signal))
		return fmt.Errorf("unexpected trend for signal %s: %s", signal.ID, signal.Current.String())
	}

	id := generateStatsID(signal.CreatedOn, signal.Market)

	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistTrendSignalSQL,
			PositionalParams: []any{signal.ID, signal.Market, signal.Timeframe.String(), signal.Field.String(),
				signal.Window, signal.Previous.Trend.String(), signal.Previous.Strict, signal.Current.Trend.String(),
				signal.Current.Strict, signal.Price, signal.CreatedOn.Unix()},
		},
		{
			SQL:              upsertTrendStatsSQL,
			PositionalParams: []any{id, signal.Market, rising, falling, notMonotonic, signal.CreatedOn.Unix()},
		},
	})
	if err != nil {
		return fmt.Errorf("persisting trend signal %s: %w", signal.ID, err)
	}

	return nil
}
