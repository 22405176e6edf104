package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/trend/service"
	"github.com/dnldd/trend/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// defaultWindow is the default number of most recent candles classified.
	defaultWindow = 5
	// defaultTimeframe is the default tracked timeframe.
	defaultTimeframe = "5m"
	// defaultLogLevel is the default log level.
	defaultLogLevel = "info"
)

// defaultFields are the price fields classified by default.
var defaultFields = []string{"close", "vwap"}

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the tracked markets.
	Markets []string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// Timeframe is the tracked timeframe.
	Timeframe string
	// Window is the number of most recent candles classified on every update.
	Window int
	// Fields are the price fields classified on every update.
	Fields []string
	// CatchUpWindow is the period of market data fetched on start.
	CatchUpWindow string
	// DBEndpoint is the rqlite endpoint trend signals are persisted to.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// LogLevel is the minimum level of logged messages.
	LogLevel string
	// LogPretty toggles human readable console logs.
	LogPretty bool

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
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

	if cfg.Window != 0 && cfg.Window < 2 {
		errs = errors.Join(errs, fmt.Errorf("window must be at least 2, got %d", cfg.Window))
	}
	if cfg.Timeframe != "" {
		_, err := shared.ParseTimeframe(cfg.Timeframe)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if len(cfg.Fields) > 0 {
		_, err := shared.ParsePriceFields(cfg.Fields)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if cfg.CatchUpWindow != "" {
		_, err := time.ParseDuration(cfg.CatchUpWindow)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("parsing catch up window: %w", err))
		}
	}
	if cfg.LogLevel != "" {
		_, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("parsing log level: %w", err))
		}
	}

	return errs
}

// applyDefaults sets defaults for unset options.
func (cfg *Config) applyDefaults() {
	if cfg.Timeframe == "" {
		cfg.Timeframe = defaultTimeframe
	}
	if cfg.Window == 0 {
		cfg.Window = defaultWindow
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = defaultFields
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

// trendConfig creates the trend service configuration from the loaded config.
func (cfg *Config) trendConfig(cancel context.CancelFunc) (*service.TrendConfig, error) {
	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	fields, err := shared.ParsePriceFields(cfg.Fields)
	if err != nil {
		return nil, err
	}

	var catchUpWindow time.Duration
	if cfg.CatchUpWindow != "" {
		catchUpWindow, err = time.ParseDuration(cfg.CatchUpWindow)
		if err != nil {
			return nil, fmt.Errorf("parsing catch up window: %w", err)
		}
	}

	return &service.TrendConfig{
		Markets:              cfg.Markets,
		FMPAPIKey:            cfg.FMPAPIKey,
		Backtest:             cfg.Backtest,
		BacktestDataFilepath: cfg.BacktestDataFilepath,
		Timeframe:            timeframe,
		Window:               int32(cfg.Window),
		Fields:               fields,
		CatchUpWindow:        catchUpWindow,
		DBEndpoint:           cfg.DBEndpoint,
		DBUser:               cfg.DBUser,
		DBPass:               cfg.DBPass,
		Cancel:               cancel,
	}, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("markets", &cfg.Markets, "the tracked markets")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("fmpapikey", &cfg.FMPAPIKey, "the FMP api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("backtest", &cfg.Backtest, "the backtest flag")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("backtestdatafilepath", &cfg.BacktestDataFilepath, "the backtest data filepath")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("timeframe", &cfg.Timeframe, "the tracked timeframe (5m or 1H)")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("window", &cfg.Window, "the number of most recent candles classified")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("fields", &cfg.Fields, "the classified price fields (open,high,low,close,volume,vwap)")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("catchupwindow", &cfg.CatchUpWindow, "the period of market data fetched on start")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbendpoint", &cfg.DBEndpoint, "the rqlite endpoint, signals are not persisted when unset")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbuser", &cfg.DBUser, "the database user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbpass", &cfg.DBPass, "the database user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("loglevel", &cfg.LogLevel, "the log level")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("logpretty", &cfg.LogPretty, "the human readable logs flag")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
