package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/dnldd/trend/service"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// configureLogger sets the global logger level and output.
func configureLogger(cfg *Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		})
	}

	return nil
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		return
	}

	err = configureLogger(&cfg)
	if err != nil {
		log.Error().Err(err).Msg("configuring logger")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trendCfg, err := cfg.trendConfig(cancel)
	if err != nil {
		log.Error().Err(err).Msg("creating trend service config")
		return
	}

	trend, err := service.NewTrend(ctx, trendCfg)
	if err != nil {
		log.Error().Err(err).Msg("creating trend service")
		return
	}

	go handleTermination(ctx, cancel)
	trend.Run(ctx)
}
