package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arlenko/marketsentry/internal/config"
	"github.com/arlenko/marketsentry/internal/engine"
	"github.com/arlenko/marketsentry/internal/marketdata"
	"github.com/arlenko/marketsentry/internal/notify"
	"github.com/arlenko/marketsentry/internal/storage"
)

// app wires the configured components together for the CLI commands.
type app struct {
	cfg      *config.Config
	store    *storage.Storage
	client   *marketdata.Client
	notifier notify.Notifier
	engine   *engine.Engine
}

func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	initLogging(cfg.Logging)
	if configPath != "" {
		log.Info().Str("path", configPath).Msg("configuration loaded")
	}

	store, err := storage.New(cfg.Storage.MaxHistory, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client := marketdata.NewClient(cfg.Market.MaxRetries, cfg.Market.RetryDelayBase)

	notifier, err := buildNotifier(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		client:   client,
		notifier: notifier,
		engine:   engine.New(client, store, notifier, cfg),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close storage")
	}
}

// loadConfig reads and validates the configuration. The default path is
// optional; an explicitly passed path must exist.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// buildNotifier assembles the enabled transports. Returns nil when none
// are enabled; cycles then run without delivery.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var transports []notify.Notifier

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram notifier: %w", err)
		}
		transports = append(transports, tg)
		log.Info().Msg("Telegram notifications enabled")
	}

	if cfg.Email.Enabled {
		em, err := notify.NewEmail(cfg.EmailNotifyConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email notifier: %w", err)
		}
		transports = append(transports, em)
		log.Info().Msg("email notifications enabled")
	}

	switch len(transports) {
	case 0:
		log.Debug().Msg("no notification transports enabled")
		return nil, nil
	case 1:
		return transports[0], nil
	default:
		return notify.NewMulti(transports...), nil
	}
}
