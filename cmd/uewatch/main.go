package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"uewatch/internal/api"
	"uewatch/internal/config"
	"uewatch/internal/monitor"
	"uewatch/internal/notifier"
	"uewatch/internal/seen"
	"uewatch/internal/source"
	"uewatch/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config.yaml when present)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("configuration error")
	}

	logger := newLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var src source.Source
	if cfg.Telegram.BotToken != "" {
		src = source.NewTelegram(cfg.Telegram.BotToken, cfg.Channel, logger)
	} else {
		src = source.NewRSS(cfg.Feed.URL, logger)
	}
	if err := src.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("connecting to source failed")
	}

	var store seen.Store
	if cfg.Seen.Backend == "redis" {
		rs, err := seen.NewRedis(cfg.Seen.RedisAddr, cfg.Channel)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting to redis failed")
		}
		defer rs.Close()
		store = rs
	} else {
		store = seen.NewMemory(cfg.Seen.Capacity)
	}

	notifiers := []notifier.Notifier{notifier.NewConsole(nil)}

	if cfg.Notify.TelegramToken != "" && len(cfg.Notify.TelegramChatIDs) > 0 {
		notifiers = append(notifiers, notifier.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatIDs))
	}

	if len(cfg.Notify.KafkaBrokers) > 0 {
		kf, err := notifier.NewKafka(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting to kafka failed")
		}
		defer kf.Close()
		notifiers = append(notifiers, kf)
	}

	var archive storage.EventArchive
	if cfg.Storage.DSN != "" {
		pg, err := storage.NewPostgres(cfg.Storage.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting to storage failed")
		}
		defer pg.Close()
		archive = pg
		notifiers = append(notifiers, notifier.Func(pg.Save))
	}

	var srv *api.Server
	if cfg.Server.Enabled {
		srv = api.NewServer(archive, logger)
		notifiers = append(notifiers, srv)
	}

	mon, err := monitor.New(monitor.Config{
		Channel:         cfg.Channel,
		CheckInterval:   cfg.CheckInterval,
		FetchLimit:      cfg.FetchLimit,
		DownloadEnabled: cfg.Download.Enabled,
		DownloadDir:     cfg.Download.Dir,
	}, src, store, notifiers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	if srv != nil {
		srv.SetMonitor(mon)
		go func() {
			logger.Info().Str("addr", cfg.Server.Addr).Msg("api server starting")
			if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("api server error")
			}
		}()
	}

	if err := mon.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("starting monitor failed")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	if err := mon.Stop(); err != nil {
		logger.Error().Err(err).Msg("stopping monitor failed")
	}

	if srv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error().Err(err).Msg("api server shutdown failed")
		}
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
