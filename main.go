// Package main runs the Mandarake stock watch bot: a Telegram command
// surface plus a scheduled poller that alerts users when a watched item
// comes back in stock.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mandarake-watch/bot"
	"mandarake-watch/poll"
	"mandarake-watch/scraper"
	"mandarake-watch/state"
	"mandarake-watch/storage"

	gcs "cloud.google.com/go/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultCheckIntervalSec = 300
	defaultCheckTimeoutSec  = 20
	defaultWorkingStart     = 5
	defaultWorkingEnd       = 23
	defaultWorkingZone      = "Asia/Tokyo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		logger.Error("BOT_TOKEN environment variable required")
		os.Exit(1)
	}

	localStorage := os.Getenv("LOCAL_STORAGE")
	bucket := os.Getenv("STORAGE_BUCKET")

	// Default to local development mode if no bucket specified
	if bucket == "" && localStorage == "" {
		localStorage = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local development mode", "storage_path", localStorage)
	}

	var gcsClient *gcs.Client
	if localStorage != "" {
		if err := os.MkdirAll(localStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
	} else {
		var err error
		gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	intervalSec := envInt("CHECK_INTERVAL_SEC", defaultCheckIntervalSec, logger)
	timeoutSec := envInt("CHECK_TIMEOUT_SEC", defaultCheckTimeoutSec, logger)
	startHour := envInt("WORKING_HOURS_START", defaultWorkingStart, logger)
	endHour := envInt("WORKING_HOURS_END", defaultWorkingEnd, logger)

	zoneName := os.Getenv("WORKING_HOURS_TZ")
	if zoneName == "" {
		zoneName = defaultWorkingZone
	}
	location, err := time.LoadLocation(zoneName)
	if err != nil {
		logger.Error("Invalid WORKING_HOURS_TZ", "zone", zoneName, "error", err)
		os.Exit(1)
	}

	store := storage.New(gcsClient, bucket, localStorage, logger)
	manager := state.New(ctx, store, logger)

	checkTimeout := time.Duration(timeoutSec) * time.Second
	httpClient := &http.Client{Timeout: checkTimeout}
	checker := scraper.New(httpClient, os.Getenv("USER_AGENT"), logger)

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot", "error", err)
		os.Exit(1)
	}
	logger.Info("Telegram bot authorized", "username", api.Self.UserName)

	notifier := bot.NewNotifier(api, logger)
	monitor := poll.New(checker, notifier, manager, checkTimeout, logger)
	scheduler := poll.NewScheduler(monitor,
		time.Duration(intervalSec)*time.Second,
		startHour, endHour, location, logger)

	go scheduler.Run(ctx)

	commands := bot.New(api, manager, checker, checkTimeout, logger)
	commands.Run(ctx)

	logger.Info("Shutting down")
}

func envInt(key string, fallback int, logger *slog.Logger) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}
