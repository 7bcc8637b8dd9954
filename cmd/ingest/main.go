package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/pdfingest/internal/barcode"
	"github.com/mixelka/pdfingest/internal/config"
	"github.com/mixelka/pdfingest/internal/database"
	"github.com/mixelka/pdfingest/internal/formatter"
	"github.com/mixelka/pdfingest/internal/ingest"
	"github.com/mixelka/pdfingest/internal/mailbox"
	"github.com/mixelka/pdfingest/internal/notify"
	"github.com/mixelka/pdfingest/internal/processor"
	"github.com/mixelka/pdfingest/internal/render"
	"github.com/mixelka/pdfingest/internal/telegram"
	"github.com/mixelka/pdfingest/internal/watermark"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting pdf ingest", "save_location", cfg.PDFSaveLocation)

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return err
	}
	logger.Info("database migrations completed")

	// Create components
	decoder, err := barcode.NewZXingDecoder(cfg.BarcodeTypes)
	if err != nil {
		logger.Error("failed to create barcode decoder", "error", err)
		return err
	}
	validator := barcode.NewValidator(decoder, cfg.BarcodeTypes, cfg.BarcodePattern())

	compositor := watermark.NewCompositor(cfg.PDFSaveLocation, watermark.Options{
		ReceivedWatermark: cfg.IncludeRecvWatermark,
		PageNumbers:       cfg.IncludePageNumbers,
	})

	proc := processor.New(processor.Config{
		AnySender:      cfg.AnySenderDomain(),
		AllowedDomains: cfg.AllowedSenderDomains,
		Location:       cfg.Location(),
	}, render.NewRenderer(), validator, compositor, logger)

	notifier := notify.NewNotifier(cfg.FromName, cfg.FromEmail,
		notify.NewSMTPTransport(notify.SMTPConfig{
			Addr:     cfg.SMTPAddress(),
			Username: cfg.Username,
			Password: cfg.Password,
			StartTLS: cfg.SMTPStartTLS,
			Timeout:  cfg.SMTPTimeout,
		}), logger)

	client := mailbox.NewClient(mailbox.ClientConfig{
		Username:    cfg.Username,
		Password:    cfg.Password,
		Server:      cfg.IMAPAddress(),
		DialTimeout: cfg.IMAPDialTimeout,
	}, logger)

	deps := ingest.Deps{
		Mailbox:   client,
		Processor: proc,
		Notifier:  notifier,
		Formatter: formatter.NewNoticeFormatter(),
		Ledger:    db,
		Logger:    logger,
	}

	// Create bot (optional)
	var (
		loop *ingest.Loop
		bot  *telegram.Bot
	)
	if cfg.TelegramEnabled() {
		bot, err = telegram.NewBot(telegram.BotDeps{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Status: func() string { return loop.StatusText() },
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create bot", "error", err)
			return err
		}
		deps.Alerter = bot
	}
	loop = ingest.NewLoop(deps)

	if bot != nil {
		go bot.Start(ctx)
		logger.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	}

	// Connect to the mailbox
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to mailbox", "error", err)
		return err
	}
	defer func() {
		if err := client.Logout(); err != nil {
			logger.Warn("failed to log out", "error", err)
		}
	}()

	logger.Info("ingest is running, press Ctrl+C to stop")
	if err := loop.Run(ctx); err != nil {
		return err
	}

	logger.Info("ingest stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
