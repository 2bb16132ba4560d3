package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"xray-bot/api/internal/annotate"
	"xray-bot/api/internal/artifact"
	"xray-bot/api/internal/config"
	"xray-bot/api/internal/httpserver"
	"xray-bot/api/internal/logger"
	"xray-bot/api/internal/pipeline"
	"xray-bot/api/internal/report"
	"xray-bot/api/internal/session"
	"xray-bot/api/internal/telegram"
	"xray-bot/api/internal/vision"
	"xray-bot/api/internal/vision/gemini"
	"xray-bot/api/internal/vision/inference"
	"xray-bot/api/internal/vision/roboflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ws, err := artifact.NewWorkspace(cfg.WorkDir, log)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	// --- Models ---
	var sidecar *inference.Client
	if cfg.UsesInferenceService() {
		sidecar = inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout)
	}
	var classifier vision.Classifier = sidecar
	if cfg.ClassifierBackend == "gemini" {
		classifier = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ClassLabels)
	}
	var detector vision.Detector = sidecar
	if cfg.DetectorBackend == "roboflow" {
		detector = roboflow.New(cfg.RoboflowAPIKey, cfg.RoboflowProject, cfg.RoboflowVersion, cfg.InferenceTimeout)
	}
	log.Info("models configured",
		zap.String("classifier", classifier.Name()),
		zap.String("detector", detector.Name()))

	svc := pipeline.NewService(
		ws,
		vision.NewAdapter(classifier, detector, log),
		report.NewInterpreter(cfg.Policy),
		annotate.New(annotate.Options{FontPath: cfg.FontPath, FontSize: cfg.FontSize}, log),
		log,
	)

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false

	r := telegram.NewRouter(bot, session.NewStore(), svc, log)
	r.FailureMessage = cfg.Policy.FailureMessage

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// --- HTTP ---
	opts := httpserver.Options{
		Log:      log,
		OnUpdate: func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) },
	}
	if sidecar != nil {
		opts.Health = sidecar
	}
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL != "" {
		opts.WebhookSecret = shortHash(cfg.TelegramBotToken)
		if err := setWebhook(bot, webhookURL, opts.WebhookSecret); err != nil {
			return err
		}
	} else if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("delete webhook failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      httpserver.New(opts),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.Bool("webhook", webhookURL != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// closed once no more updates can reach the router
	pollDone := closedChan()
	if webhookURL == "" {
		pollDone = startPolling(ctx, bot, log, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) })
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errc:
		runErr = fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	cancel()
	<-pollDone
	r.Wait()
	return runErr
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func setWebhook(bot *tgbotapi.BotAPI, baseURL, secret string) error {
	public := strings.TrimRight(baseURL, "/") + "/webhook/" + secret
	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
