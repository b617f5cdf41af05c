// Package main запускает HTTP-сервер аукционного сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/auction-system/internal/config"
	"github.com/mmeshcher/auction-system/internal/handler"
	"github.com/mmeshcher/auction-system/internal/notifier"
	"github.com/mmeshcher/auction-system/internal/repository"
	"github.com/mmeshcher/auction-system/internal/scheduler"
	"github.com/mmeshcher/auction-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var schedulerClient service.Scheduler
	if cfg.SchedulerAddress != "" {
		schedulerClient = scheduler.NewClient(cfg.SchedulerAddress)
	}

	var alerts service.Notifier
	if cfg.NatsAddress != "" {
		natsNotifier, err := notifier.New(cfg.NatsAddress)
		if err != nil {
			sugar.Fatalw("nats initialization error", "error", err.Error())
		}
		defer natsNotifier.Close()
		alerts = natsNotifier
	}

	svc := service.NewService(repo, schedulerClient, alerts, logger, service.Options{
		BidIncrement:       cfg.BidIncrement,
		BidExtension:       time.Duration(cfg.BidAdditionalSeconds) * time.Second,
		CountdownLead:      time.Duration(cfg.CountdownLeadSeconds) * time.Second,
		AutomaticPurchases: cfg.IsAutomaticPurchaseProcessing(),
		CallbackBaseURL:    cfg.CallbackBaseURL,
	})
	defer svc.Close()

	h := handler.NewHandler(svc, logger)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновых процессов: обработка действий, жизненный цикл дропов, таймеры
	g.Go(func() error {
		svc.StartActionDispatch(ctx)
		return nil
	})
	g.Go(func() error {
		svc.StartDropLifecycle(ctx)
		return nil
	})
	g.Go(func() error {
		svc.StartTimerEngine(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting auction server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
