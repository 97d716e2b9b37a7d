package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
)

// StartBackground runs the outbox processor, the availability retention and
// calendar import workers and the outbox cleanup until ctx ends. It returns
// immediately; Close stops what it started.
func (c *Container) StartBackground(ctx context.Context) error {
	if c.Config.OutboxProcessorEnabled {
		if err := c.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
	} else {
		c.Logger.Info("outbox processor disabled")
	}

	go func() {
		if err := c.RetentionWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Error("retention worker stopped", "error", err)
		}
	}()
	if c.CalendarImportWorker != nil {
		go func() {
			if err := c.CalendarImportWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.Error("calendar import worker stopped", "error", err)
			}
		}()
	}
	go c.runOutboxCleanup(ctx)
	return nil
}

func (c *Container) runOutboxCleanup(ctx context.Context) {
	interval := c.Config.OutboxCleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := c.Repos.Outbox.DeleteOld(ctx, c.Config.OutboxRetentionDays)
			if err != nil {
				c.Logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			stats := c.OutboxProcessor.GetStats()
			c.Logger.Info("outbox cleanup completed",
				"deleted", deleted,
				"retention_days", c.Config.OutboxRetentionDays,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
			)
		}
	}
}

// RunWorker is the production worker process: it drains the outbox into
// RabbitMQ, consumes the queue into the subscribers and serves health
// endpoints on WORKER_HEALTH_ADDR. Without a broker the subscribers already
// run in-process, so only the background jobs start. It blocks until ctx ends.
func (c *Container) RunWorker(ctx context.Context) error {
	if err := c.StartBackground(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	if c.InProcessEventBus == nil {
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:    c.Config.RabbitMQURL,
			Logger: c.Logger,
		}, eventbus.NewConsumerRegistry(c.Logger))
		if err != nil {
			return err
		}
		defer consumer.Close()
		RegisterConsumers(c, consumer.RegisterConsumer)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("consumer: %w", err)
			}
		}()
	}

	if c.Config.WorkerHealthAddr != "" {
		srv := &http.Server{
			Addr:              c.Config.WorkerHealthAddr,
			Handler:           c.workerHealthHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			c.Logger.Info("health server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Logger.Error("health server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				c.Logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	c.Logger.Info("shutting down worker")
	c.OutboxProcessor.Stop()
	wg.Wait()
	return runErr
}

func (c *Container) workerHealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := c.OutboxProcessor.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":            "ok",
			"running":           stats.IsRunning,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"last_processed_at": stats.LastProcessedAt,
			"last_error":        stats.LastError,
		})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health := c.Health.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
	return mux
}
