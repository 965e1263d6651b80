// Package worker recomputes forecasts in the background: on refresh messages
// from the broker and on a periodic sweep of owners with stale snapshots.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"previsioni/internal/amqp"
	"previsioni/internal/core"
	"previsioni/internal/log"
)

// Refresher is the part of services.ForecastService the worker drives.
type Refresher interface {
	Refresh(ctx context.Context, ownerID string) (core.ForecastSnapshot, string, error)
	StaleOwners(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// Consumer delivers refresh messages; *amqp.Client implements it.
type Consumer interface {
	ConsumeForecastRefresh(ctx context.Context, handler amqp.Handler) error
}

// Config controls the stale sweep.
type Config struct {
	// SweepInterval is how often stale owners are looked up. Zero disables the sweep.
	SweepInterval time.Duration
	// MaxAge is how old a snapshot may get before its owner is refreshed.
	MaxAge time.Duration
	// BatchSize caps owners refreshed per sweep.
	BatchSize int
	// Concurrency caps parallel refreshes within a sweep.
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		SweepInterval: 15 * time.Minute,
		MaxAge:        24 * time.Hour,
		BatchSize:     50,
		Concurrency:   4,
	}
}

type ForecastWorker struct {
	refresher Refresher
	cfg       Config
	logger    *log.Logger
}

func NewForecastWorker(refresher Refresher, cfg Config, logger *log.Logger) *ForecastWorker {
	d := DefaultConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = d.MaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ForecastWorker{refresher: refresher, cfg: cfg, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleRefreshMessage recomputes one owner's forecast. Owners without enough
// history and forecasts that were stored but not exported are acknowledged;
// anything else that fails is returned so the message is requeued.
func (w *ForecastWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.ForecastRefreshMessage) error {
	w.logger.InfoContext(ctx, "Processing refresh message",
		log.FieldOwnerID, msg.OwnerID,
		"message_id", msg.MessageID,
		"reason", msg.Reason)

	err := w.refresh(ctx, msg.OwnerID)
	if errors.Is(err, core.ErrExportFailed) {
		w.logger.WarnContext(ctx, "Forecast stored but not exported",
			log.FieldOwnerID, msg.OwnerID, log.FieldError, err)
		return nil
	}
	if err != nil && !permanent(err) {
		return fmt.Errorf("refresh %s: %w", msg.OwnerID, err)
	}
	return nil
}

func (w *ForecastWorker) refresh(ctx context.Context, ownerID string) error {
	snap, ref, err := w.refresher.Refresh(ctx, ownerID)
	if err != nil {
		if permanent(err) {
			w.logger.InfoContext(ctx, "Skipping forecast refresh", log.FieldOwnerID, ownerID, log.FieldError, err)
		}
		return err
	}
	w.logger.InfoContext(ctx, "Forecast refreshed",
		log.FieldOwnerID, ownerID,
		log.FieldModel, snap.Model,
		log.FieldHorizonTotal, snap.HorizonTotal,
		log.FieldSheetsRef, ref)
	return nil
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, core.ErrInsufficientData) || core.IsValidation(err)
}

// SweepStale refreshes up to BatchSize owners whose snapshot is older than
// MaxAge and returns how many succeeded. Per-owner failures are logged.
func (w *ForecastWorker) SweepStale(ctx context.Context) (int, error) {
	owners, err := w.refresher.StaleOwners(ctx, w.cfg.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("list stale owners: %w", err)
	}
	if len(owners) > w.cfg.BatchSize {
		owners = owners[:w.cfg.BatchSize]
	}
	if len(owners) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Refreshing stale forecasts", "count", len(owners))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			if err := w.refresh(gctx, owner); err != nil {
				if !permanent(err) {
					w.logger.ErrorContext(gctx, "Stale refresh failed", log.FieldOwnerID, owner, log.FieldError, err)
				}
				return nil
			}
			done.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(done.Load()), ctx.Err()
}

// Run consumes refresh messages (when consumer is non-nil) and sweeps stale
// owners until ctx is cancelled.
func (w *ForecastWorker) Run(ctx context.Context, consumer Consumer) error {
	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeForecastRefresh(gctx, w.HandleRefreshMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if w.cfg.SweepInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				if _, err := w.SweepStale(gctx); err != nil && gctx.Err() == nil {
					w.logger.ErrorContext(gctx, "Stale sweep failed", log.FieldError, err)
				}
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	return g.Wait()
}
