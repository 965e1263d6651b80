package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"previsioni/internal/amqp"
	"previsioni/internal/core"
	"previsioni/internal/forecast"
	"previsioni/internal/log"
	"previsioni/internal/ports"
)

// DefaultHistoryLimit is how many recent transactions feed a forecast.
const DefaultHistoryLimit = 180

// RefreshPublisher enqueues asynchronous forecast refreshes.
type RefreshPublisher interface {
	PublishForecastRefresh(ctx context.Context, ownerID, reason string) error
}

// ErrSnapshotsDisabled is returned by operations that need a snapshot store
// when none is configured.
var ErrSnapshotsDisabled = errors.New("forecast snapshots are not configured")

// ForecastService computes, stores and exports forecasts.
type ForecastService struct {
	ledger       ports.LedgerReader
	snapshots    ports.ForecastSnapshotStore
	exporter     ports.ForecastExporter
	publisher    RefreshPublisher
	opts         forecast.Options
	historyLimit int
	now          func() time.Time
	logger       *log.Logger
	events       *log.StructuredLogger
}

// ForecastConfig configures NewForecastService. Snapshots, Exporter and
// Publisher are optional.
type ForecastConfig struct {
	Options      forecast.Options
	HistoryLimit int
	Snapshots    ports.ForecastSnapshotStore
	Exporter     ports.ForecastExporter
	Publisher    RefreshPublisher
	Logger       *log.Logger
}

func NewForecastService(ledger ports.LedgerReader, cfg ForecastConfig) *ForecastService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	logger := cfg.Logger.WithComponent(log.ComponentForecast)
	return &ForecastService{
		ledger:       ledger,
		snapshots:    cfg.Snapshots,
		exporter:     cfg.Exporter,
		publisher:    cfg.Publisher,
		opts:         cfg.Options,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
	}
}

// Forecast reads the owner's recent transactions and forecasts the next
// horizon. Too little history yields a *core.InsufficientDataError.
func (s *ForecastService) Forecast(ctx context.Context, ownerID string) (forecast.Result, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return forecast.Result{}, core.ErrEmptyOwner
	}
	txs, err := s.ledger.ListTransactions(ctx, ownerID, s.historyLimit)
	if err != nil {
		return forecast.Result{}, err
	}
	res, err := forecast.Run(ctx, txs, s.opts)
	if err != nil {
		return forecast.Result{}, err
	}
	if res.FitError != "" {
		s.logger.WarnContext(ctx, "Model fit failed, used recent mean",
			log.FieldOwnerID, ownerID, log.FieldError, res.FitError)
	}
	s.events.LogForecast(ctx, ownerID, string(res.Model), len(txs), res.SeriesDays, res.HorizonTotal)
	return res, nil
}

// Refresh recomputes the owner's forecast, stores it and exports it when an
// exporter is configured. The returned ref is empty without an exporter.
func (s *ForecastService) Refresh(ctx context.Context, ownerID string) (core.ForecastSnapshot, string, error) {
	if s.snapshots == nil {
		return core.ForecastSnapshot{}, "", ErrSnapshotsDisabled
	}
	res, err := s.Forecast(ctx, ownerID)
	if err != nil {
		return core.ForecastSnapshot{}, "", err
	}
	snap := res.Snapshot(strings.TrimSpace(ownerID), s.now().UTC())
	id, err := s.snapshots.SaveSnapshot(ctx, snap)
	if err != nil {
		return core.ForecastSnapshot{}, "", fmt.Errorf("save snapshot: %w", err)
	}
	snap.ID = id

	if s.exporter == nil {
		return snap, "", nil
	}
	ref, err := s.exporter.ExportForecast(ctx, snap)
	if err != nil {
		return snap, "", fmt.Errorf("%w: %w", core.ErrExportFailed, err)
	}
	s.logger.InfoContext(ctx, "Forecast exported", log.FieldOwnerID, snap.OwnerID, log.FieldSheetsRef, ref)
	return snap, ref, nil
}

// Latest returns the most recent stored snapshot for the owner.
func (s *ForecastService) Latest(ctx context.Context, ownerID string) (core.ForecastSnapshot, error) {
	if s.snapshots == nil {
		return core.ForecastSnapshot{}, ErrSnapshotsDisabled
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return core.ForecastSnapshot{}, core.ErrEmptyOwner
	}
	return s.snapshots.LatestSnapshot(ctx, ownerID)
}

// RequestRefresh queues a refresh for the owner. Without a publisher the
// refresh runs inline, and queued is false.
func (s *ForecastService) RequestRefresh(ctx context.Context, ownerID string) (queued bool, err error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return false, core.ErrEmptyOwner
	}
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, refreshing inline", log.FieldOwnerID, ownerID)
		_, _, err := s.Refresh(ctx, ownerID)
		if errors.Is(err, core.ErrExportFailed) {
			s.logger.WarnContext(ctx, "Forecast stored but not exported", log.FieldOwnerID, ownerID, log.FieldError, err)
			return false, nil
		}
		return false, err
	}
	if err := s.publisher.PublishForecastRefresh(ctx, ownerID, amqp.ReasonRequested); err != nil {
		return false, fmt.Errorf("publish refresh: %w", err)
	}
	return true, nil
}

// StaleOwners lists owners whose latest snapshot is older than maxAge.
func (s *ForecastService) StaleOwners(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snapshots.StaleOwners(ctx, s.now().Add(-maxAge))
}
