// Package services orchestrates the classifier and forecaster over the
// configured stores, cache and message broker.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"previsioni/internal/cache"
	"previsioni/internal/classifier"
	"previsioni/internal/core"
	"previsioni/internal/log"
	"previsioni/internal/ports"
	"previsioni/internal/textnorm"
)

// ClassifierService predicts categories and grows the labeled corpus. Models
// are trained lazily and cached by corpus version, so an append is picked up
// by the next prediction.
type ClassifierService struct {
	corpus     ports.CorpusStore
	models     *cache.LRUCache[int64, *classifier.Model]
	group      singleflight.Group
	opts       classifier.Options
	normalizer *textnorm.Normalizer
	logger     *log.Logger
	events     *log.StructuredLogger
}

// ClassifierConfig configures NewClassifierService.
type ClassifierConfig struct {
	Options    classifier.Options
	CacheSize  int
	CacheTTL   time.Duration
	Normalizer *textnorm.Normalizer
	Logger     *log.Logger
}

func NewClassifierService(corpus ports.CorpusStore, cfg ClassifierConfig) *ClassifierService {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = textnorm.New(textnorm.DefaultStopwords(), cfg.Logger)
	}
	cfg.Options.Normalizer = cfg.Normalizer
	logger := cfg.Logger.WithComponent(log.ComponentClassifier)
	return &ClassifierService{
		corpus:     corpus,
		models:     cache.NewLRUCache[int64, *classifier.Model](cfg.CacheSize, cfg.CacheTTL),
		opts:       cfg.Options,
		normalizer: cfg.Normalizer,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
	}
}

// Models exposes the model cache so it can be registered with a cache.Manager.
func (s *ClassifierService) Models() *cache.LRUCache[int64, *classifier.Model] {
	return s.models
}

// Predict classifies description with the model for the current corpus.
// An empty description fails before the corpus is read.
func (s *ClassifierService) Predict(ctx context.Context, description string) (classifier.Prediction, error) {
	if strings.TrimSpace(description) == "" {
		return classifier.Prediction{}, core.ErrEmptyDescription
	}
	model, err := s.model(ctx)
	if err != nil {
		return classifier.Prediction{}, err
	}
	p, err := model.Predict(description)
	if err != nil {
		return classifier.Prediction{}, err
	}
	s.events.LogPrediction(ctx, description, p.Category, p.Confidence, model.Version())
	return p, nil
}

// model returns the cached model for the current corpus version, training it
// once if concurrent callers miss together.
func (s *ClassifierService) model(ctx context.Context) (*classifier.Model, error) {
	version, err := s.corpus.Version(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := s.models.Get(version); ok {
		return m, nil
	}

	// Training outlives any single caller's cancellation.
	trainCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(version, 10), func() (any, error) {
		if m, ok := s.models.Get(version); ok {
			return m, nil
		}
		return s.train(trainCtx, version)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*classifier.Model), nil
	}
}

func (s *ClassifierService) train(ctx context.Context, version int64) (*classifier.Model, error) {
	start := time.Now()
	examples, err := s.corpus.ListExamples(ctx)
	if err != nil {
		return nil, err
	}
	opts := s.opts
	opts.Version = version
	m, err := classifier.TrainContext(ctx, examples, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "Model training failed",
			log.FieldOperation, log.OpTrain, log.FieldCorpusVersion, version, log.FieldError, err)
		return nil, err
	}
	s.models.Set(version, m)
	s.logger.InfoContext(ctx, "Model trained",
		log.FieldOperation, log.OpTrain,
		log.FieldCorpusVersion, version,
		"examples", m.Size(),
		"categories", len(m.Categories()),
		"algorithm", string(m.Algorithm()),
		log.FieldDuration, time.Since(start).Milliseconds())
	return m, nil
}

// AddExample normalizes and appends one labeled row. It returns the stored
// example and the corpus version after the append.
func (s *ClassifierService) AddExample(ctx context.Context, description, category string) (core.LabeledExample, int64, error) {
	ex := core.LabeledExample{
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
	}
	if err := ex.Validate(); err != nil {
		return core.LabeledExample{}, 0, err
	}
	ex.NormalizedDescription = s.normalizer.Normalize(ex.Description)

	stored, err := s.corpus.AppendExample(ctx, ex)
	if err != nil {
		return core.LabeledExample{}, 0, fmt.Errorf("append example: %w", err)
	}
	version, err := s.corpus.Version(ctx)
	if err != nil {
		return stored, 0, err
	}
	s.logger.InfoContext(ctx, "Labeled example added",
		log.FieldOperation, log.OpAppend,
		log.FieldCategory, stored.Category,
		log.FieldCorpusVersion, version)
	return stored, version, nil
}
