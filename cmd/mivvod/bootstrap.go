package main

import (
	"fmt"
	"log/slog"

	"mivvo/internal/analysis"
	"mivvo/internal/assets"
	"mivvo/internal/config"
	"mivvo/internal/ledger"
	"mivvo/internal/metrics"
	"mivvo/internal/pricing"
	"mivvo/internal/providers"
	"mivvo/internal/providers/audio"
	"mivvo/internal/providers/vision"
	"mivvo/internal/report"
	"mivvo/internal/resultcache"
)

// engine bundles the daemon's long-lived components.
type engine struct {
	reports      *report.Store
	ledger       *ledger.Store
	orchestrator *analysis.Orchestrator
	saga         *analysis.Saga
	metrics      *metrics.Metrics
	cache        *resultcache.Cache
}

func bootstrap(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	reports, err := report.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	ledgerStore, err := ledger.Open(cfg)
	if err != nil {
		reports.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	assetStore, err := assets.NewStore(cfg)
	if err != nil {
		ledgerStore.Close()
		reports.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	catalog, err := pricing.NewCatalog(cfg)
	if err != nil {
		ledgerStore.Close()
		reports.Close()
		return nil, fmt.Errorf("price catalog: %w", err)
	}
	cache, err := resultcache.Open(cfg, logger)
	if err != nil {
		ledgerStore.Close()
		reports.Close()
		return nil, fmt.Errorf("open result cache: %w", err)
	}

	m := metrics.New()
	visionChain, audioChain, err := buildAnalyzers(cfg, m, logger)
	if err != nil {
		cache.Close()
		ledgerStore.Close()
		reports.Close()
		return nil, err
	}

	saga := analysis.NewSaga(ledgerStore, reports, logger, m)
	orchestrator, err := analysis.New(analysis.Options{
		Config:  cfg,
		Reports: reports,
		Ledger:  ledgerStore,
		Assets:  assetStore,
		Catalog: catalog,
		Cache:   cache,
		Saga:    saga,
		Metrics: m,
		Logger:  logger,
		Vision:  visionChain,
		Audio:   audioChain,
	})
	if err != nil {
		cache.Close()
		ledgerStore.Close()
		reports.Close()
		return nil, err
	}

	return &engine{
		reports:      reports,
		ledger:       ledgerStore,
		orchestrator: orchestrator,
		saga:         saga,
		metrics:      m,
		cache:        cache,
	}, nil
}

func (e *engine) Close() {
	e.cache.Close()
	e.ledger.Close()
	e.reports.Close()
}

// buildAnalyzers wires the provider chains. Vision is mandatory; the audio
// chain and both fallbacks are only built when configured.
func buildAnalyzers(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (analysis.Analyzer, analysis.Analyzer, error) {
	observer := func(kind string, attempt providers.Attempt) {
		m.ObserveAttempt(attempt.Provider, kind, string(attempt.Outcome))
	}

	if !cfg.Providers.Vision.Configured() {
		return nil, nil, fmt.Errorf("vision provider is not configured")
	}
	visionOpts := []providers.ChainOption{
		providers.WithLogger(logger),
		providers.WithAttemptObserver(observer),
	}
	if cfg.Providers.VisionFallback.Configured() {
		visionOpts = append(visionOpts,
			providers.WithFallback(vision.New("vision-fallback", cfg.Providers.VisionFallback)))
	}
	visionChain, err := providers.NewChain(vision.New("vision", cfg.Providers.Vision), visionOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("vision chain: %w", err)
	}

	if !cfg.Providers.Audio.Configured() {
		return visionChain, nil, nil
	}
	audioOpts := []providers.ChainOption{
		providers.WithLogger(logger),
		providers.WithAttemptObserver(observer),
	}
	if cfg.Providers.AudioFallback.Configured() {
		audioOpts = append(audioOpts,
			providers.WithFallback(audio.New("audio-fallback", cfg.Providers.AudioFallback)))
	}
	audioChain, err := providers.NewChain(audio.New("audio", cfg.Providers.Audio), audioOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("audio chain: %w", err)
	}
	return visionChain, audioChain, nil
}
