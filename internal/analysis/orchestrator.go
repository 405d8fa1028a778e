// Package analysis contains the orchestrator that drives a report from
// accepted request to terminal state, the deterministic aggregation rules,
// and the compensation saga that settles failures against the credit ledger.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mivvo/internal/assets"
	"mivvo/internal/config"
	"mivvo/internal/ledger"
	"mivvo/internal/logging"
	"mivvo/internal/metrics"
	"mivvo/internal/pricing"
	"mivvo/internal/providers"
	"mivvo/internal/report"
	"mivvo/internal/resultcache"
	"mivvo/internal/services"
)

// Analyzer is the provider capability the orchestrator invokes per kind.
// Both the provider chain and test stubs satisfy it.
type Analyzer interface {
	Analyze(ctx context.Context, req providers.Request) (*providers.Result, error)
}

// Orchestrator validates requests, reserves credit, drives provider calls,
// and publishes the aggregated result. All post-debit failures are handed to
// the saga; the orchestrator never writes FAILED itself.
type Orchestrator struct {
	cfg     *config.Config
	reports *report.Store
	ledger  *ledger.Store
	assets  *assets.Store
	catalog *pricing.Catalog
	cache   *resultcache.Cache
	saga    *Saga
	metrics *metrics.Metrics
	logger  *slog.Logger

	vision Analyzer
	audio  Analyzer
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Config  *config.Config
	Reports *report.Store
	Ledger  *ledger.Store
	Assets  *assets.Store
	Catalog *pricing.Catalog
	Cache   *resultcache.Cache
	Saga    *Saga
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Vision  Analyzer
	Audio   Analyzer
}

// New constructs the orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("analysis: config required")
	case opts.Reports == nil:
		return nil, errors.New("analysis: report store required")
	case opts.Ledger == nil:
		return nil, errors.New("analysis: ledger required")
	case opts.Assets == nil:
		return nil, errors.New("analysis: asset store required")
	case opts.Catalog == nil:
		return nil, errors.New("analysis: price catalog required")
	case opts.Saga == nil:
		return nil, errors.New("analysis: saga required")
	case opts.Vision == nil:
		return nil, errors.New("analysis: vision analyzer required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:     opts.Config,
		reports: opts.Reports,
		ledger:  opts.Ledger,
		assets:  opts.Assets,
		catalog: opts.Catalog,
		cache:   opts.Cache,
		saga:    opts.Saga,
		metrics: opts.Metrics,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		vision:  opts.Vision,
		audio:   opts.Audio,
	}, nil
}

// CreateReport accepts an analysis request, prices it, and persists the
// PENDING report. No credit is touched yet.
func (o *Orchestrator) CreateReport(ctx context.Context, ownerID string, rawKinds []string) (*report.Report, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create", "owner id required", nil)
	}
	if len(rawKinds) == 0 {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create", "at least one analysis kind required", nil)
	}
	kinds := make([]report.AnalysisKind, 0, len(rawKinds))
	for _, raw := range rawKinds {
		kind, ok := report.ParseKind(raw)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "orchestrator", "create",
				fmt.Sprintf("unknown analysis kind %q", raw), nil)
		}
		kinds = append(kinds, kind)
	}

	cost, err := o.catalog.CostFor(kinds)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "create", "price catalog", err)
	}
	rpt, err := o.reports.Create(ctx, ownerID, kinds, cost)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	o.logger.Info("report created",
		logging.String(logging.FieldReportID, rpt.ID),
		logging.String(logging.FieldOwnerID, ownerID),
		logging.String("cost", cost.String()),
		logging.String("kinds", fmt.Sprint(kinds)))
	return rpt, nil
}

// AttachAsset stores an uploaded file and binds it to a PENDING report owned
// by the caller.
func (o *Orchestrator) AttachAsset(ctx context.Context, reportID, ownerID string, data []byte, kind report.AssetKind) (*report.Asset, error) {
	rpt, err := o.authorize(ctx, reportID, ownerID)
	if err != nil {
		return nil, err
	}
	ref, err := o.assets.Put(data, kind)
	if err != nil {
		return nil, err
	}
	asset, err := o.reports.AddAsset(ctx, rpt.ID, kind, ref, int64(len(data)))
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// RequestAnalyze validates the report is runnable and queues it for a
// worker. Validation failures surface immediately, before any credit is
// touched; the report stays PENDING and can be fixed and re-requested.
func (o *Orchestrator) RequestAnalyze(ctx context.Context, reportID, ownerID string) error {
	rpt, err := o.authorize(ctx, reportID, ownerID)
	if err != nil {
		return err
	}
	if rpt.Status != report.StatusPending {
		return services.Wrap(services.ErrValidation, "orchestrator", "analyze",
			fmt.Sprintf("report is %s, only pending reports can be analyzed", rpt.Status), nil)
	}
	if err := o.validateAssets(ctx, rpt); err != nil {
		return err
	}

	balance, err := o.ledger.Account(ctx, rpt.OwnerID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return services.Wrap(services.ErrInsufficientFunds, "orchestrator", "analyze", "no credit account", nil)
		}
		return services.Wrap(services.ErrLedger, "orchestrator", "analyze", "balance check", err)
	}
	if balance.Balance.LessThan(rpt.Cost) {
		return services.Wrap(services.ErrInsufficientFunds, "orchestrator", "analyze",
			fmt.Sprintf("balance %s, required %s", balance.Balance, rpt.Cost), nil)
	}

	return o.reports.MarkAnalyzeRequested(ctx, rpt.ID)
}

// Get returns a report to its owner.
func (o *Orchestrator) Get(ctx context.Context, reportID, ownerID string) (*report.Report, error) {
	return o.authorize(ctx, reportID, ownerID)
}

// Run drives one claimed report to a terminal state. The worker hands in a
// report that is PENDING with analysis requested; by return the report is
// COMPLETED or FAILED (outside of store outages). A hard timeout bounds the
// whole run.
func (o *Orchestrator) Run(ctx context.Context, rpt *report.Report) error {
	timeout := time.Duration(o.cfg.Workflow.ReportTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx = services.WithReportID(ctx, rpt.ID)
	ctx = services.WithOwnerID(ctx, rpt.OwnerID)
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()

	// Re-validate: assets may look different than at request time only if
	// storage was tampered with, but failing fast here still beats a debit.
	if err := o.validateAssets(ctx, rpt); err != nil {
		logger.Warn("validation failed before debit", logging.Error(err))
		o.saga.FailWithoutRefund(ctx, rpt, err.Error())
		return err
	}

	if _, err := o.ledger.Debit(ctx, rpt.OwnerID, rpt.Cost, rpt.ID); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrAccountNotFound) {
			logger.Warn("debit rejected", logging.Error(err))
			o.saga.FailWithoutRefund(ctx, rpt, "insufficient credit at run time")
			return services.Wrap(services.ErrInsufficientFunds, "orchestrator", "run", "", err)
		}
		// Debit state unknown: compensation refund is idempotent against
		// whatever the ledger actually recorded.
		logger.Error("debit failed", logging.Error(err))
		o.saga.Compensate(ctx, rpt, "ledger failure during debit")
		return services.Wrap(services.ErrLedger, "orchestrator", "run", "debit", err)
	}
	if o.metrics != nil {
		o.metrics.CreditsDebited.Inc()
		o.metrics.ReportsStarted.Inc()
	}

	if err := o.reports.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		o.saga.Compensate(ctx, rpt, "report could not enter processing")
		return err
	}
	logger.Info("report processing",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("cost", rpt.Cost.String()))

	aggregate, err := o.invokeAll(ctx, rpt, logger)
	if err != nil {
		o.saga.Compensate(ctx, rpt, failureReason(err))
		return err
	}

	encoded, err := aggregate.Encode()
	if err != nil {
		o.saga.Compensate(ctx, rpt, "aggregate result could not be encoded")
		return err
	}
	if err := o.reports.Complete(ctx, rpt.ID, encoded); err != nil {
		o.saga.Compensate(ctx, rpt, "completed result could not be stored")
		return err
	}

	if o.metrics != nil {
		o.metrics.ReportsCompleted.Inc()
		o.metrics.ReportDuration.Observe(time.Since(started).Seconds())
	}
	logger.Info("report completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("score", aggregate.Score),
		logging.String("band", string(aggregate.Band)),
		logging.Duration("duration", time.Since(started)))
	return nil
}

// invokeAll fans out provider calls per kind and asset, joining every call
// before aggregation. No partial aggregate is ever published.
func (o *Orchestrator) invokeAll(ctx context.Context, rpt *report.Report, logger *slog.Logger) (*Aggregate, error) {
	byKind, err := o.reports.AssetsByKind(ctx, rpt.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrLedger, "orchestrator", "invoke", "load assets", err)
	}

	full := rpt.IsFullExpertise()
	sections := make([]KindSection, 0, len(rpt.AnalysisKinds()))
	for _, kind := range rpt.AnalysisKinds() {
		if full && kind == report.KindAudio && o.audio == nil {
			// Full expertise tolerates a deployment without an audio provider.
			sections = append(sections, skippedSection(kind, "no audio provider configured"))
			continue
		}
		kindAssets := byKind[report.RequiredAsset(kind)]
		if len(kindAssets) == 0 {
			if full && kind == report.KindAudio {
				// Full expertise tolerates a missing engine recording.
				sections = append(sections, skippedSection(kind, "no audio asset uploaded"))
				continue
			}
			return nil, services.Wrap(services.ErrAssetMissing, "orchestrator", "invoke",
				fmt.Sprintf("no %s asset for %s analysis", report.RequiredAsset(kind), kind), nil)
		}

		results, err := o.invokeKind(ctx, rpt, kind, kindAssets)
		if err != nil {
			logger.Warn("analysis kind failed",
				logging.String(logging.FieldKind, string(kind)),
				logging.Error(err))
			return nil, err
		}
		sections = append(sections, sectionFor(kind, results))
	}
	return buildAggregate(sections, full), nil
}

// invokeKind analyzes every asset of one kind concurrently and joins all
// outcomes. The first failure wins error-wise but all goroutines settle.
func (o *Orchestrator) invokeKind(ctx context.Context, rpt *report.Report, kind report.AnalysisKind, kindAssets []*report.Asset) ([]*providers.Result, error) {
	analyzer := o.analyzerFor(kind)
	if analyzer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "invoke",
			fmt.Sprintf("no provider configured for %s analysis", kind), nil)
	}

	results := make([]*providers.Result, len(kindAssets))
	errs := make([]error, len(kindAssets))
	var wg sync.WaitGroup
	for i, asset := range kindAssets {
		wg.Add(1)
		go func(slot int, asset *report.Asset) {
			defer wg.Done()
			results[slot], errs[slot] = o.analyzeAsset(ctx, rpt, kind, asset, analyzer)
		}(i, asset)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (o *Orchestrator) analyzeAsset(ctx context.Context, rpt *report.Report, kind report.AnalysisKind, asset *report.Asset, analyzer Analyzer) (*providers.Result, error) {
	data, err := o.assets.Read(asset.StorageRef)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if o.cache.Enabled() {
		cacheKey = resultcache.Key(data, kind, o.modelFor(kind))
		if cached, err := o.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			if o.metrics != nil {
				o.metrics.CacheHits.Inc()
				o.metrics.ObserveAttempt("cache", string(kind), string(providers.OutcomeSuccess))
			}
			cached.AssetRef = asset.StorageRef
			return cached, nil
		}
	}

	result, err := analyzer.Analyze(ctx, providers.Request{
		ReportID: rpt.ID,
		Kind:     kind,
		AssetRef: asset.StorageRef,
		Data:     data,
	})
	if err != nil {
		return nil, err
	}
	if cacheKey != "" {
		if err := o.cache.Put(ctx, cacheKey, result); err != nil {
			o.logger.Warn("result cache write failed", logging.Error(err))
		}
	}
	return result, nil
}

func (o *Orchestrator) analyzerFor(kind report.AnalysisKind) Analyzer {
	if kind == report.KindAudio {
		return o.audio
	}
	return o.vision
}

func (o *Orchestrator) modelFor(kind report.AnalysisKind) string {
	if kind == report.KindAudio {
		return o.cfg.Providers.Audio.Model
	}
	return o.cfg.Providers.Vision.Model
}

func (o *Orchestrator) validateAssets(ctx context.Context, rpt *report.Report) error {
	byKind, err := o.reports.AssetsByKind(ctx, rpt.ID)
	if err != nil {
		return services.Wrap(services.ErrLedger, "orchestrator", "validate", "load assets", err)
	}
	full := rpt.IsFullExpertise()
	for _, kind := range rpt.AnalysisKinds() {
		required := report.RequiredAsset(kind)
		assetsOfKind := byKind[required]
		if len(assetsOfKind) == 0 {
			if full && kind == report.KindAudio {
				continue
			}
			return services.Wrap(services.ErrAssetMissing, "orchestrator", "validate",
				fmt.Sprintf("analysis kind %s requires an uploaded %s asset", kind, required), nil)
		}
		for _, asset := range assetsOfKind {
			if !o.assets.Exists(asset.StorageRef) {
				return services.Wrap(services.ErrAssetMissing, "orchestrator", "validate",
					fmt.Sprintf("asset %s is referenced but absent from storage", asset.StorageRef), nil)
			}
		}
	}
	return nil
}

func (o *Orchestrator) authorize(ctx context.Context, reportID, ownerID string) (*report.Report, error) {
	rpt, err := o.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rpt == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "authorize",
			fmt.Sprintf("report %s", reportID), nil)
	}
	if rpt.OwnerID != ownerID {
		return nil, services.Wrap(services.ErrNotOwner, "orchestrator", "authorize",
			fmt.Sprintf("report %s", reportID), nil)
	}
	return rpt, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, services.ErrIncompleteResponse):
		return "provider returned an incomplete response"
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "provider calls timed out"
	case errors.Is(err, services.ErrQuotaExceeded):
		return "provider quota exhausted"
	case errors.Is(err, services.ErrProviderUnavailable):
		return "all providers unavailable"
	case errors.Is(err, services.ErrAssetMissing):
		return "required asset disappeared"
	default:
		return "analysis failed"
	}
}
