// Package pipeline builds the batch pipeline from configuration: the
// extraction client, the classifier, the result store, the rate limiter
// and the orchestrator that drives them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/veritas/internal/cache"
	"github.com/ppiankov/veritas/internal/extract"
	"github.com/ppiankov/veritas/internal/llm"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/notify"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/store"
	"github.com/ppiankov/veritas/internal/util"
	"github.com/ppiankov/veritas/internal/worker"
)

// ErrNoStore is returned by history queries when the result store is disabled
var ErrNoStore = errors.New("result store is disabled")

// persistTimeout bounds one store write including its retries
const persistTimeout = 10 * time.Second

// robotsTTL is how long a fetched robots.txt is trusted
const robotsTTL = time.Hour

// Options replaces collaborators that New would otherwise build from
// configuration. Nil fields are built.
type Options struct {
	Provider  llm.Provider
	Extractor worker.Extractor
	Logger    *slog.Logger
}

// Pipeline owns the long-lived collaborators of a process
type Pipeline struct {
	cfg          *model.Config
	logger       *slog.Logger
	provider     llm.Provider
	broker       *notify.Broker
	store        *store.Store
	orchestrator *worker.Orchestrator
	exporter     *report.Exporter
}

// New builds a pipeline from cfg
func New(cfg *model.Config, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := opts.Provider
	if provider == nil {
		p, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		if err != nil {
			return nil, fmt.Errorf("classification provider: %w", err)
		}
		provider = p
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	limiter.SetRate(worker.ClassifierKey, cfg.RateLimiting.ClassifierPerSecond, cfg.RateLimiting.ClassifierBurst)

	extractor := opts.Extractor
	if extractor == nil {
		extractor = newExtractor(cfg, logger, limiter)
	}

	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		broker:   notify.NewBroker(),
		exporter: report.NewExporter(cfg.Batch.PreviewLength),
	}

	deps := worker.Deps{
		Extractor:  extractor,
		Classifier: llm.NewClassifier(provider, cfg.LLM.ModelVersion, cfg.LLM.MaxInputChars),
		Publisher:  p.broker,
		Limiter:    limiter,
		Logger:     logger,
	}

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open result store: %w", err)
		}
		p.store = st
		deps.Store = store.WithRetry(st, cfg.Store.Retries, cfg.Store.RetryBackoff, logger)
	}

	p.orchestrator = worker.NewOrchestrator(deps)
	return p, nil
}

func newExtractor(cfg *model.Config, logger *slog.Logger, limiter *worker.Limiter) *extract.Client {
	client := extract.NewClient(extract.NewFetcher(cfg.HTTP), cfg.Extraction.MaxTextChars).WithLogger(logger)

	if cfg.Extraction.RespectRobots {
		robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, robotsTTL).
			WithHTTPClient(&http.Client{
				Timeout:   cfg.HTTP.Timeout,
				Transport: util.NewTransport(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
			})
		client = client.WithRobots(robots).WithCrawlDelay(func(host string, delay time.Duration) {
			// Only slow a host down, never speed it up
			if rps := 1 / delay.Seconds(); cfg.RateLimiting.RequestsPerSecond <= 0 || rps < cfg.RateLimiting.RequestsPerSecond {
				limiter.SetRate(host, rps, 1)
			}
		})
	}

	if cfg.Cache.Enabled {
		layers := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		client = client.WithCache(cache.NewExtractions(layers, 0))
	}

	return client
}

// Orchestrator returns the shared orchestrator
func (p *Pipeline) Orchestrator() *worker.Orchestrator {
	return p.orchestrator
}

// Broker returns the event broker every run publishes to
func (p *Pipeline) Broker() *notify.Broker {
	return p.broker
}

// Exporter returns the report exporter configured with the preview length
func (p *Pipeline) Exporter() *report.Exporter {
	return p.exporter
}

// Store returns the result store, or nil when it is disabled
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// RunOptions returns the per-run options for ownerID
func (p *Pipeline) RunOptions(ownerID string) worker.RunOptions {
	return worker.RunOptions{
		OwnerID:         ownerID,
		ExtractTimeout:  p.cfg.Extraction.Timeout,
		ClassifyTimeout: p.cfg.LLM.Timeout,
		PersistTimeout:  persistTimeout,
	}
}

// Analyze classifies a single input, extracting it first when it is a URL
func (p *Pipeline) Analyze(ctx context.Context, ownerID, input string) (model.BatchItem, error) {
	item := worker.NewItem(input)
	if item.Input == "" {
		return item, errors.New("nothing to analyze")
	}
	return p.orchestrator.Analyze(ctx, item, p.RunOptions(ownerID)), nil
}

// AnalyzeText classifies text as-is, even when it looks like a URL
func (p *Pipeline) AnalyzeText(ctx context.Context, ownerID, text string) (model.BatchItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.BatchItem{}, errors.New("nothing to analyze")
	}
	item := model.BatchItem{Input: text, Kind: model.KindText, Status: model.StatusPending}
	return p.orchestrator.Analyze(ctx, item, p.RunOptions(ownerID)), nil
}

// AnalyzeURL extracts rawURL and classifies its text
func (p *Pipeline) AnalyzeURL(ctx context.Context, ownerID, rawURL string) (model.BatchItem, error) {
	item := worker.NewItem(rawURL)
	if item.Kind != model.KindURL {
		return item, fmt.Errorf("not an http(s) URL: %q", rawURL)
	}
	return p.orchestrator.Analyze(ctx, item, p.RunOptions(ownerID)), nil
}

// History returns the stored verdicts of ownerID
func (p *Pipeline) History(ctx context.Context, ownerID string, filter store.Filter) ([]model.VerdictRecord, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.QueryByOwner(ctx, ownerID, filter)
}

// Runs returns the recorded run summaries of ownerID, newest first
func (p *Pipeline) Runs(ctx context.Context, ownerID string, limit int) ([]model.RunSummary, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.ListRuns(ctx, ownerID, limit)
}

// Ping checks that the classification provider is reachable
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.provider.Ping(ctx)
}

// ProviderName names the configured classification provider
func (p *Pipeline) ProviderName() string {
	return p.provider.Name()
}

// Close releases the broker subscriptions and the store
func (p *Pipeline) Close() error {
	p.broker.Close()
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}
