// Package scraper sequences the crawl pipeline: parse template, establish
// session, paginate for stubs, fetch details with bounded concurrency, and
// normalize the successes into the result envelope.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/curlparse"
	"github.com/Sahil520021/naukri-scraper/pkg/fetch"
	"github.com/Sahil520021/naukri-scraper/pkg/logging"
	"github.com/Sahil520021/naukri-scraper/pkg/normalize"
	"github.com/Sahil520021/naukri-scraper/pkg/paginate"
	"github.com/Sahil520021/naukri-scraper/pkg/quota"
	"github.com/Sahil520021/naukri-scraper/pkg/session"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_runs_total",
		Help: "Total pipeline runs by result",
	}, []string{"result"})

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resdex_run_duration_seconds",
		Help:    "End-to-end pipeline run duration",
		Buckets: []float64{1, 5, 15, 60, 180, 600},
	})
)

// Run stages, used to tag structured errors.
const (
	StageParse   = "parse"
	StageSession = "session"
)

// Error is a structured run-abort error: it names the stage that failed.
// Only parsing and session establishment abort a run; later stages degrade
// to partial results.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ResultEnvelope is the final output of a run. Records are ordered by stub
// ordinal and never exceed the requested target count. FetchedCount plus
// FailedCount always equals the number of stubs attempted; stubs aborted by
// the circuit breaker count as failed.
type ResultEnvelope struct {
	TotalAvailable int                 `json:"totalAvailable"`
	Records        []*normalize.Record `json:"records"`
	FetchedCount   int                 `json:"fetchedCount"`
	FailedCount    int                 `json:"failedCount"`
	ElapsedSeconds float64             `json:"elapsedSeconds"`
	AbortReason    string              `json:"abortReason,omitempty"`
}

// Config holds the pipeline collaborators and stage policies.
type Config struct {
	// Transport executes the HTTP calls. Required.
	Transport transport.Transport

	// Paginate is the page collection policy.
	Paginate paginate.Config

	// Fetch is the detail fetch policy. Its Concurrency field is
	// superseded by the per-run concurrency limit.
	Fetch fetch.Config

	// Quota optionally shares circuit breaker state across runs.
	Quota *quota.Tracker
}

// DefaultConfig returns a pipeline config with default stage policies and
// no transport; callers must set one.
func DefaultConfig() Config {
	return Config{
		Paginate: paginate.DefaultConfig(),
		Fetch:    fetch.DefaultConfig(),
	}
}

// Pipeline is a reusable orchestrator. It holds no per-run state; each Run
// builds its own session, collector, and scheduler.
type Pipeline struct {
	cfg        Config
	normalizer *normalize.Normalizer
	logger     zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	return &Pipeline{
		cfg:        cfg,
		normalizer: normalize.New(),
		logger:     logging.NewLogger("scraper"),
	}, nil
}

// Run executes the full pipeline for one request template. Parsing and
// session failures abort the run with an *Error; pagination and detail
// failures degrade to partial results in the envelope.
func (p *Pipeline) Run(ctx context.Context, rawTemplate string, targetCount, concurrencyLimit int) (*ResultEnvelope, error) {
	if targetCount < 1 {
		return nil, &Error{Stage: StageParse, Err: fmt.Errorf("target count must be >= 1, got %d", targetCount)}
	}
	if concurrencyLimit < 1 {
		return nil, &Error{Stage: StageParse, Err: fmt.Errorf("concurrency limit must be >= 1, got %d", concurrencyLimit)}
	}

	start := time.Now()

	d, err := curlparse.Parse(rawTemplate)
	if err != nil {
		runsTotal.WithLabelValues("parse_error").Inc()
		return nil, &Error{Stage: StageParse, Err: err}
	}

	res, err := session.Establish(ctx, p.cfg.Transport, d)
	if err != nil {
		runsTotal.WithLabelValues("session_error").Inc()
		return nil, &Error{Stage: StageSession, Err: err}
	}

	p.logger.Info().
		Int("total_available", res.TotalAvailable).
		Int("first_page", len(res.Stubs)).
		Int("target", targetCount).
		Msg("Session established")

	collector := paginate.NewCollector(p.cfg.Paginate)
	stubs := collector.Collect(ctx, p.cfg.Transport, d, res.Session, res.Stubs, targetCount, res.TotalAvailable)

	fetchCfg := p.cfg.Fetch
	fetchCfg.Concurrency = concurrencyLimit
	fetchCfg.Quota = p.cfg.Quota
	scheduler := fetch.NewScheduler(fetchCfg)
	outcomes := scheduler.FetchAll(ctx, p.cfg.Transport, d, res.Session, stubs)

	env := &ResultEnvelope{
		TotalAvailable: res.TotalAvailable,
		Records:        make([]*normalize.Record, 0, len(outcomes)),
		AbortReason:    scheduler.AbortReason(),
	}
	for _, o := range outcomes {
		if o.Status == fetch.OutcomeSuccess {
			env.Records = append(env.Records, p.normalizer.Normalize(o.Record))
			env.FetchedCount++
		} else {
			env.FailedCount++
		}
	}
	env.ElapsedSeconds = time.Since(start).Seconds()

	runsTotal.WithLabelValues("success").Inc()
	runDurationSeconds.Observe(env.ElapsedSeconds)

	p.logger.Info().
		Int("fetched", env.FetchedCount).
		Int("failed", env.FailedCount).
		Float64("elapsed_seconds", env.ElapsedSeconds).
		Str("abort_reason", env.AbortReason).
		Msg("Run completed")

	return env, nil
}
