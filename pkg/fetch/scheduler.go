// Package fetch turns item stubs into raw detail records with a bounded
// worker pool, per-stub retry with backoff, and a one-way circuit breaker
// on quota/anti-automation signals.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/curlparse"
	"github.com/Sahil520021/naukri-scraper/pkg/logging"
	"github.com/Sahil520021/naukri-scraper/pkg/quota"
	"github.com/Sahil520021/naukri-scraper/pkg/session"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

// Prometheus metrics for detail fetching.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_retries_total",
		Help: "Total retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resdex_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_retry_exhausted_total",
		Help: "Total stubs that exhausted their retry attempts by error class",
	}, []string{"error_class"})

	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_breaker_trips_total",
		Help: "Total circuit breaker trips by reason",
	}, []string{"reason"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_fetch_outcomes_total",
		Help: "Total detail fetch outcomes by status",
	}, []string{"status"})
)

// OutcomeStatus tags the result of one stub's detail fetch.
type OutcomeStatus string

const (
	// OutcomeSuccess means the detail record was fetched and decoded.
	OutcomeSuccess OutcomeStatus = "success"

	// OutcomeFailure means the stub failed after exhausting its policy.
	OutcomeFailure OutcomeStatus = "failure"

	// OutcomeAborted means the circuit breaker opened before the stub
	// was dispatched.
	OutcomeAborted OutcomeStatus = "aborted"
)

// Outcome is the tagged per-stub result. Record is set only on success.
type Outcome struct {
	Status OutcomeStatus
	Record map[string]any
	Reason string
}

// State is the scheduler lifecycle state.
type State int32

const (
	// StateIdle is the initial state before FetchAll.
	StateIdle State = iota

	// StateRunning means workers are dispatching detail calls.
	StateRunning

	// StateDraining means the breaker tripped: no new calls are issued
	// while in-flight calls finish.
	StateDraining

	// StateStopped is the terminal state after an aborted run drained.
	StateStopped

	// StateCompleted is the terminal state of a run that never tripped.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// DefaultDetailBase is the origin of the detail profile service.
const DefaultDetailBase = "https://resdex.naukri.com"

// Config holds the detail fetch policy.
type Config struct {
	// Concurrency bounds simultaneously in-flight detail calls.
	Concurrency int

	// MaxAttempts caps attempts per stub, the first call included.
	MaxAttempts int

	// RateLimitBackoff is the base delay after a 429/403; the actual
	// delay scales with the attempt number.
	RateLimitBackoff time.Duration

	// RetryDelay is the fixed pause after other retryable failures.
	RetryDelay time.Duration

	// Sleep is the delay function, injectable for deterministic tests.
	Sleep func(ctx context.Context, d time.Duration) error

	// Quota optionally shares breaker state across runs.
	Quota *quota.Tracker

	// DetailBase overrides the detail service origin, mainly for tests.
	DetailBase string
}

// DefaultConfig returns the default fetch policy.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		MaxAttempts:      3,
		RateLimitBackoff: 2 * time.Second,
		RetryDelay:       time.Second,
		Sleep:            sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Scheduler executes detail fetches for one run. It is single-use: the
// state machine runs Idle → Running → {Draining → Stopped} | Completed.
type Scheduler struct {
	cfg    Config
	logger zerolog.Logger

	state       atomic.Int32
	abortMu     sync.Mutex
	abortReason string
}

// NewScheduler creates a scheduler for a single run.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.DetailBase == "" {
		cfg.DetailBase = DefaultDetailBase
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logging.NewLogger("fetch"),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// AbortReason returns the breaker trip reason, or "" when never tripped.
func (s *Scheduler) AbortReason() string {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.abortReason
}

func (s *Scheduler) tripped() bool {
	return State(s.state.Load()) == StateDraining
}

// trip opens the breaker exactly once; later calls are no-ops.
func (s *Scheduler) trip(ctx context.Context, reason string) {
	// The reason is recorded under the same lock AbortReason takes, so a
	// worker that observes the Draining state never reads an empty reason.
	s.abortMu.Lock()
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		s.abortMu.Unlock()
		return
	}
	s.abortReason = reason
	s.abortMu.Unlock()

	breakerTripsTotal.WithLabelValues(reason).Inc()
	s.logger.Error().Str("reason", reason).Msg("Circuit breaker tripped, draining in-flight calls")

	if s.cfg.Quota != nil {
		s.cfg.Quota.Trip(ctx, reason)
	}
}

// FetchAll fetches details for every stub with bounded concurrency. The
// outcome at index i always corresponds to stubs[i], regardless of
// completion order. It never returns an error: per-stub failures and
// breaker aborts are reported in the outcomes.
func (s *Scheduler) FetchAll(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, stubs []session.ItemStub) []Outcome {
	outcomes := make([]Outcome, len(stubs))
	if len(stubs) == 0 {
		s.state.Store(int32(StateCompleted))
		return outcomes
	}

	s.state.Store(int32(StateRunning))

	// A trip recorded by an earlier run aborts before any call is issued.
	if s.cfg.Quota != nil {
		if blocked, reason := s.cfg.Quota.Blocked(ctx); blocked {
			s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
			s.abortMu.Lock()
			s.abortReason = reason
			s.abortMu.Unlock()
		}
	}

	detailURL := DetailURL(s.cfg.DetailBase, d)

	queue := make(chan int, len(stubs))
	for i := range stubs {
		queue <- i
	}
	close(queue)

	workers := s.cfg.Concurrency
	if workers > len(stubs) {
		workers = len(stubs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if s.tripped() {
					outcomes[i] = Outcome{Status: OutcomeAborted, Reason: s.AbortReason()}
					outcomesTotal.WithLabelValues(string(OutcomeAborted)).Inc()
					continue
				}
				outcomes[i] = s.fetchOne(ctx, t, d, sess, detailURL, stubs[i], i, len(stubs))
				outcomesTotal.WithLabelValues(string(outcomes[i].Status)).Inc()
			}
		}()
	}
	wg.Wait()

	if s.tripped() {
		s.state.Store(int32(StateStopped))
	} else {
		s.state.Store(int32(StateCompleted))
	}

	return outcomes
}

// fetchOne runs the bounded retry loop for a single stub.
func (s *Scheduler) fetchOne(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, detailURL string, stub session.ItemStub, index, total int) Outcome {
	payload := detailPayload(d, sess, stub)

	var lastReason string
	var lastClass transport.ErrorClass

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		// A trip elsewhere in the pool must stop retries too, not just
		// stubs that have not been picked up yet.
		if s.tripped() {
			return Outcome{Status: OutcomeAborted, Reason: s.AbortReason()}
		}

		headers := d.Clone().Headers
		headers["x-transaction-id"] = session.NewTransactionID()

		resp, err := t.Send(ctx, http.MethodPost, detailURL, headers, payload)
		if err != nil {
			if reason, ok := quotaSignal(err.Error()); ok {
				s.trip(ctx, reason)
				return Outcome{Status: OutcomeFailure, Reason: reason}
			}

			lastReason = err.Error()
			lastClass = transport.ErrorClassNetwork
			if !s.backoff(ctx, attempt, transport.ErrorClassNetwork, s.cfg.RetryDelay) {
				break
			}
			continue
		}

		if reason, ok := quotaSignal(string(resp.Body)); ok {
			s.trip(ctx, reason)
			return Outcome{Status: OutcomeFailure, Reason: reason}
		}

		if resp.StatusCode == http.StatusOK {
			var record map[string]any
			if err := json.Unmarshal(resp.Body, &record); err != nil {
				return Outcome{Status: OutcomeFailure, Reason: fmt.Sprintf("decode detail: %v", err)}
			}
			s.logger.Debug().
				Int("ordinal", stub.Ordinal).
				Int("index", index+1).
				Int("total", total).
				Str("user", stub.UserName).
				Msg("Detail fetched")
			return Outcome{Status: OutcomeSuccess, Record: record}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			// Non-retryable: the credential is dead for this stub.
			return Outcome{Status: OutcomeFailure, Reason: "unauthorized (401)"}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			lastReason = fmt.Sprintf("rate limited (%d)", resp.StatusCode)
			lastClass = transport.ErrorClassRateLimit
			s.logger.Warn().
				Int("ordinal", stub.Ordinal).
				Int("status_code", resp.StatusCode).
				Int("attempt", attempt).
				Msg("Rate limited, backing off")
			if !s.backoff(ctx, attempt, transport.ErrorClassRateLimit, time.Duration(attempt)*s.cfg.RateLimitBackoff) {
				break
			}
			continue
		}

		lastReason = fmt.Sprintf("status %d", resp.StatusCode)
		lastClass = transport.Classify(resp.StatusCode, nil)
		if !s.backoff(ctx, attempt, lastClass, s.cfg.RetryDelay) {
			break
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	s.logger.Error().
		Int("ordinal", stub.Ordinal).
		Str("reason", lastReason).
		Int("max_attempts", s.cfg.MaxAttempts).
		Msg("Detail fetch failed after retries")
	return Outcome{Status: OutcomeFailure, Reason: fmt.Sprintf("%s after %d attempts", lastReason, s.cfg.MaxAttempts)}
}

// backoff sleeps between attempts. It returns false when the loop should
// stop: either this was the final attempt or the context was cancelled.
func (s *Scheduler) backoff(ctx context.Context, attempt int, class transport.ErrorClass, delay time.Duration) bool {
	if attempt >= s.cfg.MaxAttempts {
		return false
	}

	retriesTotal.WithLabelValues(string(class)).Inc()
	retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

	if err := s.cfg.Sleep(ctx, delay); err != nil {
		return false
	}
	return true
}

// quotaSignal detects quota-exhaustion and anti-automation challenge
// markers in a response body or error text.
func quotaSignal(text string) (string, bool) {
	if strings.Contains(text, "QUOTA") {
		return "QUOTA_EXHAUSTED", true
	}
	if strings.Contains(strings.ToLower(text), "captcha") {
		return "captcha challenge", true
	}
	return "", false
}

// DetailURL derives the detail endpoint from the identifiers carried in the
// descriptor's body and the listing variant in its URL.
func DetailURL(base string, d *curlparse.Descriptor) string {
	pathType := "rdx"
	if d.IsLite() {
		pathType = "rdxlite"
	}
	return fmt.Sprintf(
		"%s/cloudgateway-resdex/recruiter-js-profile-services/v0/companies/%s/recruiters/%s/%s/jsprofile",
		base, d.CompanyIDString(), d.RdxUserIDString(), pathType,
	)
}

// detailPayload builds the per-stub request document.
func detailPayload(d *curlparse.Descriptor, sess session.Context, stub session.ItemStub) map[string]any {
	pageName, flowName := "rdxPreview", "rdxSrp"
	if d.IsLite() {
		pageName, flowName = "rdxLitePreview", "rdxLiteSrp"
	}

	return map[string]any{
		"uniqId":             stub.UniqID,
		"pageName":           pageName,
		"uname":              nil,
		"sid":                sess.SID,
		"requirementId":      d.RequirementID(),
		"requirementGroupId": d.RequirementID(),
		"jsKey":              stub.JSKey,
		"miscellaneousInfo": map[string]any{
			"companyId": d.CompanyID(),
			"rdxUserId": d.RdxUserID(),
			"resendOtp": false,
			"flowName":  flowName,
		},
	}
}
