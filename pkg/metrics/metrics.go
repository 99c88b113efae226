// Package metrics provides the centralized Prometheus metrics registry for
// the crawl pipeline. All metrics are defined in their respective packages
// (transport, paginate, fetch, quota, scraper) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/transport):
//   - resdex_requests_total{endpoint, status} (Counter): Total requests by endpoint path and HTTP status
//   - resdex_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint path
//   - resdex_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Pagination Metrics (pkg/paginate):
//   - resdex_pages_fetched_total{status} (Counter): List pages fetched, by success/failure
//
// Detail Fetch Metrics (pkg/fetch):
//   - resdex_retries_total{error_class} (Counter): Retry attempts by error class
//   - resdex_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - resdex_retry_exhausted_total{error_class} (Counter): Stubs that exhausted max attempts
//   - resdex_breaker_trips_total{reason} (Counter): Circuit breaker trips by reason
//   - resdex_fetch_outcomes_total{status} (Counter): Per-stub outcomes (success, failure, aborted)
//
// Quota Metrics (pkg/quota):
//   - resdex_quota_trips_total{reason} (Counter): Quota blocks recorded, by trip reason
//   - resdex_quota_blocks_total (Counter): Runs refused because a quota block was active
//
// Pipeline Metrics (pkg/scraper):
//   - resdex_runs_total{result} (Counter): Pipeline runs by result (success, parse_error, session_error)
//   - resdex_run_duration_seconds (Histogram): End-to-end run duration
//
// Example Prometheus Queries:
//
//   # Detail fetch failure rate
//   sum(rate(resdex_fetch_outcomes_total{status!="success"}[5m])) /
//   sum(rate(resdex_fetch_outcomes_total[5m]))
//
//   # Breaker trips in the last hour
//   increase(resdex_breaker_trips_total[1h])
//
//   # Request error rate
//   rate(resdex_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(resdex_request_duration_seconds_bucket[5m]))
//
//   # Runs currently blocked by quota
//   rate(resdex_quota_blocks_total[15m])
