// Command scraper-api exposes the crawl pipeline as a thin HTTP service:
// POST /scrape runs one pipeline per request, plus health/readiness and
// Prometheus metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/logging"
	"github.com/Sahil520021/naukri-scraper/pkg/quota"
	"github.com/Sahil520021/naukri-scraper/pkg/scraper"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	proxyURL := getEnv("PROXY_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	logLevel := getEnv("LOG_LEVEL", "info")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})

	// Quota blocks are kept in Redis when configured so concurrent
	// replicas stop early after a trip; otherwise per-process memory.
	var redisClient *redis.Client
	store := quota.Store(quota.NewMemoryStore())
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		store = quota.NewRedisStore(redisClient)
		logger.Info().Str("redis_url", redisURL).Msg("Quota state backed by Redis")
	}
	tracker := quota.NewTracker(store, quota.DefaultBlockTTL)

	transportCfg := transport.DefaultConfig()
	transportCfg.ProxyURL = proxyURL

	mux := http.NewServeMux()
	mux.HandleFunc("/scrape", scrapeHandler(transportCfg, tracker, logger))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	logger.Info().Str("addr", addr).Str("proxy_url", proxyURL).Msg("Starting scraper API server")

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// scrapeRequest is the POST /scrape input document.
type scrapeRequest struct {
	CurlCommand string `json:"curlCommand"`
	MaxResults  int    `json:"maxResults"`
	Concurrency int    `json:"concurrency"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func scrapeHandler(transportCfg transport.Config, tracker *quota.Tracker, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "use POST"})
			return
		}

		var req scrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
			return
		}
		if req.CurlCommand == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "curlCommand is required"})
			return
		}
		if req.MaxResults < 1 {
			req.MaxResults = 50
		}
		if req.Concurrency < 1 {
			req.Concurrency = 5
		}

		// One pipeline per request keeps concurrent callers isolated.
		cfg := scraper.DefaultConfig()
		cfg.Quota = tracker
		var err error
		cfg.Transport, err = transport.New(transportCfg)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		pipeline, err := scraper.New(cfg)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		logger.Info().Int("max_results", req.MaxResults).Int("concurrency", req.Concurrency).Msg("Received scrape request")

		env, err := pipeline.Run(r.Context(), req.CurlCommand, req.MaxResults, req.Concurrency)
		if err != nil {
			var serr *scraper.Error
			status := http.StatusBadGateway
			if errors.As(err, &serr) && serr.Stage == scraper.StageParse {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, env)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports readiness. With Redis configured, readiness includes
// the quota store connection.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
