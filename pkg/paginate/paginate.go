// Package paginate accumulates item stubs from the listing's pageChange
// endpoint until the target count is reached or supply is exhausted.
package paginate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/curlparse"
	"github.com/Sahil520021/naukri-scraper/pkg/logging"
	"github.com/Sahil520021/naukri-scraper/pkg/session"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "resdex_pages_fetched_total",
	Help: "Total pagination calls by result status",
}, []string{"status"})

// DefaultPageSize is assumed when the first page carried no stubs.
const DefaultPageSize = 50

// Config holds pagination behavior.
type Config struct {
	// PageDelay is the pause before each page call when serialized,
	// keeping the call pattern polite enough to avoid anti-automation
	// defenses.
	PageDelay time.Duration

	// MaxPages bounds worst-case pagination calls regardless of caller
	// input, first page included.
	MaxPages int

	// Concurrency bounds simultaneous page calls. At 1 (the default)
	// pages are fetched serially with PageDelay between calls.
	Concurrency int

	// Sleep is the delay function, injectable for deterministic tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the default pagination configuration.
func DefaultConfig() Config {
	return Config{
		PageDelay:   2 * time.Second,
		MaxPages:    20,
		Concurrency: 1,
		Sleep:       sleepCtx,
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

// Collector issues pageChange calls and assembles stubs in page order.
type Collector struct {
	cfg    Config
	logger zerolog.Logger
}

// NewCollector creates a pagination collector.
func NewCollector(cfg Config) *Collector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Collector{
		cfg:    cfg,
		logger: logging.NewLogger("paginate"),
	}
}

// Collect extends the first page's stubs toward targetCount. A failed page
// degrades gracefully: its stubs are omitted and collection continues. The
// returned sequence has contiguous ordinals and never exceeds targetCount.
func (c *Collector) Collect(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, have []session.ItemStub, targetCount, totalAvailable int) []session.ItemStub {
	if targetCount > totalAvailable && totalAvailable > 0 {
		targetCount = totalAvailable
	}
	if len(have) >= targetCount {
		return have[:targetCount]
	}
	// The backend has nothing beyond the first page. Paging further would
	// only burn calls on empty pages.
	if totalAvailable <= len(have) {
		return have
	}

	pageSize := len(have)
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	needed := targetCount - len(have)
	lastPage := 1 + (needed+pageSize-1)/pageSize
	if lastPage > c.cfg.MaxPages {
		lastPage = c.cfg.MaxPages
	}

	pageURL := strings.Replace(d.URL, "/search", "/pageChange", 1)

	var pages map[int][]map[string]any
	if c.cfg.Concurrency > 1 {
		pages = c.collectConcurrent(ctx, t, d, sess, pageURL, lastPage)
	} else {
		pages = c.collectSerial(ctx, t, d, sess, pageURL, lastPage, targetCount, len(have))
	}

	// Assemble in page order so ordinals stay deterministic; failed pages
	// simply contribute nothing.
	all := have
	pageNums := make([]int, 0, len(pages))
	for p := range pages {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)
	for _, p := range pageNums {
		all = append(all, session.StubsFromTuples(pages[p], len(all))...)
	}

	if len(all) > targetCount {
		all = all[:targetCount]
	}

	c.logger.Info().
		Int("collected", len(all)).
		Int("target", targetCount).
		Int("pages", lastPage).
		Msg("Stub collection complete")

	return all
}

func (c *Collector) collectSerial(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, pageURL string, lastPage, targetCount, haveCount int) map[int][]map[string]any {
	pages := make(map[int][]map[string]any)
	collected := haveCount

	for page := 2; page <= lastPage; page++ {
		if collected >= targetCount {
			break
		}
		if err := c.cfg.Sleep(ctx, c.cfg.PageDelay); err != nil {
			c.logger.Warn().Err(err).Int("page", page).Msg("Pagination cancelled")
			break
		}

		tuples, err := c.fetchPage(ctx, t, d, sess, pageURL, page)
		if err != nil {
			pagesFetchedTotal.WithLabelValues("failed").Inc()
			c.logger.Warn().Err(err).Int("page", page).Msg("Page fetch failed, omitting its stubs")
			continue
		}
		pagesFetchedTotal.WithLabelValues("ok").Inc()
		pages[page] = tuples
		collected += len(tuples)
	}

	return pages
}

func (c *Collector) collectConcurrent(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, pageURL string, lastPage int) map[int][]map[string]any {
	pages := make(map[int][]map[string]any)
	var mu sync.Mutex

	queue := make(chan int, lastPage)
	for page := 2; page <= lastPage; page++ {
		queue <- page
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range queue {
				tuples, err := c.fetchPage(ctx, t, d, sess, pageURL, page)
				if err != nil {
					pagesFetchedTotal.WithLabelValues("failed").Inc()
					c.logger.Warn().Err(err).Int("page", page).Msg("Page fetch failed, omitting its stubs")
					continue
				}
				pagesFetchedTotal.WithLabelValues("ok").Inc()
				mu.Lock()
				pages[page] = tuples
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return pages
}

// fetchPage issues one pageChange call carrying the session identifiers.
func (c *Collector) fetchPage(ctx context.Context, t transport.Transport, d *curlparse.Descriptor, sess session.Context, pageURL string, page int) ([]map[string]any, error) {
	headers := d.Clone().Headers
	headers["x-transaction-id"] = session.NewTransactionID()

	payload := map[string]any{
		"pageNo": page,
		"miscellaneousInfo": map[string]any{
			"companyId":   d.CompanyID(),
			"rdxUserId":   d.RdxUserID(),
			"rdxUserName": d.RdxUserName(),
			"sid":         sess.SID,
			"sidGroupId":  sess.SIDGroupID,
		},
	}

	resp, err := t.Send(ctx, http.MethodPost, pageURL, headers, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &transport.StatusError{
			StatusCode: resp.StatusCode,
			Class:      transport.Classify(resp.StatusCode, nil),
			Message:    fmt.Sprintf("page %d", page),
		}
	}

	var data struct {
		Tuples []map[string]any `json:"tuples"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}

	return data.Tuples, nil
}
