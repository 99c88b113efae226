package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sahil520021/naukri-scraper/internal/testutil"
	"github.com/Sahil520021/naukri-scraper/pkg/scraper"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

func template(mock *testutil.MockResdex) string {
	return fmt.Sprintf(`curl '%s' \
  -H 'appid: 112' \
  -H 'systemid: naukriIndia' \
  -b 'NKWAP=integration-token' \
  --data-raw '{"requirementId":"130761","newCandidatesSearch":false,"miscellaneousInfo":{"companyId":125281556,"rdxUserId":"125666042","rdxUserName":"recruiter@example.com"}}'`,
		mock.SearchURL())
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// pipelineConfig wires a real HTTP transport against the mock backend.
func pipelineConfig(t *testing.T, mock *testutil.MockResdex) scraper.Config {
	t.Helper()

	cfg := scraper.DefaultConfig()
	var err error
	cfg.Transport, err = transport.New(transport.DefaultConfig())
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	cfg.Paginate.Sleep = noSleep
	cfg.Fetch.Sleep = noSleep
	cfg.Fetch.DetailBase = mock.URL()
	return cfg
}

// TestFullPipelineFlow runs the complete flow over real HTTP: parse →
// session → pagination → concurrent detail fetches → normalization.
func TestFullPipelineFlow(t *testing.T) {
	mock := testutil.NewMockResdex(120, 50)
	defer mock.Close()

	p, err := scraper.New(pipelineConfig(t, mock))
	if err != nil {
		t.Fatalf("scraper.New() error = %v", err)
	}

	env, err := p.Run(context.Background(), template(mock), 120, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if env.TotalAvailable != 120 {
		t.Errorf("TotalAvailable = %d, want 120", env.TotalAvailable)
	}
	if env.FetchedCount != 120 || env.FailedCount != 0 {
		t.Errorf("counts = %d/%d, want 120/0", env.FetchedCount, env.FailedCount)
	}
	if len(env.Records) != 120 {
		t.Fatalf("len(Records) = %d, want 120", len(env.Records))
	}

	// Ordinal order survives concurrent completion.
	for i, rec := range env.Records {
		want := fmt.Sprintf("Candidate uniq-%d", i)
		if rec.Name != want {
			t.Fatalf("Records[%d].Name = %v, want %s", i, rec.Name, want)
		}
	}

	// Normalization picked up the mock's raw fields.
	first := env.Records[0]
	if first.Email != "uniq-0@example.com" || first.UGDegree != "B.Tech" || first.KeySkills != "go, distributed systems" {
		t.Errorf("Records[0] = %+v", first)
	}

	// One search, two follow-up pages for 120 profiles at page size 50.
	search, pages, details := mock.Counts()
	if search != 1 {
		t.Errorf("search calls = %d, want 1", search)
	}
	if pages != 2 {
		t.Errorf("page calls = %d, want 2", pages)
	}
	if details != 120 {
		t.Errorf("detail calls = %d, want 120", details)
	}

	if !strings.HasPrefix(mock.LastTxnID, "rlsrp") {
		t.Errorf("LastTxnID = %q, want fresh correlation id per call", mock.LastTxnID)
	}
}

// TestPipelinePartialFailure verifies that persistent detail failures
// degrade to partial results without aborting the run.
func TestPipelinePartialFailure(t *testing.T) {
	mock := testutil.NewMockResdex(10, 50)
	defer mock.Close()

	mock.SetHandler(
		"/cloudgateway-resdex/recruiter-js-profile-services/v0/companies/125281556/recruiters/125666042/rdxlite/jsprofile",
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		})

	cfg := pipelineConfig(t, mock)
	cfg.Fetch.MaxAttempts = 2
	p, err := scraper.New(cfg)
	if err != nil {
		t.Fatalf("scraper.New() error = %v", err)
	}

	env, err := p.Run(context.Background(), template(mock), 10, 3)
	if err != nil {
		t.Fatalf("Run() error = %v, detail failures must not abort", err)
	}
	if env.FetchedCount != 0 || env.FailedCount != 10 {
		t.Errorf("counts = %d/%d, want 0/10", env.FetchedCount, env.FailedCount)
	}
}
