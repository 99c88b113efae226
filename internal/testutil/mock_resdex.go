package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockResdex is a configurable mock of the Resdex listing/detail backend.
// It serves the search, pageChange, and jsprofile endpoints with canned
// data and tracks request counts per endpoint.
type MockResdex struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	SearchCount  int
	PageCount    int
	DetailCount  int
	LastTxnID    string
	TotalResumes int
	PageSize     int
}

// NewMockResdex creates a mock backend serving the given number of profiles
// in pages of pageSize.
func NewMockResdex(totalResumes, pageSize int) *MockResdex {
	m := &MockResdex{
		handlers:     make(map[string]http.HandlerFunc),
		TotalResumes: totalResumes,
		PageSize:     pageSize,
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.LastTxnID = r.Header.Get("x-transaction-id")
		custom := m.handlers[r.URL.Path]
		m.mu.Unlock()

		if custom != nil {
			custom(w, r)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/search"):
			m.handleSearch(w, r)
		case strings.HasSuffix(r.URL.Path, "/pageChange"):
			m.handlePage(w, r)
		case strings.HasSuffix(r.URL.Path, "/jsprofile"):
			m.handleDetail(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return m
}

// URL returns the mock server's base URL.
func (m *MockResdex) URL() string {
	return m.server.URL
}

// SearchURL returns a listing URL pointing at the mock server.
func (m *MockResdex) SearchURL() string {
	return m.server.URL + "/v0/rdxLite/search"
}

// Close shuts the mock server down.
func (m *MockResdex) Close() {
	m.server.Close()
}

// SetHandler installs a custom handler for an exact path, overriding the
// default behavior.
func (m *MockResdex) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Counts returns a snapshot of per-endpoint request counts.
func (m *MockResdex) Counts() (search, page, detail int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SearchCount, m.PageCount, m.DetailCount
}

// Tuples builds the stub tuples for a page (1-based).
func (m *MockResdex) Tuples(pageNo int) []map[string]any {
	start := (pageNo - 1) * m.PageSize
	end := start + m.PageSize
	if end > m.TotalResumes {
		end = m.TotalResumes
	}
	var tuples []map[string]any
	for i := start; i < end; i++ {
		tuples = append(tuples, map[string]any{
			"dynamicEncryptedUniqueId": fmt.Sprintf("uniq-%d", i),
			"dynamicEncryptedJsKey":    fmt.Sprintf("jskey-%d", i),
			"jsUserName":               fmt.Sprintf("user-%d", i),
		})
	}
	return tuples
}

func (m *MockResdex) handleSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.SearchCount++
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"sid": "2544149",
		"searchParams": map[string]any{
			"sidGroupId": "9bf3a8aa49cf3139",
		},
		"tuples":       m.Tuples(1),
		"totalResumes": m.TotalResumes,
	})
}

func (m *MockResdex) handlePage(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.PageCount++
	m.mu.Unlock()

	var req struct {
		PageNo int `json:"pageNo"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]any{
		"tuples": m.Tuples(req.PageNo),
	})
}

func (m *MockResdex) handleDetail(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.DetailCount++
	m.mu.Unlock()

	var req struct {
		UniqID string `json:"uniqId"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]any{
		"name":               "Candidate " + req.UniqID,
		"email":              req.UniqID + "@example.com",
		"currentDesignation": "Engineer",
		"educations": []map[string]any{
			{"degree": "B.Tech", "specialization": "CS", "institute": "IIT", "year": "2015"},
		},
		"mergedKeySkill": "go, distributed systems",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
