package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorClass
	}{
		{"network error", 0, context.DeadlineExceeded, ErrorClassNetwork},
		{"429 rate limit", http.StatusTooManyRequests, nil, ErrorClassRateLimit},
		{"403 block", http.StatusForbidden, nil, ErrorClassRateLimit},
		{"401 client", http.StatusUnauthorized, nil, ErrorClassClient},
		{"404 client", http.StatusNotFound, nil, ErrorClassClient},
		{"500 server", http.StatusInternalServerError, nil, ErrorClassServer},
		{"502 server", http.StatusBadGateway, nil, ErrorClassServer},
		{"200 no class", http.StatusOK, nil, ErrorClass("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, tt.err); got != tt.want {
				t.Errorf("Classify(%d, %v) = %q, want %q", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

func TestSend_JSONRoundTrip(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := tr.Send(context.Background(), http.MethodPost, server.URL+"/search",
		map[string]string{"x-transaction-id": "rlsrp1~~aaaaaa", "content-type": "application/json"},
		map[string]any{"requirementId": "1"},
	)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if gotBody["requirementId"] != "1" {
		t.Errorf("server saw body %v", gotBody)
	}
	if gotHeader.Get("x-transaction-id") != "rlsrp1~~aaaaaa" {
		t.Errorf("server saw x-transaction-id %q", gotHeader.Get("x-transaction-id"))
	}
}

func TestSend_NonSuccessStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	tr, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := tr.Send(context.Background(), http.MethodPost, server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Send() error = %v, want nil for non-2xx status", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", resp.StatusCode)
	}
}

func TestSend_TimeoutReturnsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	tr, err := New(Config{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = tr.Send(context.Background(), http.MethodPost, server.URL, nil, nil)
	if err == nil {
		t.Fatal("Send() error = nil, want timeout")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Errorf("Send() error = %T, want *transport.Error", err)
	}
}

func TestNew_InvalidProxy(t *testing.T) {
	_, err := New(Config{ProxyURL: "http://[::1]:namedport"})
	if err == nil {
		t.Error("New() error = nil, want parse error for invalid proxy url")
	}
}
