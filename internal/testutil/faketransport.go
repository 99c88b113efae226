// Package testutil provides testing utilities for the crawl pipeline.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

// Call records one transport invocation.
type Call struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// FakeTransport is a scripted in-process transport for unit tests. The
// handler decides each response; every invocation is recorded.
type FakeTransport struct {
	Handler func(call Call) (*transport.Response, error)

	mu    sync.Mutex
	calls []Call
}

// Send implements transport.Transport.
func (f *FakeTransport) Send(ctx context.Context, method, url string, headers map[string]string, body any) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &transport.Error{URL: url, Err: err}
	}

	call := Call{Method: method, URL: url, Headers: headers, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	return f.Handler(call)
}

// Calls returns a snapshot of all recorded invocations.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of invocations so far.
func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallsTo returns recorded invocations whose URL contains the substring.
func (f *FakeTransport) CallsTo(urlSubstring string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.URL, urlSubstring) {
			out = append(out, c)
		}
	}
	return out
}

// JSONResponse builds a 200 response with the given body.
func JSONResponse(body string) *transport.Response {
	return &transport.Response{StatusCode: 200, Body: []byte(body)}
}

// StatusResponse builds a response with the given status and body.
func StatusResponse(status int, body string) *transport.Response {
	return &transport.Response{StatusCode: status, Body: []byte(body)}
}
