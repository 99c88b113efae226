// Package session establishes the backend search session and carries the
// opaque identifiers every later call depends on.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/Sahil520021/naukri-scraper/pkg/curlparse"
	"github.com/Sahil520021/naukri-scraper/pkg/logging"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

// Common errors returned during session establishment.
var (
	// ErrNoCredential is returned when the descriptor carries no session
	// cookie. Establishment is the first call that requires one.
	ErrNoCredential = errors.New("descriptor has no credential cookie")

	// ErrNoSession is returned when the search response lacks a
	// recognizable session identifier.
	ErrNoSession = errors.New("response lacks session identifier")
)

// Context holds the opaque session identifiers issued by the backend on
// first contact. It is created once per run and read-only afterward; all
// fetch workers read it concurrently.
type Context struct {
	SID        string
	SIDGroupID string
}

// ItemStub is a minimal reference to a remote profile, sufficient to request
// its detail. Ordinal is the 0-based position in the overall requested
// sequence and the ownership key for deterministic reassembly.
type ItemStub struct {
	Ordinal  int
	UniqID   string
	JSKey    string
	UserName string
}

// Result is the outcome of session establishment: the session itself plus
// the first page of stubs and the backend's total-available count, both of
// which seed pagination.
type Result struct {
	Session        Context
	Stubs          []ItemStub
	TotalAvailable int
}

const txnAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewTransactionID generates a fresh correlation id in the backend's
// expected format, one per outgoing call.
func NewTransactionID() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = txnAlphabet[rand.Intn(len(txnAlphabet))]
	}
	return fmt.Sprintf("rlsrp%d~~%s", time.Now().UnixMilli(), suffix)
}

// searchResponse is the subset of the listing response the pipeline reads.
type searchResponse struct {
	SID          any `json:"sid"`
	SearchParams struct {
		SIDGroupID string `json:"sidGroupId"`
	} `json:"searchParams"`
	Tuples       []map[string]any `json:"tuples"`
	TotalResumes int              `json:"totalResumes"`
}

// Establish issues the initial search call and extracts the session
// identifiers, the first page of stubs, and the total-available count.
func Establish(ctx context.Context, t transport.Transport, d *curlparse.Descriptor) (*Result, error) {
	logger := logging.NewLogger("session")

	if !d.HasCredential() {
		return nil, ErrNoCredential
	}

	call := d.Clone()
	call.Headers["x-transaction-id"] = NewTransactionID()

	resp, err := t.Send(ctx, http.MethodPost, call.URL, call.Headers, call.Body)
	if err != nil {
		return nil, fmt.Errorf("initial search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("initial search: %w", &transport.StatusError{
			StatusCode: resp.StatusCode,
			Class:      transport.Classify(resp.StatusCode, nil),
			Message:    truncate(string(resp.Body), 200),
		})
	}

	var data searchResponse
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("initial search: decode response: %w", err)
	}

	sid := stringify(data.SID)
	if sid == "" {
		return nil, ErrNoSession
	}

	result := &Result{
		Session: Context{
			SID:        sid,
			SIDGroupID: data.SearchParams.SIDGroupID,
		},
		Stubs:          StubsFromTuples(data.Tuples, 0),
		TotalAvailable: data.TotalResumes,
	}

	logger.Info().
		Str("sid", sid).
		Int("first_page", len(result.Stubs)).
		Int("total_available", result.TotalAvailable).
		Msg("Session established")

	return result, nil
}

// StubsFromTuples converts raw listing tuples into stubs, assigning ordinals
// starting at the given offset.
func StubsFromTuples(tuples []map[string]any, startOrdinal int) []ItemStub {
	stubs := make([]ItemStub, 0, len(tuples))
	for i, tuple := range tuples {
		stubs = append(stubs, ItemStub{
			Ordinal:  startOrdinal + i,
			UniqID:   stringify(tuple["dynamicEncryptedUniqueId"]),
			JSKey:    stringify(tuple["dynamicEncryptedJsKey"]),
			UserName: stringify(tuple["jsUserName"]),
		})
	}
	return stubs
}

// stringify renders an opaque identifier that the backend may send as
// either a string or a number.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
