package session

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/Sahil520021/naukri-scraper/internal/testutil"
	"github.com/Sahil520021/naukri-scraper/pkg/curlparse"
	"github.com/Sahil520021/naukri-scraper/pkg/transport"
)

func testDescriptor(t *testing.T) *curlparse.Descriptor {
	t.Helper()
	d, err := curlparse.Parse(`curl 'https://api.example/v0/rdx/search' -b 'session=abc' --data-raw '{"requirementId":"1","miscellaneousInfo":{"companyId":99,"rdxUserId":"u1","rdxUserName":"r@example.com"}}'`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return d
}

func TestEstablish_Success(t *testing.T) {
	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			return testutil.JSONResponse(`{
				"sid": "S1",
				"searchParams": {"sidGroupId": "G1"},
				"tuples": [
					{"dynamicEncryptedUniqueId": "a", "dynamicEncryptedJsKey": "ka", "jsUserName": "alice"},
					{"dynamicEncryptedUniqueId": "b", "dynamicEncryptedJsKey": "kb", "jsUserName": "bob"}
				],
				"totalResumes": 500
			}`), nil
		},
	}

	res, err := Establish(context.Background(), ft, testDescriptor(t))
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}

	if res.Session.SID != "S1" {
		t.Errorf("SID = %q, want S1", res.Session.SID)
	}
	if res.Session.SIDGroupID != "G1" {
		t.Errorf("SIDGroupID = %q, want G1", res.Session.SIDGroupID)
	}
	if res.TotalAvailable != 500 {
		t.Errorf("TotalAvailable = %d, want 500", res.TotalAvailable)
	}

	if len(res.Stubs) != 2 {
		t.Fatalf("len(Stubs) = %d, want 2", len(res.Stubs))
	}
	for i, stub := range res.Stubs {
		if stub.Ordinal != i {
			t.Errorf("Stubs[%d].Ordinal = %d, want %d", i, stub.Ordinal, i)
		}
	}
	if res.Stubs[1].UniqID != "b" || res.Stubs[1].JSKey != "kb" {
		t.Errorf("Stubs[1] = %+v", res.Stubs[1])
	}

	// A fresh correlation header must accompany the call.
	calls := ft.Calls()
	if len(calls) != 1 {
		t.Fatalf("CallCount = %d, want 1", len(calls))
	}
	if !regexp.MustCompile(`^rlsrp\d+~~[a-z0-9]{6}$`).MatchString(calls[0].Headers["x-transaction-id"]) {
		t.Errorf("x-transaction-id = %q, want rlsrp<millis>~~<rand6>", calls[0].Headers["x-transaction-id"])
	}
}

func TestEstablish_NumericSID(t *testing.T) {
	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			return testutil.JSONResponse(`{"sid": 2544149, "tuples": [], "totalResumes": 0}`), nil
		},
	}

	res, err := Establish(context.Background(), ft, testDescriptor(t))
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if res.Session.SID != "2544149" {
		t.Errorf("SID = %q, want 2544149", res.Session.SID)
	}
	if res.Session.SIDGroupID != "" {
		t.Errorf("SIDGroupID = %q, want absent", res.Session.SIDGroupID)
	}
}

func TestEstablish_MissingSID(t *testing.T) {
	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			return testutil.JSONResponse(`{"tuples": [{"dynamicEncryptedUniqueId": "a"}], "totalResumes": 1}`), nil
		},
	}

	_, err := Establish(context.Background(), ft, testDescriptor(t))
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("Establish() error = %v, want ErrNoSession", err)
	}
}

func TestEstablish_NonSuccessStatus(t *testing.T) {
	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			return testutil.StatusResponse(502, "bad gateway"), nil
		},
	}

	_, err := Establish(context.Background(), ft, testDescriptor(t))
	var serr *transport.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("Establish() error = %v, want *transport.StatusError", err)
	}
	if serr.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", serr.StatusCode)
	}
}

func TestEstablish_TransportFailure(t *testing.T) {
	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			return nil, &transport.Error{URL: call.URL, Err: errors.New("connection refused")}
		},
	}

	_, err := Establish(context.Background(), ft, testDescriptor(t))
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Errorf("Establish() error = %v, want *transport.Error", err)
	}
}

func TestEstablish_MissingCredential(t *testing.T) {
	d, err := curlparse.Parse(`curl 'https://api.example/v0/rdx/search'`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ft := &testutil.FakeTransport{
		Handler: func(call testutil.Call) (*transport.Response, error) {
			t.Fatal("no call should be issued without a credential")
			return nil, nil
		},
	}

	_, err = Establish(context.Background(), ft, d)
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("Establish() error = %v, want ErrNoCredential", err)
	}
}

func TestNewTransactionID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^rlsrp\d{13}~~[a-z0-9]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := NewTransactionID()
		if !pattern.MatchString(id) {
			t.Fatalf("NewTransactionID() = %q, want rlsrp<millis>~~<rand6>", id)
		}
		seen[id] = true
	}
	if len(seen) < 2 {
		t.Error("transaction ids should vary between calls")
	}
}

func TestStubsFromTuples_OrdinalOffset(t *testing.T) {
	tuples := []map[string]any{
		{"dynamicEncryptedUniqueId": "x"},
		{"dynamicEncryptedUniqueId": "y"},
	}

	stubs := StubsFromTuples(tuples, 50)
	if stubs[0].Ordinal != 50 || stubs[1].Ordinal != 51 {
		t.Errorf("ordinals = %d, %d, want 50, 51", stubs[0].Ordinal, stubs[1].Ordinal)
	}
}
