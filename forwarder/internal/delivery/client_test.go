package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// captured is one request seen by the test API.
type captured struct {
	header http.Header
	body   []byte
}

type testAPI struct {
	mu       sync.Mutex
	requests []captured
	status   int
}

func (a *testAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.requests = append(a.requests, captured{header: r.Header.Clone(), body: body})
	status := a.status
	a.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("nope"))
}

func apiCfg(url string) config.APIConfig {
	return config.APIConfig{Endpoint: url, KeyHeader: "Authorization", Timeout: 5 * time.Second}
}

func sampleRecord() types.Record {
	return types.Record{
		Timestamp:  1713188847.115,
		SourceIP:   "127.0.0.1",
		SourcePort: 1161,
		OID:        "1.3.6.1.2.1.2.2.1.10.1",
		Value:      "1294824",
		Unit:       "unknown",
	}
}

func TestDeliver_PostsJSON(t *testing.T) {
	api := &testAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := New(apiCfg(srv.URL))
	ctx := WithRequestID(context.Background(), "cycle-1/1.3.6.1.2.1.2.2.1.10.1")
	if err := c.Deliver(ctx, sampleRecord()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(api.requests) != 1 {
		t.Fatalf("requests: got %d, want 1", len(api.requests))
	}
	req := api.requests[0]
	if ct := req.header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if auth := req.header.Get("Authorization"); auth != "" {
		t.Errorf("Authorization should be absent without a key, got %q", auth)
	}
	if id := req.header.Get("X-Request-Id"); id != "cycle-1/1.3.6.1.2.1.2.2.1.10.1" {
		t.Errorf("X-Request-Id: got %q", id)
	}

	var got map[string]any
	if err := json.Unmarshal(req.body, &got); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, req.body)
	}
	want := map[string]any{
		"timestamp":   1713188847.115,
		"source_ip":   "127.0.0.1",
		"source_port": float64(1161),
		"oid":         "1.3.6.1.2.1.2.2.1.10.1",
		"value":       "1294824",
		"unit":        "unknown",
	}
	if len(got) != len(want) {
		t.Errorf("body fields: got %v, want %v", got, want)
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("body[%s]: got %#v, want %#v", k, got[k], w)
		}
	}
}

func TestDeliver_APIKeyHeaders(t *testing.T) {
	cases := []struct {
		name, header, wantHeader, wantValue string
	}{
		{"bearer default", "Authorization", "Authorization", "Bearer k-123"},
		{"bearer lowercase header", "authorization", "Authorization", "Bearer k-123"},
		{"custom header", "X-API-Key", "X-API-Key", "k-123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &testAPI{}
			srv := httptest.NewServer(api)
			defer srv.Close()

			cfg := apiCfg(srv.URL)
			cfg.Key = "k-123"
			cfg.KeyHeader = tc.header
			if err := New(cfg).Deliver(context.Background(), sampleRecord()); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if got := api.requests[0].header.Get(tc.wantHeader); got != tc.wantValue {
				t.Errorf("%s: got %q, want %q", tc.wantHeader, got, tc.wantValue)
			}
		})
	}
}

func TestDeliver_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   types.FailureKind
	}{
		{http.StatusInternalServerError, types.KindServerError},
		{http.StatusBadGateway, types.KindServerError},
		{http.StatusServiceUnavailable, types.KindServerError},
		{http.StatusUnauthorized, types.KindAuthError},
		{http.StatusForbidden, types.KindAuthError},
		{http.StatusBadRequest, types.KindClientError},
		{http.StatusNotFound, types.KindClientError},
		{http.StatusUnprocessableEntity, types.KindClientError},
	}
	for _, tc := range cases {
		api := &testAPI{status: tc.status}
		srv := httptest.NewServer(api)

		err := New(apiCfg(srv.URL)).Deliver(context.Background(), sampleRecord())
		srv.Close()

		if err == nil {
			t.Errorf("HTTP %d: expected failure", tc.status)
			continue
		}
		f, ok := err.(*types.Failure)
		if !ok {
			t.Errorf("HTTP %d: want *types.Failure, got %T", tc.status, err)
			continue
		}
		if f.Kind != tc.want || f.Status != tc.status {
			t.Errorf("HTTP %d: got kind=%s status=%d, want %s", tc.status, f.Kind, f.Status, tc.want)
		}
	}
}

func TestDeliver_Accepts2xx(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		api := &testAPI{status: status}
		srv := httptest.NewServer(api)
		err := New(apiCfg(srv.URL)).Deliver(context.Background(), sampleRecord())
		srv.Close()
		if err != nil {
			t.Errorf("HTTP %d: unexpected error %v", status, err)
		}
	}
}

func TestDeliver_NetworkError(t *testing.T) {
	srv := httptest.NewServer(&testAPI{})
	url := srv.URL
	srv.Close() // nothing listens any more

	err := New(apiCfg(url)).Deliver(context.Background(), sampleRecord())
	if types.KindOf(err) != types.KindNetworkError {
		t.Errorf("kind: got %q (err=%v), want network_error", types.KindOf(err), err)
	}
	if !types.Retryable(err) {
		t.Error("network errors must be retryable")
	}
}

func TestDeliver_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	cfg := apiCfg(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	err := New(cfg).Deliver(context.Background(), sampleRecord())
	if types.KindOf(err) != types.KindNetworkError {
		t.Errorf("timeout kind: got %q (err=%v)", types.KindOf(err), err)
	}
}

func TestClassify(t *testing.T) {
	if Classify(401) != types.KindAuthError || Classify(403) != types.KindAuthError {
		t.Error("401/403 must be auth_error")
	}
	if Classify(599) != types.KindServerError {
		t.Error("5xx must be server_error")
	}
	if Classify(302) != types.KindClientError {
		t.Error("unfollowed redirect must be client_error")
	}
}
