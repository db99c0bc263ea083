package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

const userAgent = "snmpfwd"

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 512

// Deliverer sends one record.
type Deliverer interface {
	Deliver(ctx context.Context, rec types.Record) error
}

// Client is the HTTP Deliverer.
type Client struct {
	endpoint string
	client   *http.Client
}

// New builds a Client for cfg. The http.Client is built once and reused.
func New(cfg config.APIConfig) *Client {
	transport := &authRoundTripper{
		base: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // user-configured
		},
		header: cfg.KeyHeader,
		key:    cfg.Key,
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
}

// Deliver POSTs rec to the endpoint. Any 2xx is success.
func (c *Client) Deliver(ctx context.Context, rec types.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		// A Record has only scalar fields; this cannot happen short of a
		// programming error.
		return &types.Failure{Kind: types.KindClientError, OID: rec.OID, Err: fmt.Errorf("encode record: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &types.Failure{Kind: types.KindClientError, OID: rec.OID, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &types.Failure{Kind: types.KindNetworkError, OID: rec.OID, Err: fmt.Errorf("http post: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &types.Failure{
		Kind:   Classify(resp.StatusCode),
		OID:    rec.OID,
		Status: resp.StatusCode,
		Err:    fmt.Errorf("api returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)),
	}
}

// Classify maps a non-2xx HTTP status to a failure kind.
func Classify(status int) types.FailureKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return types.KindAuthError
	case status >= 500:
		return types.KindServerError
	default:
		return types.KindClientError
	}
}

// authRoundTripper injects the API key into every outgoing request.
type authRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.header == "" || http.CanonicalHeaderKey(t.header) == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+t.key)
	} else {
		req.Header.Set(t.header, t.key)
	}
	return t.base.RoundTrip(req)
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying id for the X-Request-Id header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
