// Package delivery POSTs formatted records to the configured HTTP API.
//
// Client.Deliver serializes one types.Record as JSON and classifies the
// outcome:
//
//	transport error / timeout → network_error  (retryable)
//	HTTP 5xx                  → server_error   (retryable)
//	HTTP 401, 403             → auth_error     (not retryable)
//	other non-2xx             → client_error   (not retryable)
//
// The API key is injected by a RoundTripper: as "Authorization: Bearer <key>"
// by default, or verbatim under API_KEY_HEADER when that names another
// header. Each request carries an X-Request-Id taken from the context
// (WithRequestID) so API-side logs can be correlated with forwarder logs.
//
// CheckCert inspects the TLS certificate of an https endpoint; the
// entrypoint uses it once at startup to warn about imminent expiry.
package delivery
