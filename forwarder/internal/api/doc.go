// Package api serves the forwarder's read-only status API.
//
// Routes:
//
//	GET /api/v1/health      outcome counts and the last finished cycle
//	GET /api/v1/oids        last outcome of every non-stale OID
//	GET /api/v1/oids/{oid}  one OID; 404 when unknown or stale
//	GET /metrics            Prometheus exposition of the forwarder registry
//
// When an API key is configured, /api/v1/* requires it in the key header.
// /metrics is never gated so scrapers need no extra config.
package api
