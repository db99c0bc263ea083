package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/status"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// Options configures the handler.
type Options struct {
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// KeyHeader and APIKey gate /api/v1/*. Empty APIKey disables auth.
	KeyHeader string
	APIKey    string
}

// Handler is the HTTP handler for the status API.
type Handler struct {
	store *status.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given status store and registers all routes.
func New(st *status.Store, opts Options) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	v1 := http.NewServeMux()
	v1.HandleFunc("/api/v1/health", h.health)
	v1.HandleFunc("/api/v1/oids", h.listOIDs)
	v1.HandleFunc("/api/v1/oids/", h.getOID) // subtree, extracts {oid}

	header := opts.KeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	h.mux.Handle("/api/v1/", RequireAPIKey(header, opts.APIKey, v1))

	if opts.Gatherer != nil {
		h.mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{OIDCount: len(entries)}
	for _, e := range entries {
		switch e.Outcome {
		case status.OutcomeDelivered:
			resp.DeliveredCount++
		case status.OutcomeSkipped:
			resp.SkippedCount++
		default:
			resp.FailedCount++
		}
	}
	resp.State = stateFromCounts(resp)

	if c, ok := h.store.LastCycle(); ok {
		resp.LastCycle = &CycleResponse{
			ID:         c.ID,
			StartedAt:  c.StartedAt.UTC().Format(time.RFC3339),
			DurationMs: float64(c.Duration) / float64(time.Millisecond),
			Delivered:  c.Delivered,
			Skipped:    c.Skipped,
			Failed:     c.Failed,
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listOIDs returns GET /api/v1/oids.
func (h *Handler) listOIDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]OIDResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toOIDResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getOID returns GET /api/v1/oids/{oid}.
func (h *Handler) getOID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	oid := types.NormalizeOID(strings.TrimPrefix(r.URL.Path, "/api/v1/oids/"))
	if oid == "" {
		h.listOIDs(w, r)
		return
	}

	e, ok := h.store.Get(oid)
	if !ok || !h.store.Fresh(e) {
		jsonErr(w, http.StatusNotFound, "oid not found")
		return
	}
	jsonResp(w, http.StatusOK, toOIDResponse(e))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// stateFromCounts summarizes outcome counts: "unknown" before any data,
// "healthy" when everything was delivered, "critical" when nothing was,
// "degraded" otherwise.
func stateFromCounts(r HealthResponse) string {
	switch {
	case r.OIDCount == 0:
		return "unknown"
	case r.DeliveredCount == r.OIDCount:
		return "healthy"
	case r.DeliveredCount == 0:
		return "critical"
	default:
		return "degraded"
	}
}

func toOIDResponse(e status.Entry) OIDResponse {
	return OIDResponse{
		OID:      e.OID,
		Outcome:  e.Outcome,
		Kind:     e.Kind,
		Value:    e.Value,
		Unit:     e.Unit,
		Attempts: e.Attempts,
		Error:    e.Error,
		CycleID:  e.CycleID,
		LastSeen: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
