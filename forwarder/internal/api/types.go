package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string         `json:"state"`
	OIDCount       int            `json:"oid_count"`
	DeliveredCount int            `json:"delivered_count"`
	SkippedCount   int            `json:"skipped_count"`
	FailedCount    int            `json:"failed_count"`
	LastCycle      *CycleResponse `json:"last_cycle,omitempty"`
}

// CycleResponse describes the last finished polling cycle.
type CycleResponse struct {
	ID         string  `json:"id"`
	StartedAt  string  `json:"started_at"` // RFC3339
	DurationMs float64 `json:"duration_ms"`
	Delivered  int     `json:"delivered"`
	Skipped    int     `json:"skipped"`
	Failed     int     `json:"failed"`
}

// OIDResponse is one entry in GET /api/v1/oids or GET /api/v1/oids/{oid}.
type OIDResponse struct {
	OID      string `json:"oid"`
	Outcome  string `json:"outcome"`
	Kind     string `json:"kind,omitempty"`
	Value    string `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	CycleID  string `json:"cycle_id,omitempty"`
	LastSeen string `json:"last_seen"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
