package types

import (
	"strconv"
	"strings"
	"time"
)

// Sample is one raw reading returned by the agent for a single OID.
// It lives for one polling cycle and is consumed by the formatter.
type Sample struct {
	// OID is the dotted-decimal identifier, without a leading dot.
	OID string

	// Value is the scalar as decoded by the SNMP client: string, []byte,
	// a signed or unsigned integer, or nil.
	Value any

	// Type is the agent-reported syntax tag (e.g. "Counter32").
	// Empty when the agent did not tag the value.
	Type string

	// Timestamp is captured by the caller when the poll was issued.
	Timestamp time.Time
}

// Record is the normalized unit delivered to the API. Every field is always
// serialized; none are optional.
type Record struct {
	Timestamp  float64 `json:"timestamp"`
	SourceIP   string  `json:"source_ip"`
	SourcePort int     `json:"source_port"`
	OID        string  `json:"oid"`
	Value      string  `json:"value"`
	Unit       string  `json:"unit"`
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// NormalizeOID strips surrounding whitespace and a single leading dot.
// Agents return names like ".1.3.6.1.2.1.1.3.0".
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// ValidOID reports whether oid is a non-empty sequence of non-negative
// decimal integers separated by dots.
func ValidOID(oid string) bool {
	if oid == "" {
		return false
	}
	for _, part := range strings.Split(oid, ".") {
		if part == "" {
			return false
		}
		if _, err := strconv.ParseUint(part, 10, 64); err != nil {
			return false
		}
	}
	return true
}
