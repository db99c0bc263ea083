// Package status keeps the latest per-OID outcome in memory for the status
// API. Entries older than the TTL are hidden from List and removed by Run.
package status
