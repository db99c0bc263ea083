package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Outcome values.
const (
	OutcomeDelivered      = "delivered"
	OutcomeSkipped        = "skipped"         // poll failed
	OutcomeDeliveryFailed = "delivery_failed" // poll ok, delivery failed
)

// Entry is the last known outcome for one OID.
type Entry struct {
	OID     string
	Outcome string
	// Kind is the failure kind; empty on success.
	Kind     string
	Value    string
	Unit     string
	Attempts int
	Error    string
	CycleID  string

	UpdatedAt time.Time
}

// Cycle summarizes the most recently finished cycle.
type Cycle struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Delivered int
	Skipped   int
	Failed    int
}

// Store is a thread-safe in-memory outcome store keyed by OID.
type Store struct {
	mu        sync.RWMutex
	data      map[string]*Entry
	lastCycle *Cycle
	ttl       time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured staleness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the entry for e.OID, stamping UpdatedAt.
func (s *Store) Put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.UpdatedAt = s.now()
	s.data[e.OID] = &e
}

// Get returns a copy of the entry for oid. The entry may be stale.
func (s *Store) Get(oid string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[oid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Fresh reports whether e is within the TTL.
func (s *Store) Fresh(e Entry) bool {
	return e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// List returns copies of all non-stale entries sorted by OID.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out
}

// SetCycle records the summary of the last finished cycle.
func (s *Store) SetCycle(c Cycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = &c
}

// LastCycle returns the last finished cycle, if any.
func (s *Store) LastCycle() (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return Cycle{}, false
	}
	return *s.lastCycle, true
}

// Evict removes entries whose UpdatedAt is older than now minus TTL and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for oid, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, oid)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every TTL/2 (minimum 1s) until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("status: evicted stale entries", "count", n)
			}
		}
	}
}
