// Package scheduler drives the poll → format → deliver cycle.
//
// A Loop runs one cycle immediately and then every PollInterval measured from
// the start of the previous cycle. When a cycle overruns the interval the next
// one starts at once and the schedule re-anchors on that start; missed ticks
// are not made up.
//
// Within a cycle each OID runs its own pipeline and is handled independently:
// a poll failure skips that OID only. The SNMP requests and HTTP deliveries
// themselves run on a bounded ants worker pool; backoff waits happen outside
// it, so one OID's backoff never delays another. Cancellation interrupts interval and backoff waits.
// SNMP requests and HTTP deliveries already in flight are not cut; they run on
// a context detached from cancellation and are bounded by their own timeouts.
package scheduler
