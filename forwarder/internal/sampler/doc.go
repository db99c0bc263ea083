// Package sampler reads single OIDs from an SNMP agent.
//
// Sampler is the interface the scheduler depends on. SNMP is the production
// implementation on top of github.com/gosnmp/gosnmp: every Poll opens its own
// UDP session (a GoSNMP value is not safe for concurrent use), issues one GET
// (or GETNEXT when configured), and returns a types.Sample or a
// *types.Failure tagged with why the read failed.
//
// Retryable(retryPolls) is the classifier the scheduler hands to the retry
// engine for polls: oid_not_found and other structural failures are never
// retried, agent_unreachable is retried only when retryPolls is set.
//
// The dial field is injectable for tests.
package sampler
