// Package retry wraps a fallible operation in bounded, truncated exponential
// backoff.
//
// A Retrier is built from a Policy (max attempts, base delay, max delay,
// jitter fraction) and a Classifier that decides whether a given error is
// worth another attempt. After the n-th failed attempt the retrier waits
// min(base*2^(n-1), max), perturbed by ±jitter, before trying again.
// Non-retryable errors return after the attempt that produced them.
//
// Each Do call owns its own attempt counter and delay; a Retrier holds no
// per-call state and is safe for concurrent use.
package retry
