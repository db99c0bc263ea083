package types

import (
	"errors"
	"fmt"
)

// FailureKind tags why a poll or a delivery failed.
type FailureKind string

// Poll-time kinds.
const (
	KindInvalidOID       FailureKind = "invalid_oid"
	KindAgentUnreachable FailureKind = "agent_unreachable"
	KindOIDNotFound      FailureKind = "oid_not_found"
	KindAgentError       FailureKind = "agent_error"
)

// Delivery-time kinds.
const (
	KindNetworkError FailureKind = "network_error"
	KindServerError  FailureKind = "server_error"
	KindClientError  FailureKind = "client_error"
	KindAuthError    FailureKind = "auth_error"
)

// Failure is the error returned by the sampler and the delivery client.
// Status is the HTTP status code for delivery failures and 0 otherwise.
type Failure struct {
	Kind   FailureKind
	OID    string
	Status int
	Err    error
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.OID != "" {
		msg += " oid=" + f.OID
	}
	if f.Status != 0 {
		msg += fmt.Sprintf(" status=%d", f.Status)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the FailureKind carried anywhere in err's chain, or "" when
// err is not a Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Retryable is the default classification: transient transport problems and
// server-side errors are retried; everything structural is not.
// Errors that are not a Failure are treated as transient.
func Retryable(err error) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return true
	}
	switch f.Kind {
	case KindAgentUnreachable, KindNetworkError, KindServerError:
		return true
	}
	return false
}
