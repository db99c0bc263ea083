// Package types defines the domain types shared by every forwarder package:
// the raw SNMP Sample, the wire-ready Record posted to the API, and the
// Failure taxonomy used to decide which errors are worth retrying.
//
// These are plain Go values with no I/O. The JSON tags on Record are the
// delivery wire format.
package types
