package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// fakeSession answers Get/GetNext from a canned packet or error.
type fakeSession struct {
	pkt      *gosnmp.SnmpPacket
	err      error
	gets     [][]string
	getNexts [][]string
}

func (f *fakeSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	f.gets = append(f.gets, oids)
	return f.pkt, f.err
}

func (f *fakeSession) GetNext(oids []string) (*gosnmp.SnmpPacket, error) {
	f.getNexts = append(f.getNexts, oids)
	return f.pkt, f.err
}

func newTestSampler(cfg config.SNMPConfig, sess *fakeSession, dialErr error) (*SNMP, *int) {
	closed := 0
	s := New(cfg)
	s.dial = func(context.Context, config.SNMPConfig) (session, func() error, error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return sess, func() error { closed++; return nil }, nil
	}
	return s, &closed
}

func snmpCfg() config.SNMPConfig {
	return config.SNMPConfig{Target: "127.0.0.1", Port: 1161, Community: "public", Version: "2c", Timeout: time.Second, Request: config.RequestGet}
}

func packet(pdus ...gosnmp.SnmpPDU) *gosnmp.SnmpPacket {
	return &gosnmp.SnmpPacket{Error: gosnmp.NoError, Variables: pdus}
}

func TestPoll_Counter32(t *testing.T) {
	sess := &fakeSession{pkt: packet(gosnmp.SnmpPDU{
		Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(1294824),
	})}
	s, closed := newTestSampler(snmpCfg(), sess, nil)

	got, err := s.Poll(context.Background(), "1.3.6.1.2.1.2.2.1.10.1")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if got.OID != "1.3.6.1.2.1.2.2.1.10.1" {
		t.Errorf("oid: got %q", got.OID)
	}
	if got.Type != "Counter32" {
		t.Errorf("type: got %q", got.Type)
	}
	if v, ok := got.Value.(uint); !ok || v != 1294824 {
		t.Errorf("value: got %#v", got.Value)
	}
	if len(sess.gets) != 1 || sess.gets[0][0] != ".1.3.6.1.2.1.2.2.1.10.1" {
		t.Errorf("GET not issued as expected: %v", sess.gets)
	}
	if *closed != 1 {
		t.Errorf("session closed %d times, want 1", *closed)
	}
}

func TestPoll_GetNextMode(t *testing.T) {
	cfg := snmpCfg()
	cfg.Request = config.RequestGetNext
	sess := &fakeSession{pkt: packet(gosnmp.SnmpPDU{
		Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("Test System"),
	})}
	s, _ := newTestSampler(cfg, sess, nil)

	got, err := s.Poll(context.Background(), "1.3.6.1.2.1.1.1")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(sess.getNexts) != 1 || len(sess.gets) != 0 {
		t.Errorf("expected one GETNEXT, got gets=%v getnexts=%v", sess.gets, sess.getNexts)
	}
	// GETNEXT reports the OID the agent actually returned.
	if got.OID != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("oid: got %q", got.OID)
	}
}

func TestPoll_Failures(t *testing.T) {
	cases := []struct {
		name    string
		oid     string
		sess    *fakeSession
		dialErr error
		want    types.FailureKind
	}{
		{
			name: "invalid oid",
			oid:  "1.3.x",
			sess: &fakeSession{},
			want: types.KindInvalidOID,
		},
		{
			name:    "dial error",
			oid:     "1.3.6.1.2.1.1.1.0",
			sess:    &fakeSession{},
			dialErr: errors.New("no route to host"),
			want:    types.KindAgentUnreachable,
		},
		{
			name: "timeout",
			oid:  "1.3.6.1.2.1.1.1.0",
			sess: &fakeSession{err: errors.New("request timeout (after 0 retries)")},
			want: types.KindAgentUnreachable,
		},
		{
			name: "no such object",
			oid:  "1.3.6.1.2.1.1.99.0",
			sess: &fakeSession{pkt: packet(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.99.0", Type: gosnmp.NoSuchObject})},
			want: types.KindOIDNotFound,
		},
		{
			name: "no such instance",
			oid:  "1.3.6.1.2.1.1.1.7",
			sess: &fakeSession{pkt: packet(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.1.7", Type: gosnmp.NoSuchInstance})},
			want: types.KindOIDNotFound,
		},
		{
			name: "end of mib view",
			oid:  "1.3.6.1.9",
			sess: &fakeSession{pkt: packet(gosnmp.SnmpPDU{Name: ".1.3.6.1.9", Type: gosnmp.EndOfMibView})},
			want: types.KindOIDNotFound,
		},
		{
			name: "v1 noSuchName",
			oid:  "1.3.6.1.2.1.1.99.0",
			sess: &fakeSession{pkt: &gosnmp.SnmpPacket{Error: gosnmp.NoSuchName, ErrorIndex: 1}},
			want: types.KindOIDNotFound,
		},
		{
			name: "empty varbinds",
			oid:  "1.3.6.1.2.1.1.1.0",
			sess: &fakeSession{pkt: packet()},
			want: types.KindOIDNotFound,
		},
		{
			name: "generic agent error",
			oid:  "1.3.6.1.2.1.1.1.0",
			sess: &fakeSession{pkt: &gosnmp.SnmpPacket{Error: gosnmp.GenErr, ErrorIndex: 1}},
			want: types.KindAgentError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSampler(snmpCfg(), tc.sess, tc.dialErr)
			got, err := s.Poll(context.Background(), tc.oid)
			if err == nil {
				t.Fatalf("expected failure, got sample %+v", got)
			}
			if k := types.KindOf(err); k != tc.want {
				t.Errorf("kind: got %q, want %q (err=%v)", k, tc.want, err)
			}
		})
	}
}

func TestPoll_NullValueIsUntagged(t *testing.T) {
	sess := &fakeSession{pkt: packet(gosnmp.SnmpPDU{Name: ".1.3.6.1.4.1.1.0", Type: gosnmp.Null})}
	s, _ := newTestSampler(snmpCfg(), sess, nil)

	got, err := s.Poll(context.Background(), "1.3.6.1.4.1.1.0")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if got.Type != "" || got.Value != nil {
		t.Errorf("null varbind: got type=%q value=%#v", got.Type, got.Value)
	}
}

func TestRetryable(t *testing.T) {
	unreachable := &types.Failure{Kind: types.KindAgentUnreachable}
	notFound := &types.Failure{Kind: types.KindOIDNotFound}
	invalid := &types.Failure{Kind: types.KindInvalidOID}

	on := Retryable(true)
	off := Retryable(false)

	if !on(unreachable) {
		t.Error("agent_unreachable should retry when polls retry is on")
	}
	if off(unreachable) {
		t.Error("agent_unreachable should not retry when polls retry is off")
	}
	for _, c := range []func(error) bool{on, off} {
		if c(notFound) {
			t.Error("oid_not_found must never be retried")
		}
		if c(invalid) {
			t.Error("invalid_oid must never be retried")
		}
	}
}
