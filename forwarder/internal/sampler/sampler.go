package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// Sampler reads one OID from the agent.
type Sampler interface {
	Poll(ctx context.Context, oid string) (*types.Sample, error)
}

// session is the subset of *gosnmp.GoSNMP used by SNMP.
type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
}

// dialFunc opens a session; the returned close func releases it.
type dialFunc func(ctx context.Context, cfg config.SNMPConfig) (session, func() error, error)

// SNMP polls an agent with gosnmp.
type SNMP struct {
	cfg  config.SNMPConfig
	dial dialFunc
}

// New returns an SNMP sampler for the configured agent.
func New(cfg config.SNMPConfig) *SNMP {
	return &SNMP{cfg: cfg, dial: defaultDial}
}

// Poll issues one read for oid.
func (s *SNMP) Poll(ctx context.Context, oid string) (*types.Sample, error) {
	oid = types.NormalizeOID(oid)
	if !types.ValidOID(oid) {
		return nil, &types.Failure{Kind: types.KindInvalidOID, OID: oid, Err: errors.New("not a dotted-decimal oid")}
	}

	sess, closeFn, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, &types.Failure{Kind: types.KindAgentUnreachable, OID: oid, Err: fmt.Errorf("connect %s:%d: %w", s.cfg.Target, s.cfg.Port, err)}
	}
	defer closeFn() //nolint:errcheck

	var pkt *gosnmp.SnmpPacket
	if s.cfg.Request == config.RequestGetNext {
		pkt, err = sess.GetNext([]string{"." + oid})
	} else {
		pkt, err = sess.Get([]string{"." + oid})
	}
	if err != nil {
		return nil, &types.Failure{Kind: types.KindAgentUnreachable, OID: oid, Err: err}
	}
	return decode(oid, pkt)
}

// decode turns a response packet into a Sample or a Failure.
func decode(oid string, pkt *gosnmp.SnmpPacket) (*types.Sample, error) {
	if pkt == nil {
		return nil, &types.Failure{Kind: types.KindAgentUnreachable, OID: oid, Err: errors.New("empty response")}
	}
	switch pkt.Error {
	case gosnmp.NoError:
	case gosnmp.NoSuchName:
		return nil, &types.Failure{Kind: types.KindOIDNotFound, OID: oid, Err: errors.New("noSuchName")}
	default:
		return nil, &types.Failure{Kind: types.KindAgentError, OID: oid, Err: fmt.Errorf("agent error-status %v at index %d", pkt.Error, pkt.ErrorIndex)}
	}
	if len(pkt.Variables) == 0 {
		return nil, &types.Failure{Kind: types.KindOIDNotFound, OID: oid, Err: errors.New("no varbinds in response")}
	}

	v := pkt.Variables[0]
	switch v.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil, &types.Failure{Kind: types.KindOIDNotFound, OID: oid, Err: errors.New(v.Type.String())}
	}

	name := types.NormalizeOID(v.Name)
	if name == "" {
		name = oid
	}
	return &types.Sample{
		OID:   name,
		Value: value(v),
		Type:  typeHint(v.Type),
	}, nil
}

// value normalizes gosnmp's decoded value for the formatter.
func value(v gosnmp.SnmpPDU) any {
	switch v.Type {
	case gosnmp.Null:
		return nil
	case gosnmp.ObjectIdentifier:
		if s, ok := v.Value.(string); ok {
			return types.NormalizeOID(s)
		}
	}
	return v.Value
}

// typeHint names the agent's syntax tag; untagged values yield "".
func typeHint(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.UnknownType, gosnmp.Null:
		return ""
	}
	name := t.String()
	if strings.HasPrefix(name, "Asn1BER(") {
		return ""
	}
	return name
}

// Retryable returns the poll classifier. oid_not_found, invalid_oid and
// agent_error are structural and never retried; agent_unreachable is retried
// only when retryPolls is true.
func Retryable(retryPolls bool) func(error) bool {
	return func(err error) bool {
		switch types.KindOf(err) {
		case types.KindAgentUnreachable, "":
			return retryPolls
		}
		return false
	}
}

// defaultDial opens a gosnmp UDP session for cfg. Retries are left at zero:
// the retry engine owns re-attempts.
func defaultDial(ctx context.Context, cfg config.SNMPConfig) (session, func() error, error) {
	g := &gosnmp.GoSNMP{
		Target:    cfg.Target,
		Port:      uint16(cfg.Port),
		Transport: "udp",
		Community: cfg.Community,
		Version:   snmpVersion(cfg.Version),
		Timeout:   cfg.Timeout,
		Retries:   0,
		MaxOids:   gosnmp.MaxOids,
		Context:   ctx,
	}
	if err := g.Connect(); err != nil {
		return nil, nil, err
	}
	return g, g.Conn.Close, nil
}

func snmpVersion(v string) gosnmp.SnmpVersion {
	if v == "1" {
		return gosnmp.Version1
	}
	return gosnmp.Version2c
}
