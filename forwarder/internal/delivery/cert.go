package delivery

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

// CertStatus describes the leaf certificate served by the API endpoint.
type CertStatus struct {
	Endpoint string
	// Status is "ok", "expiring", "expired" or "unreachable".
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
}

// expiringDays is the threshold below which a certificate is "expiring".
const expiringDays = 14

// CheckCert dials endpoint over TLS and reports on its leaf certificate.
// It returns nil for non-https endpoints. The dial is bounded by a
// 10-second timeout so an unreachable API does not delay startup.
func CheckCert(ctx context.Context, endpoint string, insecureSkipVerify bool) *CertStatus {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec
			ServerName:         u.Hostname(),
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(time.Now()).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft < 0:
		cs.Status = "expired"
	case daysLeft < expiringDays:
		cs.Status = "expiring"
	default:
		cs.Status = "ok"
	}
	return cs
}
