// Package tls summarizes the TLS session negotiated with the mailbox
// server.
package tls

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// ExpiryWarning is how close to expiry a certificate must be before
// Warnings reports it.
const ExpiryWarning = 30 * 24 * time.Hour

// SessionInfo describes a negotiated TLS session and its leaf certificate.
type SessionInfo struct {
	Version     string
	CipherSuite string
	ServerName  string

	// Leaf certificate, empty when the peer sent none.
	Subject       string
	Issuer        string
	NotAfter      time.Time
	KeyAlgorithm  string
	PublicKeySize int
	SelfSigned    bool
	ChainLength   int
}

// Describe extracts the details of state worth logging.
func Describe(state tls.ConnectionState) SessionInfo {
	info := SessionInfo{
		Version:     VersionString(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
		ServerName:  state.ServerName,
		ChainLength: len(state.PeerCertificates),
	}
	if len(state.PeerCertificates) == 0 {
		return info
	}

	leaf := state.PeerCertificates[0]
	info.Subject = leaf.Subject.String()
	info.Issuer = leaf.Issuer.String()
	info.NotAfter = leaf.NotAfter
	info.KeyAlgorithm = leaf.PublicKeyAlgorithm.String()
	info.PublicKeySize = publicKeySize(leaf)
	info.SelfSigned = leaf.Subject.String() == leaf.Issuer.String()
	return info
}

// Warnings lists problems a mailbox operator should fix, evaluated at now.
func (i SessionInfo) Warnings(now time.Time) []string {
	var warnings []string

	if i.Version == "TLS 1.0" || i.Version == "TLS 1.1" {
		warnings = append(warnings, fmt.Sprintf("Deprecated TLS version: %s", i.Version))
	}
	if weakCipher(i.CipherSuite) {
		warnings = append(warnings, fmt.Sprintf("Weak cipher suite: %s", i.CipherSuite))
	}

	if !i.NotAfter.IsZero() {
		if now.After(i.NotAfter) {
			warnings = append(warnings, fmt.Sprintf("Certificate expired on %s", i.NotAfter.Format("2006-01-02")))
		} else if i.NotAfter.Sub(now) < ExpiryWarning {
			days := int(i.NotAfter.Sub(now).Hours() / 24)
			warnings = append(warnings, fmt.Sprintf("Certificate expires soon (%d days remaining on %s)",
				days, i.NotAfter.Format("2006-01-02")))
		}
	}
	if i.SelfSigned {
		warnings = append(warnings, "Self-signed certificate")
	}
	if i.KeyAlgorithm == x509.RSA.String() && i.PublicKeySize < 2048 {
		warnings = append(warnings, fmt.Sprintf("Weak public key size: %d bits", i.PublicKeySize))
	}

	return warnings
}

// VersionString converts a TLS version constant to a human-readable string.
func VersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04X)", version)
	}
}

func weakCipher(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"rc4", "3des", "_des_", "export", "null", "anon"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.Contains(lower, "cbc") &&
		!strings.Contains(lower, "sha256") &&
		!strings.Contains(lower, "sha384")
}

func publicKeySize(cert *x509.Certificate) int {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return pub.N.BitLen()
	case *ecdsa.PublicKey:
		return pub.Curve.Params().BitSize
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}
