// Package protocol provides IMAP capability parsing utilities.
package protocol

import (
	"sort"
	"strings"
)

// IMAP capabilities relevant to bridging a mailbox into JMAP.
const (
	CapabilityIMAP4rev1     = "IMAP4rev1"
	CapabilityIMAP4rev2     = "IMAP4rev2"
	CapabilitySTARTTLS      = "STARTTLS"
	CapabilityLOGINDISABLED = "LOGINDISABLED"
	CapabilityIDLE          = "IDLE"
	CapabilityCONDSTORE     = "CONDSTORE"
	CapabilityQRESYNC       = "QRESYNC"
	CapabilitySORT          = "SORT"
)

// Auth mechanisms the gateway can use against the mailbox.
const (
	AuthPlain = "PLAIN"
	AuthLogin = "LOGIN"
)

// Capabilities represents IMAP server capabilities.
type Capabilities struct {
	// Raw capabilities list
	raw []string

	// Parsed set of capabilities (uppercase)
	caps map[string]bool

	// Auth mechanisms (from AUTH= capabilities), uppercase
	authMechanisms []string
}

// NewCapabilities creates a new Capabilities from a list of capability strings.
func NewCapabilities(caps []string) *Capabilities {
	c := &Capabilities{
		raw:  caps,
		caps: make(map[string]bool, len(caps)),
	}
	for _, capability := range caps {
		upper := strings.ToUpper(capability)
		c.caps[upper] = true
		if mechanism, ok := strings.CutPrefix(upper, "AUTH="); ok && mechanism != "" {
			c.authMechanisms = append(c.authMechanisms, mechanism)
		}
	}
	sort.Strings(c.authMechanisms)
	return c
}

// Has returns true if the server advertises the given capability.
func (c *Capabilities) Has(name string) bool {
	return c.caps[strings.ToUpper(name)]
}

// All returns all capability strings.
func (c *Capabilities) All() []string {
	return c.raw
}

// String returns a comma-separated list of capabilities.
func (c *Capabilities) String() string {
	return strings.Join(c.raw, ", ")
}

// GetAuthMechanisms returns the list of supported SASL mechanisms.
func (c *Capabilities) GetAuthMechanisms() []string {
	return c.authMechanisms
}

// IsLoginDisabled returns true if LOGIN is disabled (usually pre-TLS).
func (c *Capabilities) IsLoginDisabled() bool {
	return c.Has(CapabilityLOGINDISABLED)
}

// SupportsPlain returns true if SASL PLAIN is advertised.
func (c *Capabilities) SupportsPlain() bool {
	return c.Has("AUTH=" + AuthPlain)
}

// SupportsRev2 returns true if the server speaks IMAP4rev2 (RFC 9051).
func (c *Capabilities) SupportsRev2() bool {
	return c.Has(CapabilityIMAP4rev2)
}

// SupportsIDLE returns true if the IDLE extension is supported. JMAP push
// over the event source endpoint depends on it.
func (c *Capabilities) SupportsIDLE() bool {
	return c.Has(CapabilityIDLE)
}

// SupportsCONDSTORE returns true if CONDSTORE is supported. It provides the
// modification sequences JMAP state strings for mail objects derive from.
func (c *Capabilities) SupportsCONDSTORE() bool {
	return c.Has(CapabilityCONDSTORE)
}

// SelectAuthMechanism picks the mechanism used to log in: SASL PLAIN when
// advertised, otherwise the LOGIN command unless the server disabled it.
// An empty string means no usable mechanism.
func (c *Capabilities) SelectAuthMechanism() string {
	if c.SupportsPlain() {
		return AuthPlain
	}
	if !c.IsLoginDisabled() {
		return AuthLogin
	}
	return ""
}
