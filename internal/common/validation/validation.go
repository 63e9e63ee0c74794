// Package validation checks configuration values before they are used.
package validation

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ValidateEmail performs basic email format validation.
// Checks for the presence of @ and validates the local and domain parts.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email format: %q (missing @)", email)
	}
	for _, ch := range email {
		if unicode.IsSpace(ch) || unicode.IsControl(ch) {
			return fmt.Errorf("invalid email format: %q (contains whitespace or control characters)", email)
		}
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email format: %q", email)
	}
	return nil
}

// ValidateHostname validates a hostname or IP address.
// Accepts DNS names, IPv4 addresses, and IPv6 addresses.
func ValidateHostname(hostname string) error {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return fmt.Errorf("hostname cannot be empty")
	}

	if net.ParseIP(hostname) != nil {
		return nil
	}

	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}

	for _, ch := range hostname {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '.' || ch == '-') {
			return fmt.Errorf("hostname contains invalid character: %q", ch)
		}
	}

	if strings.HasPrefix(hostname, "-") || strings.HasSuffix(hostname, "-") ||
		strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return fmt.Errorf("hostname cannot start or end with hyphen or dot")
	}

	return nil
}

// ValidatePort validates that a port number is in the valid range (1-65535).
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", port)
	}
	return nil
}

// ValidateTrustedProxy accepts a single IP address or a CIDR network.
func ValidateTrustedProxy(proxy string) error {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return fmt.Errorf("trusted proxy cannot be empty")
	}
	if strings.Contains(proxy, "/") {
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy network %q: %w", proxy, err)
		}
		return nil
	}
	if net.ParseIP(proxy) == nil {
		return fmt.Errorf("invalid trusted proxy address %q", proxy)
	}
	return nil
}
