// Package security provides helpers for keeping credentials out of logs.
package security

import "strings"

// MaskUsername masks a username for safe logging.
// Shows first 2 and last 2 characters with **** in between.
// Short usernames (4 characters or less) are fully masked.
func MaskUsername(username string) string {
	if len(username) <= 4 {
		return "****"
	}
	return username[:2] + "****" + username[len(username)-2:]
}

// MaskPassword reports only whether a password is set. No characters are
// revealed.
func MaskPassword(password string) string {
	if password == "" {
		return ""
	}
	return "****"
}

// MaskEmail masks an email address for safe logging.
// Shows first 2 characters of local part and domain.
// Example: "user@example.com" becomes "us****@ex****"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	localPart, domain, found := strings.Cut(email, "@")
	if !found {
		return MaskUsername(email)
	}

	return maskPrefix(localPart) + "@" + maskPrefix(domain)
}

func maskPrefix(s string) string {
	if len(s) > 2 {
		return s[:2] + "****"
	}
	return "****"
}
