// Package protocol provides JMAP session management utilities.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// BuildSession assembles the session document for a single account. The
// returned session has no state; pass it to Stamp before serving it.
func BuildSession(account Account, accountId AccountId, username, address string) Session {
	urls := URLsFromAddress(address)
	return Session{
		Capabilities: Capabilities(),
		Accounts: map[AccountId]Account{
			accountId: account,
		},
		// No capability claims a primary account yet.
		PrimaryAccounts: map[string]AccountId{},
		Username:        username,
		APIURL:          urls.API,
		DownloadURL:     urls.Download,
		UploadURL:       urls.Upload,
		EventSourceURL:  urls.EventSource,
	}
}

// ParseSession parses a JMAP session from JSON.
func ParseSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// GetCapabilityNames returns the sorted list of capability URIs.
func (s *Session) GetCapabilityNames() []string {
	names := make([]string, 0, len(s.Capabilities))
	for name := range s.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCapability checks if the server supports a capability.
func (s *Session) HasCapability(uri string) bool {
	_, ok := s.Capabilities[uri]
	return ok
}

// GetCoreCapability returns the core capability limits.
func (s *Session) GetCoreCapability() (CapabilitiesObject, error) {
	caps, ok := s.Capabilities[CoreCapability]
	if !ok {
		return CapabilitiesObject{}, fmt.Errorf("core capability not found")
	}
	return caps, nil
}

// GetPrimaryAccountId returns the primary account ID for a capability.
func (s *Session) GetPrimaryAccountId(uri string) (AccountId, bool) {
	id, ok := s.PrimaryAccounts[uri]
	return id, ok
}

// GetAccountCount returns the number of accounts.
func (s *Session) GetAccountCount() int {
	return len(s.Accounts)
}

// Validate checks if the session has the required fields.
func (s *Session) Validate() error {
	if s.APIURL == "" {
		return fmt.Errorf("session missing apiUrl")
	}
	if len(s.Capabilities) == 0 {
		return fmt.Errorf("session missing capabilities")
	}
	if !s.HasCapability(CoreCapability) {
		return fmt.Errorf("session missing core capability")
	}
	if len(s.Accounts) == 0 {
		return fmt.Errorf("session missing accounts")
	}
	return nil
}

// Summary returns a human-readable summary of the session.
func (s *Session) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Username: %s\n", s.Username))
	sb.WriteString(fmt.Sprintf("API URL: %s\n", s.APIURL))
	sb.WriteString(fmt.Sprintf("Accounts: %d\n", len(s.Accounts)))
	sb.WriteString(fmt.Sprintf("Capabilities: %s\n", strings.Join(s.GetCapabilityNames(), ", ")))
	if s.State != "" {
		sb.WriteString(fmt.Sprintf("State: %s\n", s.State))
	}
	return sb.String()
}
