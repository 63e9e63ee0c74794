// Package protocol provides JMAP protocol types and utilities.
package protocol

import (
	"encoding/json"
)

// Id represents a JMAP identifier string.
type Id string

// AccountId identifies a JMAP account. It is a distinct type so account
// identifiers cannot be mixed up with other identifier namespaces.
type AccountId Id

// Session represents a JMAP session resource.
// See RFC 8620 Section 2.
type Session struct {
	// Capabilities contains the capabilities of the server.
	Capabilities map[string]CapabilitiesObject `json:"capabilities"`

	// Accounts contains information about the accounts available.
	Accounts map[AccountId]Account `json:"accounts"`

	// PrimaryAccounts maps capability URIs to the primary account ID.
	PrimaryAccounts map[string]AccountId `json:"primaryAccounts"`

	// Username is the username associated with the session.
	Username string `json:"username"`

	// APIURL is the URL for JMAP API requests.
	APIURL string `json:"apiUrl"`

	// DownloadURL is the URL template for downloading blobs.
	DownloadURL string `json:"downloadUrl"`

	// UploadURL is the URL template for uploading blobs.
	UploadURL string `json:"uploadUrl"`

	// EventSourceURL is the URL template for push notifications.
	EventSourceURL string `json:"eventSourceUrl"`

	// State is an opaque string representing the current state.
	State string `json:"state"`

	// Extensions holds additional top-level properties. They are flattened
	// into the JSON object; standard properties take precedence.
	Extensions map[string]json.RawMessage `json:"-"`
}

// Account represents a JMAP account.
type Account struct {
	// Name is a human-readable name for the account.
	Name string `json:"name"`

	// IsPersonal indicates if this is the user's personal account.
	IsPersonal bool `json:"isPersonal"`

	// IsReadOnly indicates if the account is read-only.
	IsReadOnly bool `json:"isReadOnly"`

	// AccountCapabilities contains account-specific capability data.
	AccountCapabilities map[string]json.RawMessage `json:"accountCapabilities"`
}

// NewAccount returns the account exposed for a mailbox. Accounts are
// personal and read-only until JMAP methods that modify data exist.
func NewAccount(email string) Account {
	return Account{
		Name:                email,
		IsPersonal:          true,
		IsReadOnly:          true,
		AccountCapabilities: map[string]json.RawMessage{},
	}
}

// CapabilitiesObject describes the limits of the core capability.
// See RFC 8620 Section 2.
type CapabilitiesObject struct {
	MaxSizeUpload         uint64   `json:"maxSizeUpload"`
	MaxConcurrentUpload   uint64   `json:"maxConcurrentUpload"`
	MaxSizeRequest        uint64   `json:"maxSizeRequest"`
	MaxConcurrentRequests uint64   `json:"maxConcurrentRequests"`
	MaxCallsInRequest     uint64   `json:"maxCallsInRequest"`
	MaxObjectsInGet       uint64   `json:"maxObjectsInGet"`
	MaxObjectsInSet       uint64   `json:"maxObjectsInSet"`
	CollationAlgorithms   []string `json:"collationAlgorithms"`
}

// sessionFields mirrors Session without its methods so MarshalJSON can use
// the default encoding for the standard properties.
type sessionFields Session

// MarshalJSON encodes the session, merging Extensions into the top-level
// object. Keys are emitted in sorted order, so equal sessions always encode
// to identical bytes.
func (s Session) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(sessionFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extensions) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(s.Extensions)+9)
	for k, v := range s.Extensions {
		merged[k] = v
	}
	var standard map[string]json.RawMessage
	if err := json.Unmarshal(base, &standard); err != nil {
		return nil, err
	}
	for k, v := range standard {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes a session and keeps unknown top-level properties
// in Extensions.
func (s *Session) UnmarshalJSON(data []byte) error {
	var fields sessionFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range standardSessionKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		fields.Extensions = all
	}
	*s = Session(fields)
	return nil
}

var standardSessionKeys = []string{
	"capabilities",
	"accounts",
	"primaryAccounts",
	"username",
	"apiUrl",
	"downloadUrl",
	"uploadUrl",
	"eventSourceUrl",
	"state",
}
