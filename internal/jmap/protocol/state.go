package protocol

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// ErrSerialization is returned when a session cannot be encoded.
var ErrSerialization = errors.New("session serialization failed")

// ComputeState returns the state token of a session: the hex encoded
// BLAKE2b-256 digest of its capabilities, accounts and primary accounts
// (as JSON), its username and its four URLs, in that order. Extensions are
// appended last when present. The existing State is ignored.
func ComputeState(s Session) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}

	for _, v := range []any{s.Capabilities, s.Accounts, s.PrimaryAccounts} {
		if err := writeJSON(h, v); err != nil {
			return "", err
		}
	}
	for _, field := range []string{s.Username, s.APIURL, s.DownloadURL, s.UploadURL, s.EventSourceURL} {
		io.WriteString(h, field)
	}
	if len(s.Extensions) > 0 {
		if err := writeJSON(h, s.Extensions); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stamp returns a copy of s whose State is set to ComputeState(s).
func Stamp(s Session) (Session, error) {
	state, err := ComputeState(s)
	if err != nil {
		return Session{}, err
	}
	s.State = state
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	_, err = w.Write(data)
	return err
}
