package protocol

import (
	"github.com/google/uuid"
)

// AccountIdPrefix is the type discriminator of account identifiers.
const AccountIdPrefix = "A"

// IdentityGenerator allocates account identifiers.
type IdentityGenerator interface {
	NewAccountId() AccountId
}

// UUIDGenerator generates account identifiers from random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewAccountId returns a fresh account identifier.
func (UUIDGenerator) NewAccountId() AccountId {
	return GenerateAccountId()
}

// GenerateAccountId returns AccountIdPrefix followed by a random UUID,
// e.g. "A9b2f1c4e-8d3a-4f6b-a1c2-3e4f5a6b7c8d".
func GenerateAccountId() AccountId {
	return AccountId(AccountIdPrefix + uuid.NewString())
}
