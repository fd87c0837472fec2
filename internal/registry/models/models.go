// Package models defines the registry's domain records and their invariants.
//
// Records validate their own state transitions via Can/Apply pairs so the
// state aggregate can check every precondition before mutating anything.
package models

import (
	"unicode/utf8"

	id "carbonledger/pkg/domain"
	dErrors "carbonledger/pkg/domain-errors"
)

const (
	// EvidenceHashSize is the exact digest length accepted for capture
	// evidence.
	EvidenceHashSize = 32

	// MaxDescriptionCodePoints bounds facility descriptions.
	MaxDescriptionCodePoints = 500

	// MaxMetadataCodePoints bounds capture event metadata.
	MaxMetadataCodePoints = 1000

	// MaxFacilityEvents caps the per-facility event index. Exceeding the cap
	// is an allocation failure reported to the caller, never a silent drop.
	MaxFacilityEvents = 10_000
)

// EvidenceHash is a 32-byte evidence digest.
type EvidenceHash [EvidenceHashSize]byte

// ParseEvidenceHash validates the digest length. Anything other than exactly
// 32 bytes is rejected.
func ParseEvidenceHash(raw []byte) (EvidenceHash, error) {
	if len(raw) != EvidenceHashSize {
		return EvidenceHash{}, dErrors.Newf(dErrors.CodeInvalidHash,
			"evidence hash must be %d bytes, got %d", EvidenceHashSize, len(raw))
	}
	var hash EvidenceHash
	copy(hash[:], raw)
	return hash, nil
}

// Facility is a registered industrial site eligible to report capture events.
//
// Invariants:
//   - ID is assigned exactly once, strictly increasing, never reused
//   - Active is the only mutable field and only the owner toggles it
//   - facilities are never deleted, only deactivated
type Facility struct {
	ID           id.FacilityID
	Owner        id.Identity
	Name         string
	Location     string
	Description  string
	RegisteredAt id.BlockHeight
	Active       bool
}

func (f *Facility) IsOwnedBy(caller id.Identity) bool {
	return f.Owner == caller
}

// ValidateDescription enforces the description bound in Unicode code points.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionCodePoints {
		return dErrors.Newf(dErrors.CodeDescriptionTooLong,
			"description exceeds %d code points", MaxDescriptionCodePoints)
	}
	return nil
}

// ValidateMetadata enforces the metadata bound in Unicode code points.
func ValidateMetadata(metadata string) error {
	if utf8.RuneCountInString(metadata) > MaxMetadataCodePoints {
		return dErrors.Newf(dErrors.CodeMetadataTooLong,
			"metadata exceeds %d code points", MaxMetadataCodePoints)
	}
	return nil
}

// ValidateAmount rejects non-positive capture amounts.
func ValidateAmount(amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

// ValidateTimestamp rejects non-positive capture timestamps.
func ValidateTimestamp(timestamp uint64) error {
	if timestamp == 0 {
		return dErrors.New(dErrors.CodeInvalidTimestamp, "timestamp must be positive")
	}
	return nil
}

// CaptureEvent is one reported instance of carbon sequestration.
//
// Lifecycle: created unverified, then verified exactly once by an oracle.
// Once Verified is true every other field is frozen.
type CaptureEvent struct {
	ID           id.EventID
	FacilityID   id.FacilityID
	EvidenceHash EvidenceHash
	Amount       uint64
	Timestamp    uint64
	Metadata     string
	Verified     bool
	Verifier     *id.Identity
}

// CanVerify checks the one-way verification transition is still available.
func (e *CaptureEvent) CanVerify() error {
	if e.Verified {
		return dErrors.Newf(dErrors.CodeAlreadyVerified, "event %d is already verified", e.ID)
	}
	return nil
}

// ApplyVerification marks the event verified. Call CanVerify first; the
// transition is irreversible.
func (e *CaptureEvent) ApplyVerification(verifier id.Identity) {
	e.Verified = true
	e.Verifier = &verifier
}

// CanUpdateMetadata checks that metadata is still mutable and the replacement
// is within bounds.
func (e *CaptureEvent) CanUpdateMetadata(newMetadata string) error {
	if e.Verified {
		return dErrors.Newf(dErrors.CodeAlreadyVerified, "event %d is already verified", e.ID)
	}
	return ValidateMetadata(newMetadata)
}

// ApplyMetadata overwrites the metadata. Call CanUpdateMetadata first.
func (e *CaptureEvent) ApplyMetadata(newMetadata string) {
	e.Metadata = newMetadata
}
