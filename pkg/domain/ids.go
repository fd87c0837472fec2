// Package domain defines the identifier types shared across the registry.
//
// Identity values are opaque tokens minted by the host authentication layer;
// the registry only ever compares them for equality. Facility and event IDs
// are issued sequentially by the registry itself and are never reused.
package domain

import (
	"strconv"
	"strings"

	dErrors "carbonledger/pkg/domain-errors"
)

// Identity is an opaque, comparable principal token supplied by the host.
// The registry assumes no internal structure.
type Identity string

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == ""
}

func (i Identity) String() string {
	return string(i)
}

// ParseIdentity validates an identity token at a trust boundary.
// Tokens must be non-empty and free of surrounding whitespace.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must not be empty")
	}
	if strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must not contain surrounding whitespace")
	}
	return Identity(s), nil
}

// FacilityID identifies a registered facility. Valid IDs start at 1 and are
// strictly increasing.
type FacilityID uint64

func (id FacilityID) IsNil() bool {
	return id == 0
}

func (id FacilityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseFacilityID parses a facility ID from its decimal representation.
func ParseFacilityID(s string) (FacilityID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "facility id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "facility id must be at least 1")
	}
	return FacilityID(v), nil
}

// EventID identifies a capture event. Valid IDs start at 1 and are strictly
// increasing.
type EventID uint64

func (id EventID) IsNil() bool {
	return id == 0
}

func (id EventID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEventID parses an event ID from its decimal representation.
func ParseEventID(s string) (EventID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "event id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "event id must be at least 1")
	}
	return EventID(v), nil
}

// BlockHeight is the host-supplied monotonically non-decreasing ledger height
// recorded when a facility is registered.
type BlockHeight uint64
