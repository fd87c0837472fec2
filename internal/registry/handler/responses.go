package handler

import (
	"encoding/hex"

	"carbonledger/internal/registry/cache"
	"carbonledger/internal/registry/models"
)

type facilityResponse struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	RegisteredAt uint64 `json:"registered_at"`
	Active       bool   `json:"active"`
}

func toFacilityResponse(f models.Facility) facilityResponse {
	return facilityResponse{
		ID:           uint64(f.ID),
		Owner:        f.Owner.String(),
		Name:         f.Name,
		Location:     f.Location,
		Description:  f.Description,
		RegisteredAt: uint64(f.RegisteredAt),
		Active:       f.Active,
	}
}

type captureEventResponse struct {
	ID           uint64  `json:"id"`
	FacilityID   uint64  `json:"facility_id"`
	EvidenceHash string  `json:"evidence_hash"`
	Amount       uint64  `json:"amount"`
	Timestamp    uint64  `json:"timestamp"`
	Metadata     string  `json:"metadata"`
	Verified     bool    `json:"verified"`
	Verifier     *string `json:"verifier,omitempty"`
}

func toCaptureEventResponse(e models.CaptureEvent) captureEventResponse {
	resp := captureEventResponse{
		ID:           uint64(e.ID),
		FacilityID:   uint64(e.FacilityID),
		EvidenceHash: hex.EncodeToString(e.EvidenceHash[:]),
		Amount:       e.Amount,
		Timestamp:    e.Timestamp,
		Metadata:     e.Metadata,
		Verified:     e.Verified,
	}
	if e.Verifier != nil {
		verifier := e.Verifier.String()
		resp.Verifier = &verifier
	}
	return resp
}

type snapshotResponse struct {
	Facility      facilityResponse `json:"facility"`
	VerifiedTotal uint64           `json:"verified_total"`
	EventCount    int              `json:"event_count"`
}

func toSnapshotResponse(s cache.FacilitySnapshot) snapshotResponse {
	return snapshotResponse{
		Facility:      toFacilityResponse(s.Facility),
		VerifiedTotal: s.VerifiedTotal,
		EventCount:    s.EventCount,
	}
}

type createdResponse struct {
	ID uint64 `json:"id"`
}

type totalResponse struct {
	Total uint64 `json:"total"`
}
