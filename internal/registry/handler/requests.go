package handler

// Request bodies for the write surface. Identities travel as opaque strings;
// evidence hashes travel hex-encoded.

type transferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

type grantOracleRequest struct {
	Identity string `json:"identity"`
}

type registerFacilityRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type updateFacilityStatusRequest struct {
	Active *bool `json:"active"`
}

type registerCaptureRequest struct {
	FacilityID   uint64 `json:"facility_id"`
	EvidenceHash string `json:"evidence_hash"`
	Amount       uint64 `json:"amount"`
	Timestamp    uint64 `json:"timestamp"`
	Metadata     string `json:"metadata"`
}

type updateMetadataRequest struct {
	Metadata string `json:"metadata"`
}
