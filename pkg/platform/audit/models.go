package audit

import (
	"context"
	"time"

	id "carbonledger/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: anything
	// that changes what the registry attests to (verifications, admin and
	// oracle changes). These require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key registry actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the caller identity that performed the action.
	Actor id.Identity
	// Action is one of the Event* constants below.
	Action string
	// FacilityID and EventID locate the touched records when applicable.
	FacilityID id.FacilityID
	EventID    id.EventID
	// Amount carries the CO2 quantity for capture registrations and
	// verifications, zero otherwise.
	Amount uint64
	// Subject holds a secondary identity for access-control actions
	// (new admin, granted or revoked oracle).
	Subject id.Identity
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
}

type AuditEvent string

const (
	// Identity & access events
	EventAdminTransferred AuditEvent = "admin_transferred"
	EventRegistryPaused   AuditEvent = "registry_paused"
	EventRegistryUnpaused AuditEvent = "registry_unpaused"
	EventOracleGranted    AuditEvent = "oracle_granted"
	EventOracleRevoked    AuditEvent = "oracle_revoked"

	// Facility directory events
	EventFacilityRegistered    AuditEvent = "facility_registered"
	EventFacilityStatusUpdated AuditEvent = "facility_status_updated"

	// Capture ledger events
	EventCaptureRegistered      AuditEvent = "capture_registered"
	EventCaptureVerified        AuditEvent = "capture_verified"
	EventCaptureMetadataUpdated AuditEvent = "capture_metadata_updated"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventAdminTransferred: CategoryCompliance,
	EventRegistryPaused:   CategoryCompliance,
	EventRegistryUnpaused: CategoryCompliance,
	EventOracleGranted:    CategoryCompliance,
	EventOracleRevoked:    CategoryCompliance,
	EventCaptureVerified:  CategoryCompliance,

	EventFacilityRegistered:     CategoryOperations,
	EventFacilityStatusUpdated:  CategoryOperations,
	EventCaptureRegistered:      CategoryOperations,
	EventCaptureMetadataUpdated: CategoryOperations,
}

// Category returns the category for an audit event, defaulting to operations
// for unknown actions.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actor id.Identity) ([]Event, error)
}
