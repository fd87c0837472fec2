// Package state holds the registry's single consistent state aggregate.
//
// All maps and counters live behind one RWMutex so every mutating operation
// applies atomically and in total order relative to every other mutation,
// mirroring a ledger's one-transaction-at-a-time semantics. Operations
// validate every precondition before touching state: on failure the aggregate
// is guaranteed unchanged and a coded domain error is returned.
package state

import (
	"sync"

	"carbonledger/internal/registry/models"
	id "carbonledger/pkg/domain"
	dErrors "carbonledger/pkg/domain-errors"
)

// Registry is the state aggregate for the capture registry: identity &
// access, the facility directory, the capture ledger, and the verified
// aggregate totals.
type Registry struct {
	mu sync.RWMutex

	// Identity & access
	admin   id.Identity
	paused  bool
	oracles map[id.Identity]bool

	// Facility directory
	facilities     map[id.FacilityID]*models.Facility
	nextFacilityID id.FacilityID

	// Capture ledger
	events      map[id.EventID]*models.CaptureEvent
	nextEventID id.EventID
	eventCount  uint64

	// facilityIndex is append-only; insertion order is registration order.
	facilityIndex map[id.FacilityID][]id.EventID

	// evidenceIndex rejects resubmission of the same sensor reading.
	evidenceIndex map[models.EvidenceHash]id.EventID

	// globalVerifiedTotal is the stored running counter bumped exactly once
	// per verification. Monotonically non-decreasing.
	globalVerifiedTotal uint64

	indexCap int
}

type Option func(*Registry)

// WithEventIndexCap overrides the per-facility event index cap. Tests use a
// small cap to exercise the capacity path.
func WithEventIndexCap(n int) Option {
	return func(r *Registry) {
		r.indexCap = n
	}
}

// New constructs a registry with the given genesis admin.
func New(admin id.Identity, opts ...Option) *Registry {
	r := &Registry{
		admin:         admin,
		oracles:       make(map[id.Identity]bool),
		facilities:    make(map[id.FacilityID]*models.Facility),
		events:        make(map[id.EventID]*models.CaptureEvent),
		facilityIndex: make(map[id.FacilityID][]id.EventID),
		evidenceIndex: make(map[models.EvidenceHash]id.EventID),
		indexCap:      models.MaxFacilityEvents,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// -----------------------------------------------------------------------------
// Identity & access
// -----------------------------------------------------------------------------

func (r *Registry) requireAdmin(caller id.Identity) error {
	if caller != r.admin {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry admin")
	}
	return nil
}

func (r *Registry) requireUnpaused() error {
	if r.paused {
		return dErrors.New(dErrors.CodePaused, "registry is paused")
	}
	return nil
}

// TransferAdmin hands the admin role to newAdmin in a single atomic write.
func (r *Registry) TransferAdmin(caller, newAdmin id.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.admin = newAdmin
	return nil
}

// Pause flips the global circuit breaker. Pausing an already-paused registry
// overwrites the flag and still succeeds.
func (r *Registry) Pause(caller id.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.paused = true
	return nil
}

// Unpause clears the circuit breaker.
func (r *Registry) Unpause(caller id.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.paused = false
	return nil
}

// GrantOracle marks an identity as trusted to verify capture events.
func (r *Registry) GrantOracle(caller, oracle id.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.oracles[oracle] = true
	return nil
}

// RevokeOracle removes an identity from the oracle set.
func (r *Registry) RevokeOracle(caller, oracle id.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	delete(r.oracles, oracle)
	return nil
}

// -----------------------------------------------------------------------------
// Facility directory
// -----------------------------------------------------------------------------

// RegisterFacility stores a new facility owned by the caller and returns its
// sequential ID. The height is the host-supplied ledger height at
// registration time.
func (r *Registry) RegisterFacility(caller id.Identity, name, location, description string, height id.BlockHeight) (id.FacilityID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireUnpaused(); err != nil {
		return 0, err
	}
	if err := models.ValidateDescription(description); err != nil {
		return 0, err
	}

	facilityID := r.nextFacilityID + 1
	// Structurally impossible under sequential allocation; retained as a
	// defensive check.
	if _, exists := r.facilities[facilityID]; exists {
		return 0, dErrors.Newf(dErrors.CodeFacilityExists, "facility %d already exists", facilityID)
	}

	r.nextFacilityID = facilityID
	r.facilities[facilityID] = &models.Facility{
		ID:           facilityID,
		Owner:        caller,
		Name:         name,
		Location:     location,
		Description:  description,
		RegisteredAt: height,
		Active:       true,
	}
	r.facilityIndex[facilityID] = nil
	return facilityID, nil
}

// UpdateFacilityStatus overwrites the facility's active flag. Only blocks
// future capture registrations; existing events are untouched.
func (r *Registry) UpdateFacilityStatus(caller id.Identity, facilityID id.FacilityID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireUnpaused(); err != nil {
		return err
	}
	facility, ok := r.facilities[facilityID]
	if !ok {
		return dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d does not exist", facilityID)
	}
	if !facility.IsOwnedBy(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not own the facility")
	}
	facility.Active = active
	return nil
}

// -----------------------------------------------------------------------------
// Capture ledger
// -----------------------------------------------------------------------------

// RegisterCapture records an unverified capture event against an active
// facility. Validation is fail-fast in a fixed order; the first failing check
// wins and no state is touched.
func (r *Registry) RegisterCapture(caller id.Identity, facilityID id.FacilityID, evidenceHash []byte, amount, timestamp uint64, metadata string) (id.EventID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireUnpaused(); err != nil {
		return 0, err
	}
	facility, ok := r.facilities[facilityID]
	if !ok || !facility.Active {
		return 0, dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d does not exist or is inactive", facilityID)
	}
	if !facility.IsOwnedBy(caller) && !r.oracles[caller] {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller is neither the facility owner nor an oracle")
	}
	hash, err := models.ParseEvidenceHash(evidenceHash)
	if err != nil {
		return 0, err
	}
	if existing, dup := r.evidenceIndex[hash]; dup {
		return 0, dErrors.Newf(dErrors.CodeDuplicateEvidence, "evidence hash already registered by event %d", existing)
	}
	if err := models.ValidateAmount(amount); err != nil {
		return 0, err
	}
	if err := models.ValidateTimestamp(timestamp); err != nil {
		return 0, err
	}
	if err := models.ValidateMetadata(metadata); err != nil {
		return 0, err
	}
	if len(r.facilityIndex[facilityID]) >= r.indexCap {
		return 0, dErrors.Newf(dErrors.CodeIndexCapacityExceeded, "facility %d event index is full", facilityID)
	}

	eventID := r.nextEventID + 1
	r.nextEventID = eventID
	r.events[eventID] = &models.CaptureEvent{
		ID:           eventID,
		FacilityID:   facilityID,
		EvidenceHash: hash,
		Amount:       amount,
		Timestamp:    timestamp,
		Metadata:     metadata,
	}
	r.facilityIndex[facilityID] = append(r.facilityIndex[facilityID], eventID)
	r.evidenceIndex[hash] = eventID
	r.eventCount++
	return eventID, nil
}

// VerifyCapture is the single transition that moves value from "recorded" to
// "trusted": it marks the event verified by the calling oracle and bumps the
// global verified total, together or not at all.
func (r *Registry) VerifyCapture(caller id.Identity, eventID id.EventID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireUnpaused(); err != nil {
		return err
	}
	event, ok := r.events[eventID]
	if !ok {
		return dErrors.Newf(dErrors.CodeEventNotFound, "event %d does not exist", eventID)
	}
	if err := event.CanVerify(); err != nil {
		return err
	}
	if !r.oracles[caller] {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized oracle")
	}

	event.ApplyVerification(caller)
	r.globalVerifiedTotal += event.Amount
	return nil
}

// UpdateEventMetadata overwrites an unverified event's metadata. Only the
// owner of the parent facility may update, and only before verification.
func (r *Registry) UpdateEventMetadata(caller id.Identity, eventID id.EventID, newMetadata string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireUnpaused(); err != nil {
		return err
	}
	event, ok := r.events[eventID]
	if !ok {
		return dErrors.Newf(dErrors.CodeEventNotFound, "event %d does not exist", eventID)
	}
	facility, ok := r.facilities[event.FacilityID]
	if !ok {
		return dErrors.Newf(dErrors.CodeEventNotFound, "facility %d for event %d does not exist", event.FacilityID, eventID)
	}
	if !facility.IsOwnedBy(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not own the parent facility")
	}
	if err := event.CanUpdateMetadata(newMetadata); err != nil {
		return err
	}
	event.ApplyMetadata(newMetadata)
	return nil
}

// -----------------------------------------------------------------------------
// Read surface. Reads are total functions over absent data and never require
// authorization.
// -----------------------------------------------------------------------------

func (r *Registry) Admin() id.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin
}

func (r *Registry) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

func (r *Registry) IsOracleAuthorized(identity id.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.oracles[identity]
}

// Facility returns a snapshot of the facility record.
func (r *Registry) Facility(facilityID id.FacilityID) (models.Facility, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	facility, ok := r.facilities[facilityID]
	if !ok {
		return models.Facility{}, false
	}
	return *facility, true
}

// FacilityIDs returns all known facility IDs in ascending order of issue.
func (r *Registry) FacilityIDs() []id.FacilityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]id.FacilityID, 0, len(r.facilities))
	for facilityID := id.FacilityID(1); facilityID <= r.nextFacilityID; facilityID++ {
		if _, ok := r.facilities[facilityID]; ok {
			ids = append(ids, facilityID)
		}
	}
	return ids
}

// CaptureEvent returns a snapshot of the event record.
func (r *Registry) CaptureEvent(eventID id.EventID) (models.CaptureEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[eventID]
	if !ok {
		return models.CaptureEvent{}, false
	}
	return *event, true
}

// FacilityEventIndex returns the facility's event IDs in registration order.
// Unknown facilities yield an empty index, not an error.
func (r *Registry) FacilityEventIndex(facilityID id.FacilityID) []id.EventID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]id.EventID{}, r.facilityIndex[facilityID]...)
}

// FacilityTotal folds the facility's event index, counting verified amounts
// only. Unknown facilities total zero.
func (r *Registry) FacilityTotal(facilityID id.FacilityID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, eventID := range r.facilityIndex[facilityID] {
		if event := r.events[eventID]; event != nil && event.Verified {
			total += event.Amount
		}
	}
	return total
}

// GlobalTotal returns the stored running counter maintained by VerifyCapture.
func (r *Registry) GlobalTotal() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.globalVerifiedTotal
}

// EventCount returns the number of capture events ever registered.
func (r *Registry) EventCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventCount
}
