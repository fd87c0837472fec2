// Package service exposes the capture registry operations with the ambient
// concerns the state aggregate deliberately stays free of: audit emission,
// metrics, tracing, snapshot caching, and the host-supplied block height.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"carbonledger/internal/registry/cache"
	"carbonledger/internal/registry/metrics"
	"carbonledger/internal/registry/models"
	"carbonledger/internal/registry/state"
	id "carbonledger/pkg/domain"
	dErrors "carbonledger/pkg/domain-errors"
	audit "carbonledger/pkg/platform/audit"
	"carbonledger/pkg/platform/sentinel"
	"carbonledger/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/service-mocks.go -package=mocks AuditPublisher,HeightSource

// AuditPublisher emits audit events for registry mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// HeightSource supplies the monotonically non-decreasing ledger height
// recorded on facility registration. The registry never reads a clock of its
// own.
type HeightSource interface {
	Current() id.BlockHeight
}

// UnixHeightSource derives heights from the host wall clock.
type UnixHeightSource struct{}

func (UnixHeightSource) Current() id.BlockHeight {
	return id.BlockHeight(time.Now().Unix())
}

// Service orchestrates the capture registry.
type Service struct {
	registry *state.Registry
	heights  HeightSource

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	snapshots      *cache.SnapshotCache
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSnapshotCache enables the Redis facility snapshot cache on the read
// surface.
func WithSnapshotCache(c *cache.SnapshotCache) Option {
	return func(s *Service) {
		s.snapshots = c
	}
}

// WithHeightSource overrides the default wall-clock height source.
func WithHeightSource(heights HeightSource) Option {
	return func(s *Service) {
		s.heights = heights
	}
}

// New constructs a Service around an existing state aggregate.
func New(registry *state.Registry, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry state is required")
	}
	s := &Service{
		registry: registry,
		heights:  UnixHeightSource{},
		tracer:   otel.Tracer("carbonledger/internal/registry/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// -----------------------------------------------------------------------------
// Identity & access
// -----------------------------------------------------------------------------

func (s *Service) TransferAdmin(ctx context.Context, caller, newAdmin id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.TransferAdmin")
	defer span.End()

	if err := s.registry.TransferAdmin(caller, newAdmin); err != nil {
		return s.fail(err)
	}
	s.logAudit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(audit.EventAdminTransferred),
		Subject: newAdmin,
	})
	return nil
}

func (s *Service) Pause(ctx context.Context, caller id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.Pause")
	defer span.End()

	if err := s.registry.Pause(caller); err != nil {
		return s.fail(err)
	}
	s.logAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventRegistryPaused),
	})
	return nil
}

func (s *Service) Unpause(ctx context.Context, caller id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.Unpause")
	defer span.End()

	if err := s.registry.Unpause(caller); err != nil {
		return s.fail(err)
	}
	s.logAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventRegistryUnpaused),
	})
	return nil
}

func (s *Service) GrantOracle(ctx context.Context, caller, oracle id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.GrantOracle")
	defer span.End()

	if err := s.registry.GrantOracle(caller, oracle); err != nil {
		return s.fail(err)
	}
	s.logAudit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(audit.EventOracleGranted),
		Subject: oracle,
	})
	return nil
}

func (s *Service) RevokeOracle(ctx context.Context, caller, oracle id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.RevokeOracle")
	defer span.End()

	if err := s.registry.RevokeOracle(caller, oracle); err != nil {
		return s.fail(err)
	}
	s.logAudit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(audit.EventOracleRevoked),
		Subject: oracle,
	})
	return nil
}

// -----------------------------------------------------------------------------
// Facility directory
// -----------------------------------------------------------------------------

func (s *Service) RegisterFacility(ctx context.Context, caller id.Identity, name, location, description string) (id.FacilityID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RegisterFacility")
	defer span.End()

	facilityID, err := s.registry.RegisterFacility(caller, name, location, description, s.heights.Current())
	if err != nil {
		return 0, s.fail(err)
	}

	if s.metrics != nil {
		s.metrics.FacilitiesRegistered.Inc()
	}
	s.logAudit(ctx, audit.Event{
		Actor:      caller,
		Action:     string(audit.EventFacilityRegistered),
		FacilityID: facilityID,
	})
	return facilityID, nil
}

func (s *Service) UpdateFacilityStatus(ctx context.Context, caller id.Identity, facilityID id.FacilityID, active bool) error {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateFacilityStatus")
	defer span.End()

	if err := s.registry.UpdateFacilityStatus(caller, facilityID, active); err != nil {
		return s.fail(err)
	}

	s.invalidateSnapshot(ctx, facilityID)
	s.logAudit(ctx, audit.Event{
		Actor:      caller,
		Action:     string(audit.EventFacilityStatusUpdated),
		FacilityID: facilityID,
	})
	return nil
}

// -----------------------------------------------------------------------------
// Capture ledger
// -----------------------------------------------------------------------------

func (s *Service) RegisterCapture(ctx context.Context, caller id.Identity, facilityID id.FacilityID, evidenceHash []byte, amount, timestamp uint64, metadata string) (id.EventID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RegisterCapture")
	defer span.End()

	eventID, err := s.registry.RegisterCapture(caller, facilityID, evidenceHash, amount, timestamp, metadata)
	if err != nil {
		return 0, s.fail(err)
	}

	if s.metrics != nil {
		s.metrics.CapturesRegistered.Inc()
	}
	s.invalidateSnapshot(ctx, facilityID)
	s.logAudit(ctx, audit.Event{
		Actor:      caller,
		Action:     string(audit.EventCaptureRegistered),
		FacilityID: facilityID,
		EventID:    eventID,
		Amount:     amount,
	})
	return eventID, nil
}

func (s *Service) VerifyCapture(ctx context.Context, caller id.Identity, eventID id.EventID) error {
	ctx, span := s.tracer.Start(ctx, "registry.VerifyCapture")
	defer span.End()

	if err := s.registry.VerifyCapture(caller, eventID); err != nil {
		return s.fail(err)
	}

	event, ok := s.registry.CaptureEvent(eventID)
	if !ok {
		// Events are never deleted; this cannot happen after a successful
		// verification.
		return dErrors.Newf(dErrors.CodeInternal, "event %d vanished after verification", eventID)
	}

	if s.metrics != nil {
		s.metrics.CapturesVerified.Inc()
		s.metrics.VerifiedAmount.Add(float64(event.Amount))
	}
	s.invalidateSnapshot(ctx, event.FacilityID)
	s.logAudit(ctx, audit.Event{
		Actor:      caller,
		Action:     string(audit.EventCaptureVerified),
		FacilityID: event.FacilityID,
		EventID:    eventID,
		Amount:     event.Amount,
	})
	return nil
}

func (s *Service) UpdateEventMetadata(ctx context.Context, caller id.Identity, eventID id.EventID, newMetadata string) error {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateEventMetadata")
	defer span.End()

	if err := s.registry.UpdateEventMetadata(caller, eventID, newMetadata); err != nil {
		return s.fail(err)
	}

	event, _ := s.registry.CaptureEvent(eventID)
	s.logAudit(ctx, audit.Event{
		Actor:      caller,
		Action:     string(audit.EventCaptureMetadataUpdated),
		FacilityID: event.FacilityID,
		EventID:    eventID,
	})
	return nil
}

// -----------------------------------------------------------------------------
// Read surface
// -----------------------------------------------------------------------------

func (s *Service) Admin(_ context.Context) id.Identity {
	return s.registry.Admin()
}

func (s *Service) IsPaused(_ context.Context) bool {
	return s.registry.IsPaused()
}

func (s *Service) IsOracleAuthorized(_ context.Context, identity id.Identity) bool {
	return s.registry.IsOracleAuthorized(identity)
}

func (s *Service) GlobalTotal(_ context.Context) uint64 {
	return s.registry.GlobalTotal()
}

func (s *Service) EventCount(_ context.Context) uint64 {
	return s.registry.EventCount()
}

func (s *Service) Facility(_ context.Context, facilityID id.FacilityID) (models.Facility, bool) {
	return s.registry.Facility(facilityID)
}

func (s *Service) FacilityIDs(_ context.Context) []id.FacilityID {
	return s.registry.FacilityIDs()
}

func (s *Service) CaptureEvent(_ context.Context, eventID id.EventID) (models.CaptureEvent, bool) {
	return s.registry.CaptureEvent(eventID)
}

func (s *Service) FacilityEventIndex(_ context.Context, facilityID id.FacilityID) []id.EventID {
	return s.registry.FacilityEventIndex(facilityID)
}

func (s *Service) FacilityTotal(_ context.Context, facilityID id.FacilityID) uint64 {
	return s.registry.FacilityTotal(facilityID)
}

// FacilitySnapshot serves the combined facility read model, consulting the
// Redis cache when configured. Absent facilities report ok=false.
func (s *Service) FacilitySnapshot(ctx context.Context, facilityID id.FacilityID) (cache.FacilitySnapshot, bool) {
	if s.snapshots != nil {
		if cached, err := s.snapshots.Get(ctx, facilityID); err == nil {
			return *cached, true
		} else if !errors.Is(err, sentinel.ErrNotFound) && s.logger != nil {
			s.logger.WarnContext(ctx, "snapshot cache read failed", "facility_id", facilityID, "error", err)
		}
	}

	facility, ok := s.registry.Facility(facilityID)
	if !ok {
		return cache.FacilitySnapshot{}, false
	}
	snapshot := cache.FacilitySnapshot{
		Facility:      facility,
		VerifiedTotal: s.registry.FacilityTotal(facilityID),
		EventCount:    len(s.registry.FacilityEventIndex(facilityID)),
	}

	if s.snapshots != nil {
		if err := s.snapshots.Put(ctx, &snapshot); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "snapshot cache write failed", "facility_id", facilityID, "error", err)
		}
	}
	return snapshot, true
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// fail counts the error by code and returns it untouched. State errors are
// already coded; nothing is wrapped so callers can branch on the taxonomy.
func (s *Service) fail(err error) error {
	if s.metrics != nil {
		s.metrics.OperationErrors.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
	return err
}

// logAudit emits fail-open: the registry state machine, not the audit trail,
// is the system of record, so a sink outage must not block mutations.
func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func (s *Service) invalidateSnapshot(ctx context.Context, facilityID id.FacilityID) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Invalidate(ctx, facilityID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot invalidation failed", "facility_id", facilityID, "error", err)
	}
}
