// Package handler exposes the capture registry over HTTP.
//
// Reads are public; every mutation requires a bearer token whose subject is
// the caller identity. Path and body validation happens here, domain
// validation happens in the registry itself.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carbonledger/internal/platform/middleware"
	"carbonledger/internal/registry/cache"
	"carbonledger/internal/registry/models"
	id "carbonledger/pkg/domain"
	dErrors "carbonledger/pkg/domain-errors"
	"carbonledger/pkg/platform/httputil"
	"carbonledger/pkg/requestcontext"
)

// Service defines the registry operations the HTTP surface needs.
type Service interface {
	TransferAdmin(ctx context.Context, caller, newAdmin id.Identity) error
	Pause(ctx context.Context, caller id.Identity) error
	Unpause(ctx context.Context, caller id.Identity) error
	GrantOracle(ctx context.Context, caller, oracle id.Identity) error
	RevokeOracle(ctx context.Context, caller, oracle id.Identity) error

	RegisterFacility(ctx context.Context, caller id.Identity, name, location, description string) (id.FacilityID, error)
	UpdateFacilityStatus(ctx context.Context, caller id.Identity, facilityID id.FacilityID, active bool) error

	RegisterCapture(ctx context.Context, caller id.Identity, facilityID id.FacilityID, evidenceHash []byte, amount, timestamp uint64, metadata string) (id.EventID, error)
	VerifyCapture(ctx context.Context, caller id.Identity, eventID id.EventID) error
	UpdateEventMetadata(ctx context.Context, caller id.Identity, eventID id.EventID, newMetadata string) error

	Admin(ctx context.Context) id.Identity
	IsPaused(ctx context.Context) bool
	IsOracleAuthorized(ctx context.Context, identity id.Identity) bool
	GlobalTotal(ctx context.Context) uint64
	EventCount(ctx context.Context) uint64
	Facility(ctx context.Context, facilityID id.FacilityID) (models.Facility, bool)
	FacilityIDs(ctx context.Context) []id.FacilityID
	CaptureEvent(ctx context.Context, eventID id.EventID) (models.CaptureEvent, bool)
	FacilityEventIndex(ctx context.Context, facilityID id.FacilityID) []id.EventID
	FacilityTotal(ctx context.Context, facilityID id.FacilityID) uint64
	FacilitySnapshot(ctx context.Context, facilityID id.FacilityID) (cache.FacilitySnapshot, bool)
}

// Handler handles registry endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  Service
	validator middleware.TokenValidator
}

// New creates a registry Handler.
func New(registry Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		validator: validator,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry/admin", h.handleGetAdmin)
	r.Get("/registry/paused", h.handleGetPaused)
	r.Get("/registry/total", h.handleGetGlobalTotal)
	r.Get("/registry/events/count", h.handleGetEventCount)
	r.Get("/registry/oracles/{identity}", h.handleGetOracle)
	r.Get("/facilities", h.handleListFacilities)
	r.Get("/facilities/{facilityID}", h.handleGetFacility)
	r.Get("/facilities/{facilityID}/events", h.handleGetFacilityEvents)
	r.Get("/facilities/{facilityID}/total", h.handleGetFacilityTotal)
	r.Get("/facilities/{facilityID}/snapshot", h.handleGetFacilitySnapshot)
	r.Get("/events/{eventID}", h.handleGetEvent)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/admin/transfer", h.handleTransferAdmin)
		r.Post("/admin/pause", h.handlePause)
		r.Post("/admin/unpause", h.handleUnpause)
		r.Post("/admin/oracles", h.handleGrantOracle)
		r.Delete("/admin/oracles/{identity}", h.handleRevokeOracle)
		r.Post("/facilities", h.handleRegisterFacility)
		r.Patch("/facilities/{facilityID}/status", h.handleUpdateFacilityStatus)
		r.Post("/captures", h.handleRegisterCapture)
		r.Post("/captures/{eventID}/verify", h.handleVerifyCapture)
		r.Patch("/captures/{eventID}/metadata", h.handleUpdateMetadata)
	})
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (h *Handler) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"admin": h.registry.Admin(r.Context()).String()})
}

func (h *Handler) handleGetPaused(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"paused": h.registry.IsPaused(r.Context())})
}

func (h *Handler) handleGetGlobalTotal(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, totalResponse{Total: h.registry.GlobalTotal(r.Context())})
}

func (h *Handler) handleGetEventCount(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"count": h.registry.EventCount(r.Context())})
}

func (h *Handler) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{
		"authorized": h.registry.IsOracleAuthorized(r.Context(), identity),
	})
}

func (h *Handler) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.FacilityIDs(r.Context())
	facilityIDs := make([]uint64, len(ids))
	for i, facilityID := range ids {
		facilityIDs[i] = uint64(facilityID)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]uint64{"facility_ids": facilityIDs})
}

func (h *Handler) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.facilityIDParam(w, r)
	if !ok {
		return
	}
	facility, found := h.registry.Facility(r.Context(), facilityID)
	if !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d not found", facilityID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toFacilityResponse(facility))
}

func (h *Handler) handleGetFacilityEvents(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.facilityIDParam(w, r)
	if !ok {
		return
	}
	if _, found := h.registry.Facility(r.Context(), facilityID); !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d not found", facilityID))
		return
	}
	index := h.registry.FacilityEventIndex(r.Context(), facilityID)
	eventIDs := make([]uint64, len(index))
	for i, eventID := range index {
		eventIDs[i] = uint64(eventID)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]uint64{"event_ids": eventIDs})
}

func (h *Handler) handleGetFacilityTotal(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.facilityIDParam(w, r)
	if !ok {
		return
	}
	if _, found := h.registry.Facility(r.Context(), facilityID); !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d not found", facilityID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, totalResponse{Total: h.registry.FacilityTotal(r.Context(), facilityID)})
}

func (h *Handler) handleGetFacilitySnapshot(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.facilityIDParam(w, r)
	if !ok {
		return
	}
	snapshot, found := h.registry.FacilitySnapshot(r.Context(), facilityID)
	if !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeFacilityNotFound, "facility %d not found", facilityID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSnapshotResponse(snapshot))
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventIDParam(w, r)
	if !ok {
		return
	}
	event, found := h.registry.CaptureEvent(r.Context(), eventID)
	if !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeEventNotFound, "event %d not found", eventID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaptureEventResponse(event))
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

func (h *Handler) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)

	var req transferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	newAdmin, err := id.ParseIdentity(req.NewAdmin)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid new_admin identity"))
		return
	}

	if err := h.registry.TransferAdmin(ctx, caller, newAdmin); err != nil {
		h.logWriteFailure(ctx, "transfer admin", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.registry.Pause(ctx, requestcontext.Caller(ctx)); err != nil {
		h.logWriteFailure(ctx, "pause registry", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.registry.Unpause(ctx, requestcontext.Caller(ctx)); err != nil {
		h.logWriteFailure(ctx, "unpause registry", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGrantOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req grantOracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	oracle, err := id.ParseIdentity(req.Identity)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid oracle identity"))
		return
	}

	if err := h.registry.GrantOracle(ctx, requestcontext.Caller(ctx), oracle); err != nil {
		h.logWriteFailure(ctx, "grant oracle", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	oracle, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid oracle identity"))
		return
	}

	if err := h.registry.RevokeOracle(ctx, requestcontext.Caller(ctx), oracle); err != nil {
		h.logWriteFailure(ctx, "revoke oracle", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegisterFacility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerFacilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	facilityID, err := h.registry.RegisterFacility(ctx, requestcontext.Caller(ctx), req.Name, req.Location, req.Description)
	if err != nil {
		h.logWriteFailure(ctx, "register facility", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createdResponse{ID: uint64(facilityID)})
}

func (h *Handler) handleUpdateFacilityStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	facilityID, ok := h.facilityIDParam(w, r)
	if !ok {
		return
	}
	var req updateFacilityStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registry.UpdateFacilityStatus(ctx, requestcontext.Caller(ctx), facilityID, *req.Active); err != nil {
		h.logWriteFailure(ctx, "update facility status", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegisterCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	evidenceHash, err := hex.DecodeString(req.EvidenceHash)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidHash, "evidence_hash is not valid hex"))
		return
	}

	eventID, err := h.registry.RegisterCapture(ctx, requestcontext.Caller(ctx),
		id.FacilityID(req.FacilityID), evidenceHash, req.Amount, req.Timestamp, req.Metadata)
	if err != nil {
		h.logWriteFailure(ctx, "register capture", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createdResponse{ID: uint64(eventID)})
}

func (h *Handler) handleVerifyCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, ok := h.eventIDParam(w, r)
	if !ok {
		return
	}
	if err := h.registry.VerifyCapture(ctx, requestcontext.Caller(ctx), eventID); err != nil {
		h.logWriteFailure(ctx, "verify capture", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, ok := h.eventIDParam(w, r)
	if !ok {
		return
	}
	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registry.UpdateEventMetadata(ctx, requestcontext.Caller(ctx), eventID, req.Metadata); err != nil {
		h.logWriteFailure(ctx, "update event metadata", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (h *Handler) facilityIDParam(w http.ResponseWriter, r *http.Request) (id.FacilityID, bool) {
	facilityID, err := id.ParseFacilityID(chi.URLParam(r, "facilityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid facility id"))
		return 0, false
	}
	return facilityID, true
}

func (h *Handler) eventIDParam(w http.ResponseWriter, r *http.Request) (id.EventID, bool) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return 0, false
	}
	return eventID, true
}

func (h *Handler) logWriteFailure(ctx context.Context, operation string, err error) {
	h.logger.WarnContext(ctx, "registry write rejected",
		"operation", operation,
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
