package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

const maxBodySize = 1 << 20

// ComplianceService is the engine surface exposed over HTTP
type ComplianceService interface {
	GetConfig(ctx context.Context, tenantID uuid.UUID) (*compliance.Config, error)
	UpdateConfig(ctx context.Context, tenantID uuid.UUID, update compliance.ConfigUpdate) (*compliance.Config, error)
	CheckCompliance(ctx context.Context, tenantID, contactID uuid.UUID, action compliance.ActionType, actx compliance.ActionContext) (*compliance.DecisionResult, error)
	RecordSend(ctx context.Context, tenantID, contactID uuid.UUID) error
	GetContactViolations(ctx context.Context, tenantID, contactID uuid.UUID) ([]*compliance.Violation, error)
	GetJourneyViolations(ctx context.Context, tenantID uuid.UUID, journeyID string) ([]*compliance.Violation, error)
	OverrideViolation(ctx context.Context, tenantID, violationID uuid.UUID, userID, reason, notes string) (*compliance.Violation, error)
	ResolveViolation(ctx context.Context, tenantID, violationID uuid.UUID, notes string) (*compliance.Violation, error)
}

// StreamRegistrar accepts upgraded websocket subscribers
type StreamRegistrar interface {
	Register(conn *websocket.Conn, tenantID uuid.UUID) string
}

// CheckRequest asks whether an action may be taken against a contact
type CheckRequest struct {
	ContactID  uuid.UUID                `json:"contact_id" validate:"required"`
	ActionType compliance.ActionType    `json:"action_type" validate:"required"`
	Context    compliance.ActionContext `json:"context"`
}

// RecordSendRequest reports a message that was actually sent
type RecordSendRequest struct {
	ContactID uuid.UUID `json:"contact_id" validate:"required"`
}

// OverrideRequest grants a manual exception for a violation
type OverrideRequest struct {
	Reason string `json:"reason" validate:"required,max=100"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// ResolveRequest closes a violation
type ResolveRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// Handler serves the compliance API
type Handler struct {
	service  ComplianceService
	stream   StreamRegistrar
	logger   *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewHandler creates the API handler. stream may be nil to disable the
// violation stream.
func NewHandler(service ComplianceService, stream StreamRegistrar, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		stream:   stream,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	cfg, err := h.service.GetConfig(r.Context(), tenantID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cfg)
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	var update compliance.ConfigUpdate
	if !h.decode(w, r, &update) {
		return
	}

	cfg, err := h.service.UpdateConfig(r.Context(), tenantID, update)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cfg)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	var req CheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CheckCompliance(r.Context(), tenantID, req.ContactID, req.ActionType, req.Context)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *Handler) handleRecordSend(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	var req RecordSendRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.RecordSend(r.Context(), tenantID, req.ContactID); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleContactViolations(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	contactID, ok := h.pathUUID(w, r, "contactID")
	if !ok {
		return
	}

	violations, err := h.service.GetContactViolations(r.Context(), tenantID, contactID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, violations)
}

func (h *Handler) handleJourneyViolations(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	violations, err := h.service.GetJourneyViolations(r.Context(), tenantID, r.PathValue("journeyID"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, violations)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	violationID, ok := h.pathUUID(w, r, "violationID")
	if !ok {
		return
	}

	var req OverrideRequest
	if !h.decode(w, r, &req) {
		return
	}

	operator := operatorFromContext(r.Context())
	if operator == "" {
		writeError(h.logger, w, r, errors.NewUnauthorizedError("token has no subject"))
		return
	}

	violation, err := h.service.OverrideViolation(r.Context(), tenantID, violationID, operator, req.Reason, req.Notes)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, violation)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	violationID, ok := h.pathUUID(w, r, "violationID")
	if !ok {
		return
	}

	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	violation, err := h.service.ResolveViolation(r.Context(), tenantID, violationID, req.Notes)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, violation)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	tenantID := mustTenant(r)

	if h.stream == nil {
		writeErrorResponse(w, r, http.StatusNotImplemented, &ErrorResponse{
			Code:    "STREAM_DISABLED",
			Message: "Violation streaming is not enabled",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.stream.Register(conn, tenantID)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, &ErrorResponse{
			Code:    "REQUEST_TOO_LARGE",
			Message: "Request body too large",
		})
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "INVALID_JSON",
			Message: "Request body is not valid JSON",
		})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, validationErrorResponse(err))
		return false
	}
	return true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "INVALID_ID",
			Message: name + " must be a UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// mustTenant returns the authenticated tenant; routes using it are always
// behind the auth middleware.
func mustTenant(r *http.Request) uuid.UUID {
	id, _ := tenantFromContext(r.Context())
	return id
}
