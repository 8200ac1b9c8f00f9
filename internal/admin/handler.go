package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"securevault/internal/audit"
	"securevault/internal/docsession"
	"securevault/internal/platform/middleware"
	"securevault/internal/transport/shared"
	"securevault/internal/verification/models"
	"securevault/internal/verification/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Reviewer,Sessions

// Reviewer is the gate surface the admin endpoints need.
type Reviewer interface {
	ListQueue(ctx context.Context, filter store.Filter) ([]QueueItem, error)
	GetDetail(ctx context.Context, requestID id.VerificationID) (*Detail, error)
	SubmitReview(ctx context.Context, requestID id.VerificationID, review Review) (*ReviewResult, error)
	AuditTrail(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Sessions is the document access surface.
type Sessions interface {
	Open(ctx context.Context, documentID id.DocumentID) (*docsession.Session, error)
	View(ctx context.Context, sessionID id.SessionID) ([]byte, *models.Document, error)
	DenyDownload(ctx context.Context, sessionID id.SessionID) error
	Close(ctx context.Context, sessionID id.SessionID) (*docsession.Session, error)
}

// Handler serves the admin routes behind the JWT middleware.
type Handler struct {
	gate      Reviewer
	sessions  Sessions
	logger    *slog.Logger
	validator middleware.AdminValidator
}

func NewHandler(gate Reviewer, sessions Sessions, validator middleware.AdminValidator, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, sessions: sessions, validator: validator, logger: logger}
}

// Register mounts the admin routes.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Recovery(h.logger))
	adminRouter.Use(middleware.RequestID)
	adminRouter.Use(middleware.Logger(h.logger))
	adminRouter.Use(middleware.Timeout(30 * time.Second))
	adminRouter.Use(middleware.RequireAdmin(h.validator, h.logger))
	adminRouter.Get("/verifications", h.handleListQueue)
	adminRouter.Get("/verifications/{id}", h.handleGetDetail)
	adminRouter.Post("/verifications/{id}/review", h.handleSubmitReview)
	adminRouter.Get("/audit", h.handleAuditTrail)
	adminRouter.Post("/documents/{id}/sessions", h.handleOpenSession)
	adminRouter.Get("/documents/sessions/{id}", h.handleViewSession)
	adminRouter.Get("/documents/sessions/{id}/download", h.handleDownload)
	adminRouter.Delete("/documents/sessions/{id}", h.handleCloseSession)

	r.Mount("/admin", adminRouter)
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.Filter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.Status(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		filter.Limit = limit
	}
	items, err := h.gate.ListQueue(ctx, filter)
	if err != nil {
		h.logError(ctx, "queue listing failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleGetDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}
	detail, err := h.gate.GetDetail(ctx, requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}
	var review Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.gate.SubmitReview(ctx, requestID, review)
	if err != nil {
		h.logError(ctx, "review failed", err)
		shared.WriteError(w, err)
		return
	}
	body := map[string]any{
		"request": result.Request,
		"applied": result.Applied,
	}
	// A fresh re-upload token travels once, in this response, for
	// out-of-band delivery to the nominee.
	if result.Token != "" {
		body["reupload_token"] = result.Token
	}
	shared.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := audit.Filter{
		TargetType: r.URL.Query().Get("target_type"),
		TargetID:   r.URL.Query().Get("target_id"),
		Limit:      200,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		filter.Limit = limit
	}
	entries, err := h.gate.AuditTrail(ctx, filter)
	if err != nil {
		h.logError(ctx, "audit query failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	session, err := h.sessions.Open(ctx, documentID)
	if err != nil {
		h.logError(ctx, "session open failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, session)
}

// handleViewSession streams the document inline. This is the only route
// that serves evidence bytes, and it forbids caching so nothing outlives
// the session.
func (h *Handler) handleViewSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}
	data, doc, err := h.sessions.View(ctx, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}
	shared.WriteError(w, h.sessions.DenyDownload(ctx, sessionID))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}
	session, err := h.sessions.Close(ctx, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeSecurity:
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
			"severity", "security",
		)
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
}
