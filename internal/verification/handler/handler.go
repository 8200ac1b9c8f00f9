// Package handler exposes the nominee-facing endpoints. Every route is
// keyed by the verification token; no other authentication exists on this
// surface, so handlers pass the raw token straight to the engine and let it
// decide.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"securevault/internal/platform/middleware"
	"securevault/internal/transport/shared"
	"securevault/internal/verification/models"
	"securevault/internal/verification/service"
	dErrors "securevault/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the engine surface the nominee endpoints need.
type Service interface {
	VerifyToken(ctx context.Context, value string) (*service.AccessView, error)
	ConfirmIdentity(ctx context.Context, value, fullName, relationship string, declarationAccepted bool) (*models.Request, error)
	UploadDocument(ctx context.Context, value, kind, fileName, contentType string, data []byte) (*models.Document, error)
	SubmitDocuments(ctx context.Context, value string, truthDeclared, legalDeclared bool) (*models.Request, error)
	Status(ctx context.Context, value string) (*service.StatusView, error)
}

// Handler serves the nominee routes.
type Handler struct {
	engine         Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(engine Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{engine: engine, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts the nominee routes.
func (h *Handler) Register(r chi.Router) {
	nomineeRouter := chi.NewRouter()
	nomineeRouter.Use(middleware.Recovery(h.logger))
	nomineeRouter.Use(middleware.RequestID)
	nomineeRouter.Use(middleware.Logger(h.logger))
	nomineeRouter.Use(middleware.Timeout(30 * time.Second))
	nomineeRouter.Get("/verify", h.handleVerify)
	nomineeRouter.Post("/identity", h.handleConfirmIdentity)
	nomineeRouter.Post("/documents", h.handleUploadDocument)
	nomineeRouter.Post("/documents/submit", h.handleSubmitDocuments)
	nomineeRouter.Get("/status", h.handleStatus)

	r.Mount("/nominee", nomineeRouter)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	value := r.URL.Query().Get("token")
	if value == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing token"))
		return
	}
	view, err := h.engine.VerifyToken(ctx, value)
	if err != nil {
		h.logger.WarnContext(ctx, "token rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}

type confirmIdentityRequest struct {
	Token            string `json:"token"`
	FullName         string `json:"full_name"`
	Relationship     string `json:"relationship"`
	LegalDeclaration bool   `json:"legal_declaration"`
}

func (h *Handler) handleConfirmIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req confirmIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Token == "" || req.FullName == "" || req.Relationship == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "token, full_name and relationship are required"))
		return
	}
	updated, err := h.engine.ConfirmIdentity(ctx, req.Token, req.FullName, req.Relationship, req.LegalDeclaration)
	if err != nil {
		h.logOutcome(ctx, "identity confirmation failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// One extra MiB of headroom for the multipart framing itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "upload too large or malformed"))
		return
	}
	value := r.FormValue("token")
	kind := r.FormValue("kind")
	if value == "" || kind == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "token and kind are required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read upload"))
		return
	}
	doc, err := h.engine.UploadDocument(ctx, value, kind, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.logOutcome(ctx, "document upload failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, doc)
}

type submitDocumentsRequest struct {
	Token            string `json:"token"`
	TruthDeclaration bool   `json:"truth_declaration"`
	LegalDeclaration bool   `json:"legal_declaration"`
}

func (h *Handler) handleSubmitDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req submitDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "token is required"))
		return
	}
	updated, err := h.engine.SubmitDocuments(ctx, req.Token, req.TruthDeclaration, req.LegalDeclaration)
	if err != nil {
		h.logOutcome(ctx, "document submission failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	value := r.URL.Query().Get("token")
	if value == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing token"))
		return
	}
	view, err := h.engine.Status(ctx, value)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) logOutcome(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeSecurity:
		h.logger.ErrorContext(ctx, msg, append(attrs, "severity", "security")...)
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
}
