package succession

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"securevault/internal/platform/middleware"
	"securevault/internal/succession/models"
	"securevault/internal/transport/shared"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/requestcontext"
)

// Activity is the inactivity-monitor surface the owner endpoints need.
type Activity interface {
	RecordActivity(ctx context.Context, userID id.UserID) (*models.User, error)
	CancelClaims(ctx context.Context, userID id.UserID) (int, error)
}

// Handler serves the vault-owner routes behind the user JWT middleware.
type Handler struct {
	svc       *Service
	activity  Activity
	logger    *slog.Logger
	validator middleware.UserValidator
}

func NewHandler(svc *Service, activity Activity, validator middleware.UserValidator, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, activity: activity, validator: validator, logger: logger}
}

// Register mounts the owner routes.
func (h *Handler) Register(r chi.Router) {
	ownerRouter := chi.NewRouter()
	ownerRouter.Use(middleware.Recovery(h.logger))
	ownerRouter.Use(middleware.RequestID)
	ownerRouter.Use(middleware.Logger(h.logger))
	ownerRouter.Use(middleware.Timeout(15 * time.Second))
	ownerRouter.Use(middleware.RequireUser(h.validator, h.logger))
	ownerRouter.Post("/activity", h.handleRecordActivity)
	ownerRouter.Post("/claims/cancel", h.handleCancelClaims)
	ownerRouter.Get("/nominees", h.handleListNominees)
	ownerRouter.Post("/nominees", h.handleRegisterNominee)
	ownerRouter.Delete("/nominees/{id}", h.handleDeleteNominee)

	r.Mount("/owner", ownerRouter)
}

func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(middleware.GetUserID(r.Context()))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid user identity"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	user, err := h.activity.RecordActivity(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "activity recording failed", "error", err, "user_id", userID)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleCancelClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	cancelled, err := h.activity.CancelClaims(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "claim cancellation failed", "error", err, "user_id", userID)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"claims_cancelled": cancelled})
}

func (h *Handler) handleListNominees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	nominees, err := h.svc.ListNominees(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"nominees": nominees})
}

type registerNomineeRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	Relationship string   `json:"relationship"`
	AssetIDs     []string `json:"asset_ids"`
}

func (h *Handler) handleRegisterNominee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var req registerNomineeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	assetIDs := make([]id.AssetID, 0, len(req.AssetIDs))
	for _, raw := range req.AssetIDs {
		assetID, err := id.ParseAssetID(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid asset id"))
			return
		}
		assetIDs = append(assetIDs, assetID)
	}
	nominee, err := models.NewNominee(id.NewNomineeID(), userID, req.Name, req.Email, req.Phone, req.Relationship, requestcontext.Now(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.RegisterNominee(ctx, nominee, assetIDs); err != nil {
		h.logger.WarnContext(ctx, "nominee registration failed", "error", err, "user_id", userID)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, nominee)
}

func (h *Handler) handleDeleteNominee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	nomineeID, err := id.ParseNomineeID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid nominee id"))
		return
	}
	closed, err := h.svc.DeleteNominee(ctx, userID, nomineeID)
	if err != nil {
		h.logger.WarnContext(ctx, "nominee deletion failed", "error", err, "user_id", userID, "nominee_id", nomineeID)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"claims_closed": closed})
}
