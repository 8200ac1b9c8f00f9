package succession

// =============================================================================
// Owner Handler Test Suite
// =============================================================================
// Justification for unit tests: the owner surface sits behind bearer auth
// and is the only caller of the nominee-removal cascade. Tests pin the auth
// gate, owner scoping from the token subject, and the JSON shapes.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"securevault/internal/audit"
	auditmem "securevault/internal/audit/store/memory"
	"securevault/internal/platform/middleware"
	"securevault/internal/succession/models"
	succstore "securevault/internal/succession/store"
	id "securevault/pkg/domain"
	txcontext "securevault/pkg/platform/tx"
	"securevault/pkg/testutil"
)

const ownerToken = "valid-owner-token"

// staticUserValidator stands in for the JWT validator so handler tests do
// not mint real tokens.
type staticUserValidator struct {
	userID string
}

func (v staticUserValidator) ValidateUserToken(tokenString string) (*middleware.UserClaims, error) {
	if tokenString != ownerToken {
		return nil, fmt.Errorf("unknown token")
	}
	return &middleware.UserClaims{UserID: v.userID}, nil
}

// stubActivity records the activity ping without a full monitor.
type stubActivity struct {
	calls     []id.UserID
	cancelled []id.UserID
	user      *models.User
}

func (a *stubActivity) RecordActivity(_ context.Context, userID id.UserID) (*models.User, error) {
	a.calls = append(a.calls, userID)
	return a.user, nil
}

func (a *stubActivity) CancelClaims(_ context.Context, userID id.UserID) (int, error) {
	a.cancelled = append(a.cancelled, userID)
	return 2, nil
}

type OwnerHandlerSuite struct {
	suite.Suite
	users    *succstore.InMemoryUsers
	nominees *succstore.InMemoryNominees
	assets   *succstore.InMemoryAssets
	activity *stubActivity
	router   chi.Router

	now     time.Time
	ownerID id.UserID
	assetID id.AssetID
}

func TestOwnerHandlerSuite(t *testing.T) {
	suite.Run(t, new(OwnerHandlerSuite))
}

func (s *OwnerHandlerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	s.users = succstore.NewInMemoryUsers()
	s.nominees = succstore.NewInMemoryNominees()
	s.assets = succstore.NewInMemoryAssets()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.ownerID = id.NewUserID()
	owner, err := models.NewUser(s.ownerID, "priya@example.com", "Priya Shah", 90, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), owner))
	s.activity = &stubActivity{user: owner}

	s.assetID = id.NewAssetID()
	asset := &models.Asset{
		ID:           s.assetID,
		OwnerID:      s.ownerID,
		Type:         "document",
		EncryptedRef: "vault/blob-1",
		Status:       models.AssetStatusActive,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
	s.Require().NoError(s.assets.Create(context.Background(), asset))

	svc := NewService(s.users, s.nominees, s.assets, noClaims{}, audit.NewRecorder(auditmem.NewInMemory()), txcontext.Passthrough{}, logger)
	s.router = chi.NewRouter()
	NewHandler(svc, s.activity, staticUserValidator{userID: s.ownerID.String()}, logger).Register(s.router)
}

// noClaims is the cascade collaborator for handler tests; the engine
// integration lives in the service suite.
type noClaims struct{}

func (noClaims) CloseForNominee(context.Context, id.NomineeID, string) (int, error) {
	return 0, nil
}

func (s *OwnerHandlerSuite) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	return req
}

func (s *OwnerHandlerSuite) TestAuth() {
	s.Run("missing bearer token is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/owner/nominees"))

		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("invalid bearer token is rejected", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/owner/nominees")
		req.Header.Set("Authorization", "Bearer forged")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *OwnerHandlerSuite) TestRecordActivity() {
	req := s.authed(testutil.NewRequest(s.T(), http.MethodPost, "/owner/activity"))
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Require().Len(s.activity.calls, 1)
	s.Equal(s.ownerID, s.activity.calls[0])

	got := testutil.UnmarshalResponse[models.User](s.T(), rr)
	s.Equal(s.ownerID, got.ID)

	s.Empty(s.activity.cancelled, "login alone never cancels claims")
}

func (s *OwnerHandlerSuite) TestCancelClaims() {
	req := s.authed(testutil.NewRequest(s.T(), http.MethodPost, "/owner/claims/cancel"))
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Require().Len(s.activity.cancelled, 1)
	s.Equal(s.ownerID, s.activity.cancelled[0])
	s.Empty(s.activity.calls, "cancellation does not double as a login ping")
}

func (s *OwnerHandlerSuite) TestRegisterNominee() {
	s.Run("creates the nominee and links the asset", func() {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/owner/nominees", map[string]any{
			"name":         "Asha Rao",
			"email":        "asha@example.com",
			"relationship": "sister",
			"asset_ids":    []string{s.assetID.String()},
		}))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[models.Nominee](s.T(), rr)
		s.Equal(s.ownerID, got.OwnerID)
		s.Equal("Asha Rao", got.Name)

		asset, err := s.assets.FindByID(context.Background(), s.assetID)
		s.Require().NoError(err)
		s.Contains(asset.NomineeIDs, got.ID)
	})

	s.Run("missing name fails validation", func() {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/owner/nominees", map[string]any{
			"email":        "asha@example.com",
			"relationship": "sister",
		}))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrorCode(s.T(), rr, "validation")
	})

	s.Run("malformed asset id is a bad request", func() {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/owner/nominees", map[string]any{
			"name":         "Asha Rao",
			"email":        "asha@example.com",
			"relationship": "sister",
			"asset_ids":    []string{"not-a-uuid"},
		}))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrorCode(s.T(), rr, "bad_request")
	})
}

func (s *OwnerHandlerSuite) TestDeleteNominee() {
	nominee, err := models.NewNominee(id.NewNomineeID(), s.ownerID, "Asha Rao", "asha@example.com", "", "sister", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.nominees.Create(context.Background(), nominee))

	s.Run("removes the nominee", func() {
		req := s.authed(testutil.NewRequest(s.T(), http.MethodDelete, "/owner/nominees/"+nominee.ID.String()))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		_, err := s.nominees.FindByID(context.Background(), nominee.ID)
		s.Error(err)
	})

	s.Run("malformed id is a bad request", func() {
		req := s.authed(testutil.NewRequest(s.T(), http.MethodDelete, "/owner/nominees/not-a-uuid"))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("unknown nominee is not found", func() {
		req := s.authed(testutil.NewRequest(s.T(), http.MethodDelete, "/owner/nominees/"+id.NewNomineeID().String()))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		testutil.AssertErrorCode(s.T(), rr, "not_found")
	})
}
