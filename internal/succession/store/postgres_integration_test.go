//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"securevault/internal/succession/models"
	"securevault/internal/succession/store"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
	"securevault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	users    *store.PostgresUsers
	nominees *store.PostgresNominees
	assets   *store.PostgresAssets
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.users = store.NewPostgresUsers(s.postgres.DB)
	s.nominees = store.NewPostgresNominees(s.postgres.DB)
	s.assets = store.NewPostgresAssets(s.postgres.DB)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"asset_nominees", "assets", "nominees", "users")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) createUser(email string) *models.User {
	user, err := models.NewUser(id.NewUserID(), email, "Priya Shah", 90, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), user))
	return user
}

func (s *PostgresStoreSuite) createNominee(ownerID id.UserID, name string) *models.Nominee {
	nominee, err := models.NewNominee(id.NewNomineeID(), ownerID, name,
		"nominee@example.com", "+44 20 7946 0000", "sibling", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.nominees.Create(context.Background(), nominee))
	return nominee
}

func (s *PostgresStoreSuite) TestUsers() {
	ctx := context.Background()

	s.Run("round trips the record", func() {
		user := s.createUser("priya@example.com")

		got, err := s.users.FindByID(ctx, user.ID)
		s.Require().NoError(err)
		s.Equal(user.Email, got.Email)
		s.Equal(90, got.InactivityThresholdDays)
		s.Equal(models.UserStatusActive, got.Status)
		s.True(got.LastActivityAt.Equal(s.now))
	})

	s.Run("duplicate email conflicts", func() {
		s.createUser("dup@example.com")
		user, err := models.NewUser(id.NewUserID(), "dup@example.com", "Other", 90, s.now)
		s.Require().NoError(err)
		s.ErrorIs(s.users.Create(ctx, user), sentinel.ErrConflict)
	})

	s.Run("list active excludes flagged users", func() {
		active := s.createUser("active@example.com")
		flagged := s.createUser("flagged@example.com")
		flagged.ApplyInactivityTriggered(s.now)
		s.Require().NoError(s.users.Update(ctx, flagged))

		got, err := s.users.ListActive(ctx)
		s.Require().NoError(err)
		ids := make([]id.UserID, 0, len(got))
		for _, u := range got {
			ids = append(ids, u.ID)
		}
		s.Contains(ids, active.ID)
		s.NotContains(ids, flagged.ID)
	})

	s.Run("update persists activity", func() {
		user := s.createUser("touch@example.com")
		user.RecordActivity(s.now.Add(time.Hour))
		s.Require().NoError(s.users.Update(ctx, user))

		got, err := s.users.FindByID(ctx, user.ID)
		s.Require().NoError(err)
		s.True(got.LastActivityAt.Equal(s.now.Add(time.Hour)))
	})
}

func (s *PostgresStoreSuite) TestNominees() {
	ctx := context.Background()
	owner := s.createUser("owner@example.com")

	s.Run("round trips and lists by owner", func() {
		first := s.createNominee(owner.ID, "Asha Rao")
		second := s.createNominee(owner.ID, "Vikram Rao")

		got, err := s.nominees.FindByID(ctx, first.ID)
		s.Require().NoError(err)
		s.Equal("Asha Rao", got.Name)
		s.False(got.IdentityConfirmed)

		listed, err := s.nominees.ListByOwner(ctx, owner.ID)
		s.Require().NoError(err)
		s.Len(listed, 2)
		_ = second
	})

	s.Run("update persists identity confirmation", func() {
		nominee := s.createNominee(owner.ID, "Meera Rao")
		nominee.IdentityConfirmed = true
		s.Require().NoError(s.nominees.Update(ctx, nominee))

		got, err := s.nominees.FindByID(ctx, nominee.ID)
		s.Require().NoError(err)
		s.True(got.IdentityConfirmed)
	})

	s.Run("delete removes the record", func() {
		nominee := s.createNominee(owner.ID, "Gone Rao")
		s.Require().NoError(s.nominees.Delete(ctx, nominee.ID))

		_, err := s.nominees.FindByID(ctx, nominee.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(s.nominees.Delete(ctx, nominee.ID), sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestAssets() {
	ctx := context.Background()
	owner := s.createUser("assets@example.com")
	nominee := s.createNominee(owner.ID, "Asha Rao")

	newAsset := func() *models.Asset {
		return &models.Asset{
			ID:           id.NewAssetID(),
			OwnerID:      owner.ID,
			Type:         "crypto_wallet",
			EncryptedRef: "vault://payloads/wallet",
			Status:       models.AssetStatusActive,
			CreatedAt:    s.now,
			UpdatedAt:    s.now,
		}
	}

	s.Run("round trips including nominee links", func() {
		asset := newAsset()
		s.Require().NoError(asset.LinkNominee(nominee.ID))
		s.Require().NoError(s.assets.Create(ctx, asset))

		got, err := s.assets.FindByID(ctx, asset.ID)
		s.Require().NoError(err)
		s.Equal(models.AssetStatusActive, got.Status)
		s.Equal([]id.NomineeID{nominee.ID}, got.NomineeIDs)
	})

	s.Run("update syncs links and status", func() {
		asset := newAsset()
		s.Require().NoError(asset.LinkNominee(nominee.ID))
		s.Require().NoError(s.assets.Create(ctx, asset))

		other := s.createNominee(owner.ID, "Vikram Rao")
		asset.UnlinkNominee(nominee.ID)
		s.Require().NoError(asset.LinkNominee(other.ID))
		asset.ApplyPendingVerification(s.now.Add(time.Hour))
		s.Require().NoError(s.assets.Update(ctx, asset))

		got, err := s.assets.FindByID(ctx, asset.ID)
		s.Require().NoError(err)
		s.Equal(models.AssetStatusPendingVerification, got.Status)
		s.Equal([]id.NomineeID{other.ID}, got.NomineeIDs)
	})

	s.Run("lists by owner", func() {
		stranger := s.createUser("stranger@example.com")
		got, err := s.assets.ListByOwner(ctx, stranger.ID)
		s.Require().NoError(err)
		s.Empty(got)
	})
}
