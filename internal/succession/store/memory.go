package store

import (
	"context"
	"sync"

	"securevault/internal/succession/models"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
)

// InMemoryUsers is the in-memory UserStore.
type InMemoryUsers struct {
	mu    sync.RWMutex
	users map[id.UserID]models.User
}

func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{users: make(map[id.UserID]models.User)}
}

func (s *InMemoryUsers) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return sentinel.ErrConflict
	}
	s.users[user.ID] = *user
	return nil
}

func (s *InMemoryUsers) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copy := u
	return &copy, nil
}

func (s *InMemoryUsers) ListActive(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Status == models.UserStatusActive {
			copy := u
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *InMemoryUsers) Update(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.users[user.ID] = *user
	return nil
}

// InMemoryNominees is the in-memory NomineeStore.
type InMemoryNominees struct {
	mu       sync.RWMutex
	nominees map[id.NomineeID]models.Nominee
}

func NewInMemoryNominees() *InMemoryNominees {
	return &InMemoryNominees{nominees: make(map[id.NomineeID]models.Nominee)}
}

func (s *InMemoryNominees) Create(ctx context.Context, nominee *models.Nominee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nominees[nominee.ID]; ok {
		return sentinel.ErrConflict
	}
	s.nominees[nominee.ID] = *nominee
	return nil
}

func (s *InMemoryNominees) FindByID(ctx context.Context, nomineeID id.NomineeID) (*models.Nominee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nominees[nomineeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copy := n
	return &copy, nil
}

func (s *InMemoryNominees) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Nominee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Nominee
	for _, n := range s.nominees {
		if n.OwnerID == ownerID {
			copy := n
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *InMemoryNominees) Update(ctx context.Context, nominee *models.Nominee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nominees[nominee.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.nominees[nominee.ID] = *nominee
	return nil
}

func (s *InMemoryNominees) Delete(ctx context.Context, nomineeID id.NomineeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nominees[nomineeID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.nominees, nomineeID)
	return nil
}

// InMemoryAssets is the in-memory AssetStore.
type InMemoryAssets struct {
	mu     sync.RWMutex
	assets map[id.AssetID]models.Asset
}

func NewInMemoryAssets() *InMemoryAssets {
	return &InMemoryAssets{assets: make(map[id.AssetID]models.Asset)}
}

func (s *InMemoryAssets) Create(ctx context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; ok {
		return sentinel.ErrConflict
	}
	s.assets[asset.ID] = cloneAsset(*asset)
	return nil
}

func (s *InMemoryAssets) FindByID(ctx context.Context, assetID id.AssetID) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[assetID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copy := cloneAsset(a)
	return &copy, nil
}

func (s *InMemoryAssets) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Asset
	for _, a := range s.assets {
		if a.OwnerID == ownerID {
			copy := cloneAsset(a)
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *InMemoryAssets) Update(ctx context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.assets[asset.ID] = cloneAsset(*asset)
	return nil
}

// cloneAsset deep-copies the nominee slice so callers can't alias store
// state.
func cloneAsset(a models.Asset) models.Asset {
	a.NomineeIDs = append([]id.NomineeID(nil), a.NomineeIDs...)
	return a
}
