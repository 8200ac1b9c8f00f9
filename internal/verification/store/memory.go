package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"securevault/internal/verification/models"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
)

// InMemoryRequests is the non-durable RequestStore used by tests and local
// runs. Execute serialises all mutations behind one mutex, which gives the
// same effective isolation the Postgres store gets from version checks.
type InMemoryRequests struct {
	mu       sync.RWMutex
	requests map[id.VerificationID]*models.Request
}

func NewInMemoryRequests() *InMemoryRequests {
	return &InMemoryRequests{requests: make(map[id.VerificationID]*models.Request)}
}

func (s *InMemoryRequests) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.requests {
		if existing.AssetID == req.AssetID && existing.NomineeID == req.NomineeID && !existing.Status.Terminal() {
			return sentinel.ErrConflict
		}
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *InMemoryRequests) FindByID(_ context.Context, requestID id.VerificationID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *InMemoryRequests) FindActiveByPair(_ context.Context, assetID id.AssetID, nomineeID id.NomineeID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.AssetID == assetID && req.NomineeID == nomineeID && !req.Status.Terminal() {
			return cloneRequest(req), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryRequests) List(_ context.Context, filter Filter) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if !matchFilter(req, filter) {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryRequests) ListOverdue(_ context.Context, now time.Time) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.Overdue(now) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryRequests) Execute(_ context.Context, requestID id.VerificationID, fn func(*models.Request) error) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := cloneRequest(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	s.requests[requestID] = next
	return cloneRequest(next), nil
}

func matchFilter(req *models.Request, filter Filter) bool {
	if !filter.UserID.IsNil() && req.UserID != filter.UserID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, st := range filter.Statuses {
		if req.Status == st {
			return true
		}
	}
	return false
}

func cloneRequest(req *models.Request) *models.Request {
	out := *req
	if req.DeadlineAt != nil {
		t := *req.DeadlineAt
		out.DeadlineAt = &t
	}
	if req.SubmittedAt != nil {
		t := *req.SubmittedAt
		out.SubmittedAt = &t
	}
	if req.ReviewedAt != nil {
		t := *req.ReviewedAt
		out.ReviewedAt = &t
	}
	out.MissingDocuments = append([]string(nil), req.MissingDocuments...)
	return &out
}

// InMemoryDocuments is the non-durable DocumentStore.
type InMemoryDocuments struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemoryDocuments() *InMemoryDocuments {
	return &InMemoryDocuments{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryDocuments) Save(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	d := *doc
	s.docs[doc.ID] = &d
	return nil
}

func (s *InMemoryDocuments) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d := *doc
	return &d, nil
}

func (s *InMemoryDocuments) ListByRequest(_ context.Context, requestID id.VerificationID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.RequestID == requestID {
			d := *doc
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *InMemoryDocuments) Update(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return sentinel.ErrNotFound
	}
	d := *doc
	s.docs[doc.ID] = &d
	return nil
}
