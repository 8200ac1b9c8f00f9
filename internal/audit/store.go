package audit

import "context"

// Store persists audit entries. Append participates in the caller's
// transaction when one is present in context, so a failed append rolls the
// triggering state change back with it. There is no mutation API.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Query returns entries ordered by timestamp descending.
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}
