package audit

import (
	"context"

	id "securevault/pkg/domain"
	"securevault/pkg/requestcontext"
)

// Recorder is the write facade services use. It stamps IDs and timestamps
// and never swallows store failures: if the store is down, the triggering
// operation fails.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends an entry, filling ID and timestamp when unset. The
// timestamp comes from the request-pinned clock so every entry produced by
// one transition shares the transition's time.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID.String() == (id.EntryID{}).String() {
		entry.ID = id.NewEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	return r.store.Append(ctx, entry)
}

// Success is shorthand for a SUCCESS-outcome entry.
func (r *Recorder) Success(ctx context.Context, actor ActorType, actorID string, action Action, targetType, targetID, details string) error {
	return r.Record(ctx, Entry{
		ActorType:  actor,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		Outcome:    OutcomeSuccess,
	})
}

// Failure is shorthand for a FAILED-outcome entry.
func (r *Recorder) Failure(ctx context.Context, actor ActorType, actorID string, action Action, targetType, targetID, details string) error {
	return r.Record(ctx, Entry{
		ActorType:  actor,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		Outcome:    OutcomeFailed,
	})
}

// Query exposes read access for the admin surface.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return r.store.Query(ctx, filter)
}
