package rsvp

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"

	"weddinghub/internal/capacity"
	"weddinghub/internal/model"
)

// EntityKind distinguishes the two capacity-bounded tables.
type EntityKind string

const (
	KindEvent    EntityKind = "event"
	KindActivity EntityKind = "activity"
)

// EntityRef points at exactly one event or activity.
type EntityRef struct {
	EventID    *int64
	ActivityID *int64
}

func (r EntityRef) Validate() error {
	if (r.EventID == nil) == (r.ActivityID == nil) {
		return NewValidation("exactly one of event_id or activity_id is required")
	}
	return nil
}

func (r EntityRef) Kind() EntityKind {
	if r.EventID != nil {
		return KindEvent
	}
	return KindActivity
}

func (r EntityRef) ID() int64 {
	if r.EventID != nil {
		return *r.EventID
	}
	if r.ActivityID != nil {
		return *r.ActivityID
	}
	return 0
}

// Entity is the capacity/deadline view of an event or activity, read under
// the submit transaction's entity lock.
type Entity struct {
	ID           int64
	Name         string
	Capacity     *int
	RSVPDeadline *time.Time
}

// Submission is one guest's desired RSVP state for one entity.
type Submission struct {
	GuestID    int64
	Ref        EntityRef
	Status     model.Status
	GuestCount *int
}

// Tx is the storage view inside one entity-locked submit transaction.
// Entity must serialize concurrent transactions against the same entity
// (row lock or equivalent) so that the committed total read afterwards
// cannot go stale before the upsert lands.
type Tx interface {
	Entity(ref EntityRef) (*Entity, error)
	ExistingRSVP(guestID int64, ref EntityRef) (*model.RSVP, error)
	Committed(ref EntityRef) (int, error)
	Upsert(r *model.RSVP) (*model.RSVP, error)
}

// Store runs submit transactions. Implementations return ErrSerialization
// (possibly wrapped) from SubmitTx when the transaction lost a storage race
// and the whole sequence should be retried.
type Store interface {
	SubmitTx(ctx context.Context, ref EntityRef, fn func(tx Tx) error) error
}

// Coordinator is the single write path for guest RSVPs. It enforces one RSVP
// per (guest, entity) pair, the deadline gate, and the capacity invariant,
// re-deriving the committed total inside the same atomic unit as the write.
type Coordinator struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
	retry retry.Strategy
}

func NewCoordinator(store Store, log *zerolog.Logger) *Coordinator {
	return &Coordinator{
		store: store,
		log:   log,
		now:   time.Now,
		retry: retry.Strategy{Attempts: 3, Delay: 25 * time.Millisecond, Backoff: 2},
	}
}

// Submit upserts the guest's RSVP for the referenced entity. Returned errors
// are always *Error; storage conflicts are retried internally before
// surfacing as KindTransient.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (*model.RSVP, error) {
	if err := sub.Ref.Validate(); err != nil {
		return nil, err
	}
	if !sub.Status.Valid() {
		return nil, NewValidation("status must be one of pending, attending, declined, maybe")
	}
	if sub.GuestCount != nil && *sub.GuestCount < 1 {
		return nil, NewValidation("guest_count must be at least 1")
	}
	if sub.GuestID <= 0 {
		return nil, NewValidation("guest_id is required")
	}

	var (
		saved        *model.RSVP
		rejection    error
		lastConflict error
	)
	err := retry.Do(func() error {
		res, err := c.trySubmit(ctx, sub)
		if err != nil {
			if errors.Is(err, ErrSerialization) {
				lastConflict = err
				c.log.Debug().
					Int64("guest_id", sub.GuestID).
					Int64("entity_id", sub.Ref.ID()).
					Str("entity", string(sub.Ref.Kind())).
					Msg("submit lost a storage race, retrying")
				return err
			}
			rejection = err
			return nil
		}
		saved = res
		return nil
	}, c.retry)
	if err != nil {
		return nil, NewTransient(lastConflict)
	}
	if rejection != nil {
		if _, ok := AsError(rejection); ok {
			return nil, rejection
		}
		return nil, NewUnknown(rejection)
	}
	return saved, nil
}

func (c *Coordinator) trySubmit(ctx context.Context, sub Submission) (*model.RSVP, error) {
	var saved *model.RSVP
	err := c.store.SubmitTx(ctx, sub.Ref, func(tx Tx) error {
		ent, err := tx.Entity(sub.Ref)
		if err != nil {
			return err
		}

		if !capacity.WriteAllowed(ent.RSVPDeadline, c.now()) {
			return NewDeadlineExpired(*ent.RSVPDeadline)
		}

		existing, err := tx.ExistingRSVP(sub.GuestID, sub.Ref)
		if err != nil {
			return err
		}

		committed, err := tx.Committed(sub.Ref)
		if err != nil {
			return err
		}
		snap := capacity.Snapshot{Capacity: ent.Capacity, Committed: committed}

		prior := 0
		if existing != nil && existing.Status == model.StatusAttending {
			prior = existing.Seats()
		}
		next := 0
		if sub.Status == model.StatusAttending {
			next = seats(sub.GuestCount)
		}
		if g := capacity.Guard(snap, prior, next); !g.Allowed {
			return NewCapacityExceeded(g.Available)
		}

		row := c.buildRow(sub, existing)
		saved, err = tx.Upsert(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// buildRow resolves the create-vs-update branch. The caller sees a plain
// upsert either way.
func (c *Coordinator) buildRow(sub Submission, existing *model.RSVP) *model.RSVP {
	row := &model.RSVP{
		GuestID:    sub.GuestID,
		EventID:    sub.Ref.EventID,
		ActivityID: sub.Ref.ActivityID,
		Status:     sub.Status,
		GuestCount: sub.GuestCount,
	}
	if existing != nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.RespondedAt = existing.RespondedAt
	}
	if sub.Status != model.StatusPending {
		now := c.now()
		row.RespondedAt = &now
	}
	return row
}

// BulkResult is the outcome of one bulk item, positionally aligned with the
// input.
type BulkResult struct {
	RSVP *model.RSVP
	Err  error
}

// SubmitBulk runs each item through the full Submit path independently.
// One item's rejection never aborts or skips the others.
func (c *Coordinator) SubmitBulk(ctx context.Context, items []Submission) []BulkResult {
	results := make([]BulkResult, len(items))
	for i, item := range items {
		r, err := c.Submit(ctx, item)
		results[i] = BulkResult{RSVP: r, Err: err}
		if err != nil {
			c.log.Warn().
				Err(err).
				Int("item", i).
				Int64("guest_id", item.GuestID).
				Msg("bulk RSVP item rejected")
		}
	}
	return results
}

func seats(count *int) int {
	if count == nil {
		return 1
	}
	return *count
}
