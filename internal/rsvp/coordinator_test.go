package rsvp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weddinghub/internal/model"
)

// memStore is an in-memory Store. A single mutex serializes submit
// transactions, standing in for the row lock the Postgres store takes.
type memStore struct {
	mu       sync.Mutex
	entities map[EntityKind]map[int64]*Entity
	rsvps    map[string]*model.RSVP
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		entities: map[EntityKind]map[int64]*Entity{
			KindEvent:    {},
			KindActivity: {},
		},
		rsvps: map[string]*model.RSVP{},
	}
}

func (s *memStore) addEntity(kind EntityKind, id int64, capacity *int, deadline *time.Time) {
	s.entities[kind][id] = &Entity{ID: id, Name: fmt.Sprintf("%s-%d", kind, id), Capacity: capacity, RSVPDeadline: deadline}
}

func (s *memStore) key(guestID int64, ref EntityRef) string {
	return fmt.Sprintf("%d/%s/%d", guestID, ref.Kind(), ref.ID())
}

func (s *memStore) SubmitTx(ctx context.Context, ref EntityRef, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx memStore

func (t *memTx) Entity(ref EntityRef) (*Entity, error) {
	ent, ok := t.entities[ref.Kind()][ref.ID()]
	if !ok {
		return nil, NewNotFound(string(ref.Kind()) + " not found")
	}
	return ent, nil
}

func (t *memTx) ExistingRSVP(guestID int64, ref EntityRef) (*model.RSVP, error) {
	r, ok := t.rsvps[(*memStore)(t).key(guestID, ref)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) Committed(ref EntityRef) (int, error) {
	total := 0
	for _, r := range t.rsvps {
		if r.Status != model.StatusAttending {
			continue
		}
		sameEvent := ref.EventID != nil && r.EventID != nil && *r.EventID == *ref.EventID
		sameActivity := ref.ActivityID != nil && r.ActivityID != nil && *r.ActivityID == *ref.ActivityID
		if sameEvent || sameActivity {
			total += r.Seats()
		}
	}
	return total, nil
}

func (t *memTx) Upsert(r *model.RSVP) (*model.RSVP, error) {
	ref := EntityRef{EventID: r.EventID, ActivityID: r.ActivityID}
	key := (*memStore)(t).key(r.GuestID, ref)
	now := time.Now()
	if r.ID == 0 {
		t.nextID++
		r.ID = t.nextID
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	cp := *r
	t.rsvps[key] = &cp
	out := cp
	return &out, nil
}

// flakyStore fails SubmitTx with ErrSerialization a fixed number of times
// before delegating, mimicking lost storage races.
type flakyStore struct {
	inner    Store
	failures int
	mu       sync.Mutex
}

func (f *flakyStore) SubmitTx(ctx context.Context, ref EntityRef, fn func(tx Tx) error) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("tx aborted: %w", ErrSerialization)
	}
	return f.inner.SubmitTx(ctx, ref, fn)
}

func newTestCoordinator(t *testing.T, store Store) *Coordinator {
	t.Helper()
	log := zerolog.Nop()
	c := NewCoordinator(store, &log)
	c.retry.Delay = time.Millisecond
	return c
}

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func timePtr(v time.Time) *time.Time { return &v }

func eventRef(id int64) EntityRef { return EntityRef{EventID: int64Ptr(id)} }

func TestSubmitValidation(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, nil, nil)
	c := newTestCoordinator(t, store)
	ctx := context.Background()

	tests := []struct {
		name string
		sub  Submission
	}{
		{"neither event nor activity", Submission{GuestID: 1, Status: model.StatusAttending}},
		{"both event and activity", Submission{GuestID: 1, Ref: EntityRef{EventID: int64Ptr(1), ActivityID: int64Ptr(2)}, Status: model.StatusAttending}},
		{"unknown status", Submission{GuestID: 1, Ref: eventRef(1), Status: model.Status("going")}},
		{"zero guest count", Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending, GuestCount: intPtr(0)}},
		{"missing guest id", Submission{Ref: eventRef(1), Status: model.StatusAttending}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Submit(ctx, tt.sub)
			e, ok := AsError(err)
			if !ok || e.Kind != KindValidation {
				t.Fatalf("Submit() error = %v, want KindValidation", err)
			}
		})
	}
}

func TestSubmitEntityNotFound(t *testing.T) {
	c := newTestCoordinator(t, newMemStore())
	_, err := c.Submit(context.Background(), Submission{GuestID: 1, Ref: eventRef(42), Status: model.StatusAttending})
	e, ok := AsError(err)
	if !ok || e.Kind != KindNotFound {
		t.Fatalf("Submit() error = %v, want KindNotFound", err)
	}
}

func TestSubmitDeadline(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, nil, timePtr(time.Now().Add(-time.Second)))
	store.addEntity(KindEvent, 2, nil, timePtr(time.Now().Add(time.Hour)))
	c := newTestCoordinator(t, store)
	ctx := context.Background()

	_, err := c.Submit(ctx, Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending})
	e, ok := AsError(err)
	if !ok || e.Kind != KindDeadlineExpired {
		t.Fatalf("Submit() past deadline error = %v, want KindDeadlineExpired", err)
	}
	if e.Deadline == nil {
		t.Error("deadline rejection should carry the deadline instant")
	}

	if _, err := c.Submit(ctx, Submission{GuestID: 1, Ref: eventRef(2), Status: model.StatusAttending}); err != nil {
		t.Fatalf("Submit() before deadline error = %v, want nil", err)
	}
}

func TestSubmitDeadlineTieRejects(t *testing.T) {
	store := newMemStore()
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	store.addEntity(KindEvent, 1, nil, timePtr(at))
	c := newTestCoordinator(t, store)
	c.now = func() time.Time { return at }

	_, err := c.Submit(context.Background(), Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending})
	if e, ok := AsError(err); !ok || e.Kind != KindDeadlineExpired {
		t.Fatalf("Submit() at the deadline instant error = %v, want KindDeadlineExpired", err)
	}
}

func TestSubmitUpsertIdempotence(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(10), nil)
	c := newTestCoordinator(t, store)
	ctx := context.Background()
	sub := Submission{GuestID: 7, Ref: eventRef(1), Status: model.StatusAttending, GuestCount: intPtr(2)}

	first, err := c.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	second, err := c.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second submit created a new row: ids %d and %d", first.ID, second.ID)
	}
	if len(store.rsvps) != 1 {
		t.Errorf("store holds %d rows, want 1", len(store.rsvps))
	}
	if second.Status != first.Status || second.Seats() != first.Seats() {
		t.Errorf("second result %+v does not match persisted state %+v", second, first)
	}
}

func TestSubmitDefaultsToPending(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(1), nil)
	c := newTestCoordinator(t, store)

	r, err := c.Submit(context.Background(), Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusPending})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.RespondedAt != nil {
		t.Error("pending submission must not set responded_at")
	}

	r, err = c.Submit(context.Background(), Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusDeclined})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.RespondedAt == nil {
		t.Error("responded submission must set responded_at")
	}
}

func TestSubmitCapacityRelease(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindActivity, 5, intPtr(1), nil)
	c := newTestCoordinator(t, store)
	ctx := context.Background()
	ref := EntityRef{ActivityID: int64Ptr(5)}

	if _, err := c.Submit(ctx, Submission{GuestID: 1, Ref: ref, Status: model.StatusAttending}); err != nil {
		t.Fatalf("guest A attend error = %v", err)
	}

	_, err := c.Submit(ctx, Submission{GuestID: 2, Ref: ref, Status: model.StatusAttending})
	e, ok := AsError(err)
	if !ok || e.Kind != KindCapacityExceeded {
		t.Fatalf("guest B attend while full error = %v, want KindCapacityExceeded", err)
	}
	if e.SeatsAvailable != 0 {
		t.Errorf("SeatsAvailable = %d, want 0", e.SeatsAvailable)
	}

	if _, err := c.Submit(ctx, Submission{GuestID: 1, Ref: ref, Status: model.StatusDeclined}); err != nil {
		t.Fatalf("guest A decline error = %v", err)
	}
	if _, err := c.Submit(ctx, Submission{GuestID: 2, Ref: ref, Status: model.StatusAttending}); err != nil {
		t.Fatalf("guest B attend after release error = %v, want nil", err)
	}
}

func TestSubmitCapacityExceededReportsSeats(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(10), nil)
	c := newTestCoordinator(t, store)
	ctx := context.Background()

	if _, err := c.Submit(ctx, Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending, GuestCount: intPtr(7)}); err != nil {
		t.Fatalf("seed Submit() error = %v", err)
	}
	_, err := c.Submit(ctx, Submission{GuestID: 2, Ref: eventRef(1), Status: model.StatusAttending, GuestCount: intPtr(5)})
	e, ok := AsError(err)
	if !ok || e.Kind != KindCapacityExceeded {
		t.Fatalf("Submit() error = %v, want KindCapacityExceeded", err)
	}
	if e.SeatsAvailable != 3 {
		t.Errorf("SeatsAvailable = %d, want 3", e.SeatsAvailable)
	}
}

func TestSubmitMaybeNeverCounts(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(1), nil)
	c := newTestCoordinator(t, store)
	ctx := context.Background()

	for guest := int64(1); guest <= 3; guest++ {
		if _, err := c.Submit(ctx, Submission{GuestID: guest, Ref: eventRef(1), Status: model.StatusMaybe, GuestCount: intPtr(4)}); err != nil {
			t.Fatalf("maybe Submit() guest %d error = %v", guest, err)
		}
	}
	if _, err := c.Submit(ctx, Submission{GuestID: 9, Ref: eventRef(1), Status: model.StatusAttending}); err != nil {
		t.Fatalf("attending Submit() error = %v, maybe rows must not consume capacity", err)
	}
}

func TestSubmitBulkPartialFailure(t *testing.T) {
	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(2), nil)
	c := newTestCoordinator(t, store)

	items := []Submission{
		{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending},
		{GuestID: 2, Ref: eventRef(1), Status: model.StatusAttending, GuestCount: intPtr(5)},
		{GuestID: 3, Ref: eventRef(1), Status: model.StatusAttending},
	}
	results := c.SubmitBulk(context.Background(), items)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("item 0 error = %v, want success", results[0].Err)
	}
	if e, ok := AsError(results[1].Err); !ok || e.Kind != KindCapacityExceeded {
		t.Errorf("item 1 error = %v, want KindCapacityExceeded", results[1].Err)
	}
	if results[2].Err != nil {
		t.Errorf("item 2 error = %v, want success despite item 1 failing", results[2].Err)
	}
}

func TestSubmitConcurrentNeverExceedsCapacity(t *testing.T) {
	const cap = 10
	const guests = 25

	store := newMemStore()
	store.addEntity(KindEvent, 1, intPtr(cap), nil)
	c := newTestCoordinator(t, store)

	var wg sync.WaitGroup
	errs := make([]error, guests)
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Submit(context.Background(), Submission{
				GuestID: int64(i + 1),
				Ref:     eventRef(1),
				Status:  model.StatusAttending,
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		if e, ok := AsError(err); !ok || e.Kind != KindCapacityExceeded {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if accepted != cap {
		t.Errorf("accepted %d submissions, want exactly %d", accepted, cap)
	}
	committed, _ := (*memTx)(store).Committed(eventRef(1))
	if committed != cap {
		t.Errorf("committed total = %d, want %d", committed, cap)
	}
}

func TestSubmitRetriesSerializationConflicts(t *testing.T) {
	inner := newMemStore()
	inner.addEntity(KindEvent, 1, intPtr(5), nil)

	c := newTestCoordinator(t, &flakyStore{inner: inner, failures: 2})
	if _, err := c.Submit(context.Background(), Submission{GuestID: 1, Ref: eventRef(1), Status: model.StatusAttending}); err != nil {
		t.Fatalf("Submit() error = %v, want success after internal retries", err)
	}

	c = newTestCoordinator(t, &flakyStore{inner: inner, failures: 50})
	_, err := c.Submit(context.Background(), Submission{GuestID: 2, Ref: eventRef(1), Status: model.StatusAttending})
	e, ok := AsError(err)
	if !ok || e.Kind != KindTransient {
		t.Fatalf("Submit() error = %v, want KindTransient once retries are exhausted", err)
	}
	if !errors.Is(err, ErrSerialization) {
		t.Error("transient error should wrap the underlying conflict")
	}
}
