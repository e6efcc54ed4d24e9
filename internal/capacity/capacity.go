package capacity

import "time"

// Snapshot is the committed attendance of one capacity-bounded entity,
// taken from a single consistent read. A nil Capacity means unlimited.
type Snapshot struct {
	Capacity  *int `json:"capacity"`
	Committed int  `json:"committed"`
}

// Available reports how many seats remain, or nil when unlimited.
// An over-committed snapshot (rows edited outside this service) clamps to 0.
func (s Snapshot) Available() *int {
	if s.Capacity == nil {
		return nil
	}
	n := *s.Capacity - s.Committed
	if n < 0 {
		n = 0
	}
	return &n
}

// Band is the coarse utilization classification shown on the admin dashboard.
type Band string

const (
	BandNormal    Band = "normal"
	BandWarning   Band = "warning"
	BandFull      Band = "full"
	BandUnlimited Band = "unlimited"
)

// warningShare is the utilization at which an entity starts to be flagged.
const warningShare = 0.90

// Evaluate classifies a snapshot. Committed at exactly 90% of capacity is
// Warning, at or above 100% is Full. Zero capacity is Full as soon as anything
// is committed. Over-committed snapshots still classify as Full.
func Evaluate(s Snapshot) Band {
	if s.Capacity == nil {
		return BandUnlimited
	}
	cap := *s.Capacity
	if cap == 0 {
		if s.Committed > 0 {
			return BandFull
		}
		return BandNormal
	}
	if s.Committed >= cap {
		return BandFull
	}
	if float64(s.Committed)/float64(cap) >= warningShare {
		return BandWarning
	}
	return BandNormal
}

// WriteAllowed reports whether an RSVP write against an entity with the given
// deadline is still permitted at now. A nil deadline never closes; a deadline
// exactly equal to now is already too late.
func WriteAllowed(deadline *time.Time, now time.Time) bool {
	return deadline == nil || now.Before(*deadline)
}

// GuardResult is the outcome of a capacity check for one proposed mutation.
type GuardResult struct {
	Allowed bool
	// Projected is the committed total the write would produce.
	Projected int
	// Available is how many seats the guest could still take, with their own
	// prior contribution already released. Meaningless when Capacity is nil.
	Available int
}

// Guard projects the committed total that applying a mutation would produce
// and checks it against capacity. priorSeats is the guest's current
// contribution (0 unless their existing RSVP is attending), nextSeats the
// proposed one (0 unless the new status is attending). Filling the entity to
// exactly its capacity is allowed; only overshooting is rejected.
func Guard(s Snapshot, priorSeats, nextSeats int) GuardResult {
	projected := s.Committed - priorSeats + nextSeats
	if s.Capacity == nil {
		return GuardResult{Allowed: true, Projected: projected}
	}
	available := *s.Capacity - (s.Committed - priorSeats)
	if available < 0 {
		available = 0
	}
	if projected > *s.Capacity {
		return GuardResult{Allowed: false, Projected: projected, Available: available}
	}
	return GuardResult{Allowed: true, Projected: projected, Available: available}
}
