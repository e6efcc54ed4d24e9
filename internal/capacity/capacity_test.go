package capacity

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestWriteAllowed(t *testing.T) {
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline *time.Time
		want     bool
	}{
		{"nil deadline always open", nil, true},
		{"deadline one second ahead", timePtr(now.Add(time.Second)), true},
		{"deadline one second behind", timePtr(now.Add(-time.Second)), false},
		{"deadline exactly now is closed", timePtr(now), false},
		{"deadline far in the future", timePtr(now.AddDate(0, 1, 0)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WriteAllowed(tt.deadline, now); got != tt.want {
				t.Errorf("WriteAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestGuard(t *testing.T) {
	tests := []struct {
		name          string
		snap          Snapshot
		priorSeats    int
		nextSeats     int
		wantAllowed   bool
		wantProjected int
		wantAvailable int
	}{
		{
			name:          "new attending rsvp fits",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 5},
			nextSeats:     2,
			wantAllowed:   true,
			wantProjected: 7,
			wantAvailable: 5,
		},
		{
			name:          "filling exactly to capacity is allowed",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 8},
			nextSeats:     2,
			wantAllowed:   true,
			wantProjected: 10,
			wantAvailable: 2,
		},
		{
			name:          "one seat over capacity is rejected",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 8},
			nextSeats:     3,
			wantAllowed:   false,
			wantProjected: 11,
			wantAvailable: 2,
		},
		{
			name:          "guest increasing their own count past capacity",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 10},
			priorSeats:    2,
			nextSeats:     4,
			wantAllowed:   false,
			wantProjected: 12,
			wantAvailable: 2,
		},
		{
			name:          "guest increasing their own count within capacity",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 9},
			priorSeats:    1,
			nextSeats:     2,
			wantAllowed:   true,
			wantProjected: 10,
			wantAvailable: 2,
		},
		{
			name:          "declining frees capacity and is always allowed",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 10},
			priorSeats:    3,
			nextSeats:     0,
			wantAllowed:   true,
			wantProjected: 7,
			wantAvailable: 3,
		},
		{
			name:          "reducing count while staying attending is allowed",
			snap:          Snapshot{Capacity: intPtr(10), Committed: 10},
			priorSeats:    4,
			nextSeats:     2,
			wantAllowed:   true,
			wantProjected: 8,
			wantAvailable: 4,
		},
		{
			name:          "nil capacity never rejects",
			snap:          Snapshot{Capacity: nil, Committed: 100000},
			nextSeats:     500,
			wantAllowed:   true,
			wantProjected: 100500,
		},
		{
			name:          "zero capacity rejects any attending write",
			snap:          Snapshot{Capacity: intPtr(0), Committed: 0},
			nextSeats:     1,
			wantAllowed:   false,
			wantProjected: 1,
			wantAvailable: 0,
		},
		{
			name:          "over-committed snapshot clamps available to zero",
			snap:          Snapshot{Capacity: intPtr(5), Committed: 7},
			nextSeats:     1,
			wantAllowed:   false,
			wantProjected: 8,
			wantAvailable: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Guard(tt.snap, tt.priorSeats, tt.nextSeats)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.wantAllowed)
			}
			if got.Projected != tt.wantProjected {
				t.Errorf("Projected = %d, want %d", got.Projected, tt.wantProjected)
			}
			if tt.snap.Capacity != nil && got.Available != tt.wantAvailable {
				t.Errorf("Available = %d, want %d", got.Available, tt.wantAvailable)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		capacity  *int
		committed int
		want      Band
	}{
		{"nil capacity is unlimited", nil, 0, BandUnlimited},
		{"nil capacity unlimited regardless of committed", nil, 9999, BandUnlimited},
		{"89 of 100 is normal", intPtr(100), 89, BandNormal},
		{"90 of 100 is warning", intPtr(100), 90, BandWarning},
		{"99 of 100 is warning", intPtr(100), 99, BandWarning},
		{"100 of 100 is full", intPtr(100), 100, BandFull},
		{"over capacity still classifies full", intPtr(100), 120, BandFull},
		{"empty entity is normal", intPtr(50), 0, BandNormal},
		{"zero capacity with nothing committed is normal", intPtr(0), 0, BandNormal},
		{"zero capacity with anything committed is full", intPtr(0), 1, BandFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(Snapshot{Capacity: tt.capacity, Committed: tt.committed})
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotAvailable(t *testing.T) {
	if got := (Snapshot{Capacity: nil, Committed: 3}).Available(); got != nil {
		t.Errorf("Available() = %v, want nil for unlimited", *got)
	}
	if got := (Snapshot{Capacity: intPtr(10), Committed: 3}).Available(); got == nil || *got != 7 {
		t.Errorf("Available() = %v, want 7", got)
	}
	if got := (Snapshot{Capacity: intPtr(5), Committed: 9}).Available(); got == nil || *got != 0 {
		t.Errorf("Available() = %v, want 0 when over-committed", got)
	}
}
