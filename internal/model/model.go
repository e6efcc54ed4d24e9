package model

import "time"

// Status is the closed set of RSVP answers. Only StatusAttending
// counts toward an entity's committed seat total.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAttending Status = "attending"
	StatusDeclined  Status = "declined"
	StatusMaybe     Status = "maybe"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAttending, StatusDeclined, StatusMaybe:
		return true
	}
	return false
}

type Guest struct {
	ID            int64     `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Email         string    `db:"email,omitempty" json:"email,omitempty"`
	GroupID       *int64    `db:"group_id" json:"group_id,omitempty"`
	AgeCategory   string    `db:"age_category" json:"age_category,omitempty"`
	GuestCategory string    `db:"guest_category" json:"guest_category,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type Event struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Description  string     `db:"description,omitempty" json:"description,omitempty"`
	StartTime    time.Time  `db:"start_time" json:"start_time"`
	EndTime      time.Time  `db:"end_time,omitempty" json:"end_time,omitempty"`
	Location     string     `db:"location,omitempty" json:"location,omitempty"`
	Capacity     *int       `db:"capacity" json:"capacity,omitempty"`
	RSVPDeadline *time.Time `db:"rsvp_deadline" json:"rsvp_deadline,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type Activity struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Description  string     `db:"description,omitempty" json:"description,omitempty"`
	StartTime    time.Time  `db:"start_time" json:"start_time"`
	EndTime      time.Time  `db:"end_time,omitempty" json:"end_time,omitempty"`
	Location     string     `db:"location,omitempty" json:"location,omitempty"`
	Capacity     *int       `db:"capacity" json:"capacity,omitempty"`
	RSVPDeadline *time.Time `db:"rsvp_deadline" json:"rsvp_deadline,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// RSVP references exactly one guest and exactly one of EventID/ActivityID.
type RSVP struct {
	ID          int64      `db:"id" json:"id"`
	GuestID     int64      `db:"guest_id" json:"guest_id"`
	EventID     *int64     `db:"event_id" json:"event_id,omitempty"`
	ActivityID  *int64     `db:"activity_id" json:"activity_id,omitempty"`
	Status      Status     `db:"status" json:"status"`
	GuestCount  *int       `db:"guest_count" json:"guest_count,omitempty"`
	RespondedAt *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Seats is the number of seats this record consumes when attending.
// An absent guest_count means the guest alone.
func (r *RSVP) Seats() int {
	if r.GuestCount == nil {
		return 1
	}
	return *r.GuestCount
}
