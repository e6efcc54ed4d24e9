package validator

import (
	"context"
	"testing"
	"time"
)

type rsvpForm struct {
	Status   string     `validate:"required,rsvpstatus"`
	Count    *int       `validate:"omitempty,positive"`
	Deadline *time.Time `validate:"omitempty,future"`
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func TestValidateDomainTags(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		in      rsvpForm
		wantErr bool
	}{
		{"attending passes", rsvpForm{Status: "attending"}, false},
		{"pending passes", rsvpForm{Status: "pending"}, false},
		{"declined passes", rsvpForm{Status: "declined"}, false},
		{"maybe passes", rsvpForm{Status: "maybe"}, false},
		{"unknown status fails", rsvpForm{Status: "going"}, true},
		{"missing status fails", rsvpForm{}, true},
		{"positive count passes", rsvpForm{Status: "attending", Count: intPtr(2)}, false},
		{"negative count fails", rsvpForm{Status: "attending", Count: intPtr(-2)}, true},
		{"nil count passes", rsvpForm{Status: "attending"}, false},
		{"future deadline passes", rsvpForm{Status: "pending", Deadline: timePtr(time.Now().Add(time.Hour))}, false},
		{"past deadline fails", rsvpForm{Status: "pending", Deadline: timePtr(time.Now().Add(-time.Hour))}, true},
		{"nil deadline passes", rsvpForm{Status: "pending"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(ctx, tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
