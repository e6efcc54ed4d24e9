package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"weddinghub/internal/model"
	"weddinghub/internal/rsvp"
)

// Error codes of the response envelope. Callers key user-facing messages off
// these, so they are part of the wire contract.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeDeadlineExpired  = "DEADLINE_EXPIRED"
	CodeDatabase         = "DATABASE_ERROR"
)

// Response is the envelope every endpoint returns: either
// {success:true,data} or {success:false,error:{code,message,details?}}.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func statusFor(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeCapacityExceeded, CodeDeadlineExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func ErrorResponse(c *ginext.Context, code, message string, details any) {
	c.JSON(statusFor(code), Response{
		Success: false,
		Error:   &Error{Code: code, Message: message, Details: details},
	})
}

func ValidationError(c *ginext.Context, message string) {
	ErrorResponse(c, CodeValidation, message, nil)
}

func NotFoundError(c *ginext.Context, message string) {
	ErrorResponse(c, CodeNotFound, message, nil)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, CodeDatabase, "Service is currently unavailable. Please try again later.", nil)
}

// DomainError translates a coordinator rejection into the envelope, carrying
// the details the caller needs ("only N seats remain", "closed on <date>").
func DomainError(c *ginext.Context, err error) {
	e, ok := rsvp.AsError(err)
	if !ok {
		InternalServerError(c)
		return
	}
	switch e.Kind {
	case rsvp.KindValidation:
		ErrorResponse(c, CodeValidation, e.Message, nil)
	case rsvp.KindNotFound:
		ErrorResponse(c, CodeNotFound, e.Message, nil)
	case rsvp.KindDeadlineExpired:
		ErrorResponse(c, CodeDeadlineExpired, e.Message, map[string]any{"deadline": e.Deadline})
	case rsvp.KindCapacityExceeded:
		ErrorResponse(c, CodeCapacityExceeded, e.Message, map[string]any{"seats_available": e.SeatsAvailable})
	case rsvp.KindTransient:
		ErrorResponse(c, CodeConflict, "Write conflicted with concurrent updates, please retry", nil)
	default:
		InternalServerError(c)
	}
}

// DomainErrorPayload is DomainError's envelope fragment for bulk items,
// where rejections are reported per element instead of via the HTTP status.
func DomainErrorPayload(err error) *Error {
	e, ok := rsvp.AsError(err)
	if !ok {
		return &Error{Code: CodeDatabase, Message: "internal failure"}
	}
	switch e.Kind {
	case rsvp.KindValidation:
		return &Error{Code: CodeValidation, Message: e.Message}
	case rsvp.KindNotFound:
		return &Error{Code: CodeNotFound, Message: e.Message}
	case rsvp.KindDeadlineExpired:
		return &Error{Code: CodeDeadlineExpired, Message: e.Message, Details: map[string]any{"deadline": e.Deadline}}
	case rsvp.KindCapacityExceeded:
		return &Error{Code: CodeCapacityExceeded, Message: e.Message, Details: map[string]any{"seats_available": e.SeatsAvailable}}
	case rsvp.KindTransient:
		return &Error{Code: CodeConflict, Message: "Write conflicted with concurrent updates, please retry"}
	default:
		return &Error{Code: CodeDatabase, Message: "internal failure"}
	}
}

type SubmitRSVPRequest struct {
	GuestID    int64  `json:"guest_id" validate:"required,gt=0"`
	EventID    *int64 `json:"event_id"`
	ActivityID *int64 `json:"activity_id"`
	Status     string `json:"status" validate:"required,rsvpstatus"`
	GuestCount *int   `json:"guest_count" validate:"omitempty,positive"`
}

type BulkRSVPRequest struct {
	Items []SubmitRSVPRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type RSVPResponse struct {
	ID          int64      `json:"id"`
	GuestID     int64      `json:"guest_id"`
	EventID     *int64     `json:"event_id,omitempty"`
	ActivityID  *int64     `json:"activity_id,omitempty"`
	Status      string     `json:"status"`
	GuestCount  *int       `json:"guest_count,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewRSVPResponse(r *model.RSVP) RSVPResponse {
	return RSVPResponse{
		ID:          r.ID,
		GuestID:     r.GuestID,
		EventID:     r.EventID,
		ActivityID:  r.ActivityID,
		Status:      string(r.Status),
		GuestCount:  r.GuestCount,
		RespondedAt: r.RespondedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// BulkItemResult mirrors the envelope per bulk element so the caller can
// surface "8 of 10 updated" style outcomes.
type BulkItemResult struct {
	Success bool          `json:"success"`
	Data    *RSVPResponse `json:"data,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

type CapacitySnapshotResponse struct {
	Capacity  *int   `json:"capacity"`
	Committed int    `json:"committed"`
	Available *int   `json:"available"`
	Band      string `json:"band"`
}

type CapacityAlertResponse struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Capacity   int    `json:"capacity"`
	Committed  int    `json:"committed"`
	Band       string `json:"band"`
}

type CreateGuestRequest struct {
	FirstName     string `json:"first_name" validate:"required,min=1,max=255"`
	LastName      string `json:"last_name" validate:"required,min=1,max=255"`
	Email         string `json:"email" validate:"omitempty,email"`
	GroupID       *int64 `json:"group_id"`
	AgeCategory   string `json:"age_category"`
	GuestCategory string `json:"guest_category"`
}

type CreateEntityRequest struct {
	Name         string     `json:"name" validate:"required,min=1,max=255"`
	Description  string     `json:"description"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      time.Time  `json:"end_time"`
	Location     string     `json:"location"`
	Capacity     *int       `json:"capacity" validate:"omitempty,gte=0"`
	RSVPDeadline *time.Time `json:"rsvp_deadline" validate:"omitempty,future"`
}

// ReminderMessage is the delayed queue payload scheduling deadline reminders.
type ReminderMessage struct {
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Deadline   time.Time `json:"deadline"`
}

type RSVPStatistics struct {
	TotalRSVPs      int            `json:"total_rsvps"`
	ByStatus        map[string]int `json:"by_status"`
	TotalGuestCount int            `json:"total_guest_count"`
}

// RSVPView is the denormalized admin listing row.
type RSVPView struct {
	RSVPResponse
	GuestFirstName string  `json:"guest_first_name"`
	GuestLastName  string  `json:"guest_last_name"`
	GuestEmail     string  `json:"guest_email,omitempty"`
	EventName      *string `json:"event_name,omitempty"`
	ActivityName   *string `json:"activity_name,omitempty"`
}

type ListRSVPsResponse struct {
	RSVPs      []RSVPView     `json:"rsvps"`
	Statistics RSVPStatistics `json:"statistics"`
}
