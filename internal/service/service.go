package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"weddinghub/internal/capacity"
	"weddinghub/internal/dto"
	"weddinghub/internal/mailer"
	"weddinghub/internal/model"
	"weddinghub/internal/rabbit"
	"weddinghub/internal/repo"
	"weddinghub/internal/rsvp"
	"weddinghub/pkg/validator"
)

// reminderLead is how long before an entity's RSVP deadline the pending-guest
// reminder fires.
const reminderLead = 24 * time.Hour

type Service interface {
	SubmitRSVP(ctx *ginext.Context)
	GetGuestRSVPs(ctx *ginext.Context)
	GetCapacitySnapshot(ctx *ginext.Context)
	BulkRSVP(ctx *ginext.Context)
	ListRSVPs(ctx *ginext.Context)
	ExportRSVPs(ctx *ginext.Context)
	CapacityAlerts(ctx *ginext.Context)
	DeleteRSVP(ctx *ginext.Context)
	CreateGuest(ctx *ginext.Context)
	CreateEvent(ctx *ginext.Context)
	CreateActivity(ctx *ginext.Context)
}

type service struct {
	repo    repo.Repository
	coord   *rsvp.Coordinator
	log     *zerolog.Logger
	rbt     *rabbit.Client
	mailCfg mailer.Config
}

func NewService(repo repo.Repository, coord *rsvp.Coordinator, logger *zerolog.Logger, rbt *rabbit.Client, mailCfg mailer.Config) Service {
	return &service{
		repo:    repo,
		coord:   coord,
		log:     logger,
		rbt:     rbt,
		mailCfg: mailCfg,
	}
}

func submissionFromRequest(req dto.SubmitRSVPRequest) rsvp.Submission {
	return rsvp.Submission{
		GuestID:    req.GuestID,
		Ref:        rsvp.EntityRef{EventID: req.EventID, ActivityID: req.ActivityID},
		Status:     model.Status(req.Status),
		GuestCount: req.GuestCount,
	}
}

func (s *service) SubmitRSVP(ctx *ginext.Context) {
	var req dto.SubmitRSVPRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.ValidationError(ctx, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.ValidationError(ctx, fmt.Sprintf("%v", verr))
		return
	}

	sub := submissionFromRequest(req)
	saved, err := s.coord.Submit(ctx.Request.Context(), sub)
	if err != nil {
		s.log.Warn().Err(err).Int64("guest_id", req.GuestID).Msg("rsvp submission rejected")
		dto.DomainError(ctx, err)
		return
	}

	s.log.Info().
		Int64("rsvp_id", saved.ID).
		Int64("guest_id", saved.GuestID).
		Str("status", string(saved.Status)).
		Msg("rsvp submitted")

	s.sendConfirmation(ctx, saved)

	dto.SuccessCreatedResponse(ctx, dto.NewRSVPResponse(saved))
}

// sendConfirmation is best-effort; the RSVP is already committed and a mail
// failure must not surface to the guest.
func (s *service) sendConfirmation(ctx *ginext.Context, saved *model.RSVP) {
	if !s.mailCfg.Enabled() || saved.Status == model.StatusPending {
		return
	}
	guest, err := s.repo.GetGuestByID(ctx.Request.Context(), saved.GuestID)
	if err != nil || guest.Email == "" {
		return
	}
	entityName := s.entityName(ctx, saved)
	name := guest.FirstName + " " + guest.LastName
	if err := mailer.SendRSVPConfirmation(s.log, s.mailCfg, name, entityName, saved.Status, guest.Email); err != nil {
		s.log.Warn().Err(err).Msg("failed to send rsvp confirmation email")
	}
}

func (s *service) entityName(ctx *ginext.Context, saved *model.RSVP) string {
	ref := rsvp.EntityRef{EventID: saved.EventID, ActivityID: saved.ActivityID}
	rows, err := s.repo.ListRSVPs(ctx.Request.Context(), repo.RSVPFilter{
		EventID:    ref.EventID,
		ActivityID: ref.ActivityID,
		GuestID:    &saved.GuestID,
	})
	if err != nil || len(rows) == 0 {
		return "the celebration"
	}
	if rows[0].EventName != nil {
		return *rows[0].EventName
	}
	if rows[0].ActivityName != nil {
		return *rows[0].ActivityName
	}
	return "the celebration"
}

func (s *service) GetGuestRSVPs(ctx *ginext.Context) {
	guestID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.ValidationError(ctx, "Invalid guest ID")
		return
	}

	if _, err := s.repo.GetGuestByID(ctx.Request.Context(), guestID); err != nil {
		dto.DomainError(ctx, err)
		return
	}

	records, err := s.repo.GuestRSVPs(ctx.Request.Context(), guestID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load guest rsvps")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.RSVPResponse, 0, len(records))
	for i := range records {
		resp = append(resp, dto.NewRSVPResponse(&records[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func refFromPath(ctx *ginext.Context) (rsvp.EntityRef, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.ValidationError(ctx, "Invalid entity ID")
		return rsvp.EntityRef{}, false
	}
	switch ctx.Param("type") {
	case "events":
		return rsvp.EntityRef{EventID: &id}, true
	case "activities":
		return rsvp.EntityRef{ActivityID: &id}, true
	default:
		dto.ValidationError(ctx, "Entity type must be 'events' or 'activities'")
		return rsvp.EntityRef{}, false
	}
}

func (s *service) GetCapacitySnapshot(ctx *ginext.Context) {
	ref, ok := refFromPath(ctx)
	if !ok {
		return
	}

	snap, err := s.repo.EntitySnapshot(ctx.Request.Context(), ref)
	if err != nil {
		if _, ok := rsvp.AsError(err); ok {
			dto.DomainError(ctx, err)
			return
		}
		s.log.Error().Err(err).Msg("failed to read capacity snapshot")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.CapacitySnapshotResponse{
		Capacity:  snap.Capacity,
		Committed: snap.Committed,
		Available: snap.Available(),
		Band:      string(capacity.Evaluate(snap)),
	})
}

func (s *service) BulkRSVP(ctx *ginext.Context) {
	var req dto.BulkRSVPRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.ValidationError(ctx, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.ValidationError(ctx, fmt.Sprintf("%v", verr))
		return
	}

	items := make([]rsvp.Submission, len(req.Items))
	for i, item := range req.Items {
		items[i] = submissionFromRequest(item)
	}

	results := s.coord.SubmitBulk(ctx.Request.Context(), items)

	resp := make([]dto.BulkItemResult, len(results))
	succeeded := 0
	for i, res := range results {
		if res.Err != nil {
			resp[i] = dto.BulkItemResult{Success: false, Error: dto.DomainErrorPayload(res.Err)}
			continue
		}
		out := dto.NewRSVPResponse(res.RSVP)
		resp[i] = dto.BulkItemResult{Success: true, Data: &out}
		succeeded++
	}

	s.log.Info().
		Int("succeeded", succeeded).
		Int("total", len(results)).
		Msg("bulk rsvp processed")

	dto.SuccessResponse(ctx, resp)
}

func filterFromQuery(ctx *ginext.Context) (repo.RSVPFilter, error) {
	var f repo.RSVPFilter
	if v := ctx.Query("event_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid event_id")
		}
		f.EventID = &id
	}
	if v := ctx.Query("activity_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid activity_id")
		}
		f.ActivityID = &id
	}
	if v := ctx.Query("guest_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid guest_id")
		}
		f.GuestID = &id
	}
	if v := ctx.Query("status"); v != "" {
		status := model.Status(v)
		if !status.Valid() {
			return f, fmt.Errorf("invalid status filter")
		}
		f.Status = &status
	}
	return f, nil
}

func statistics(rows []repo.RSVPListRow) dto.RSVPStatistics {
	stats := dto.RSVPStatistics{
		ByStatus: map[string]int{
			string(model.StatusPending):   0,
			string(model.StatusAttending): 0,
			string(model.StatusDeclined):  0,
			string(model.StatusMaybe):     0,
		},
	}
	for i := range rows {
		stats.TotalRSVPs++
		stats.ByStatus[string(rows[i].Status)]++
		if rows[i].Status == model.StatusAttending {
			stats.TotalGuestCount += rows[i].Seats()
		}
	}
	return stats
}

func (s *service) ListRSVPs(ctx *ginext.Context) {
	f, err := filterFromQuery(ctx)
	if err != nil {
		dto.ValidationError(ctx, err.Error())
		return
	}

	rows, err := s.repo.ListRSVPs(ctx.Request.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list rsvps")
		dto.InternalServerError(ctx)
		return
	}

	views := make([]dto.RSVPView, 0, len(rows))
	for i := range rows {
		views = append(views, dto.RSVPView{
			RSVPResponse:   dto.NewRSVPResponse(&rows[i].RSVP),
			GuestFirstName: rows[i].GuestFirstName,
			GuestLastName:  rows[i].GuestLastName,
			GuestEmail:     rows[i].GuestEmail,
			EventName:      rows[i].EventName,
			ActivityName:   rows[i].ActivityName,
		})
	}

	dto.SuccessResponse(ctx, dto.ListRSVPsResponse{
		RSVPs:      views,
		Statistics: statistics(rows),
	})
}

func (s *service) ExportRSVPs(ctx *ginext.Context) {
	f, err := filterFromQuery(ctx)
	if err != nil {
		dto.ValidationError(ctx, err.Error())
		return
	}

	rows, err := s.repo.ListRSVPs(ctx.Request.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to export rsvps")
		dto.InternalServerError(ctx)
		return
	}

	ctx.Header("Content-Type", "text/csv")
	ctx.Header("Content-Disposition", `attachment; filename="rsvps.csv"`)
	ctx.Status(200)

	w := csv.NewWriter(ctx.Writer)
	_ = w.Write([]string{
		"RSVP ID", "Guest First Name", "Guest Last Name", "Guest Email",
		"Event Name", "Activity Name", "Status", "Guest Count",
		"Responded At", "Created At",
	})
	for i := range rows {
		row := &rows[i]
		respondedAt := ""
		if row.RespondedAt != nil {
			respondedAt = row.RespondedAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			strconv.FormatInt(row.ID, 10),
			row.GuestFirstName,
			row.GuestLastName,
			row.GuestEmail,
			strOrEmpty(row.EventName),
			strOrEmpty(row.ActivityName),
			string(row.Status),
			strconv.Itoa(row.Seats()),
			respondedAt,
			row.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.log.Error().Err(err).Msg("csv export interrupted mid-stream")
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *service) CapacityAlerts(ctx *ginext.Context) {
	rows, err := s.repo.CapacityAlerts(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read capacity alerts")
		dto.InternalServerError(ctx)
		return
	}

	alerts := make([]dto.CapacityAlertResponse, 0)
	for _, row := range rows {
		cap := row.Capacity
		band := capacity.Evaluate(capacity.Snapshot{Capacity: &cap, Committed: row.Committed})
		if band == capacity.BandNormal {
			continue
		}
		alerts = append(alerts, dto.CapacityAlertResponse{
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			EntityName: row.Name,
			Capacity:   row.Capacity,
			Committed:  row.Committed,
			Band:       string(band),
		})
	}

	dto.SuccessResponse(ctx, alerts)
}

func (s *service) DeleteRSVP(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.ValidationError(ctx, "Invalid RSVP ID")
		return
	}

	if err := s.repo.DeleteRSVP(ctx.Request.Context(), id); err != nil {
		if _, ok := rsvp.AsError(err); ok {
			dto.DomainError(ctx, err)
			return
		}
		s.log.Error().Err(err).Msg("failed to delete rsvp")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("rsvp_id", id).Msg("rsvp deleted by admin")
	dto.SuccessResponse(ctx, map[string]int64{"deleted_id": id})
}

func (s *service) CreateGuest(ctx *ginext.Context) {
	var req dto.CreateGuestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.ValidationError(ctx, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.ValidationError(ctx, fmt.Sprintf("%v", verr))
		return
	}

	guest := &model.Guest{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		GroupID:       req.GroupID,
		AgeCategory:   req.AgeCategory,
		GuestCategory: req.GuestCategory,
	}
	id, err := s.repo.CreateGuest(ctx.Request.Context(), guest)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create guest")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("guest_id", id).Msg("guest created")
	dto.SuccessCreatedResponse(ctx, guest)
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEntityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.ValidationError(ctx, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.ValidationError(ctx, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		Name:         req.Name,
		Description:  req.Description,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Location:     req.Location,
		Capacity:     req.Capacity,
		RSVPDeadline: req.RSVPDeadline,
	}
	id, err := s.repo.CreateEvent(ctx.Request.Context(), event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("event_id", id).Msg("event created")
	s.scheduleReminder(string(rsvp.KindEvent), id, req.RSVPDeadline)
	dto.SuccessCreatedResponse(ctx, event)
}

func (s *service) CreateActivity(ctx *ginext.Context) {
	var req dto.CreateEntityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.ValidationError(ctx, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.ValidationError(ctx, fmt.Sprintf("%v", verr))
		return
	}

	activity := &model.Activity{
		Name:         req.Name,
		Description:  req.Description,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Location:     req.Location,
		Capacity:     req.Capacity,
		RSVPDeadline: req.RSVPDeadline,
	}
	id, err := s.repo.CreateActivity(ctx.Request.Context(), activity)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create activity")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("activity_id", id).Msg("activity created")
	s.scheduleReminder(string(rsvp.KindActivity), id, req.RSVPDeadline)
	dto.SuccessCreatedResponse(ctx, activity)
}

// scheduleReminder queues a delayed message that fires reminderLead before
// the deadline. Deadlines already inside the lead window fire immediately;
// past deadlines schedule nothing.
func (s *service) scheduleReminder(entityType string, id int64, deadline *time.Time) {
	if s.rbt == nil || deadline == nil || time.Now().After(*deadline) {
		return
	}

	delay := time.Until(deadline.Add(-reminderLead))
	if delay < 0 {
		delay = 0
	}

	msg := dto.ReminderMessage{EntityType: entityType, EntityID: id, Deadline: *deadline}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal reminder message")
		return
	}
	if err := s.rbt.Publish(payload, delay); err != nil {
		s.log.Error().Err(err).Msg("failed to publish reminder message to RabbitMQ")
	}
}
