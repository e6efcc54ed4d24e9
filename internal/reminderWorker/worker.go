package reminderWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"weddinghub/internal/dto"
	"weddinghub/internal/mailer"
	"weddinghub/internal/rabbit"
	"weddinghub/internal/repo"
	"weddinghub/internal/rsvp"
)

// Reader consumes scheduled deadline-reminder messages and emails every
// guest whose RSVP for the entity is still pending.
type Reader struct {
	RMQ     *rabbit.Client
	repo    repo.Repository
	mailCfg mailer.Config
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, mailCfg mailer.Config) *Reader {
	return &Reader{
		RMQ:     rmq,
		repo:    repo,
		mailCfg: mailCfg,
		done:    make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("RSVP reminder worker started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.ReminderMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal reminder message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("entity_type", msg.EntityType).
				Int64("entity_id", msg.EntityID).
				Msg("Received deadline reminder message")

			ref := rsvp.EntityRef{}
			if msg.EntityType == string(rsvp.KindEvent) {
				ref.EventID = &msg.EntityID
			} else {
				ref.ActivityID = &msg.EntityID
			}

			recipients, err := r.repo.PendingRecipients(cctx, ref)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("entity_id", msg.EntityID).
					Msg("Failed to load pending recipients")
				return err
			}

			if len(recipients) == 0 {
				zlog.Logger.Info().
					Int64("entity_id", msg.EntityID).
					Msg("No pending RSVPs left, skipping reminders")
				return nil
			}

			if !r.mailCfg.Enabled() {
				zlog.Logger.Warn().Msg("SMTP disabled, dropping reminder emails")
				return nil
			}

			sent := 0
			for _, rec := range recipients {
				name := rec.FirstName + " " + rec.LastName
				if err := mailer.SendDeadlineReminder(
					&zlog.Logger, r.mailCfg, name, rec.EntityName, msg.Deadline, rec.Email,
				); err != nil {
					zlog.Logger.Warn().
						Err(err).
						Str("email", rec.Email).
						Msg("Failed to send reminder email")
					continue
				}
				sent++
			}

			zlog.Logger.Info().
				Int("sent", sent).
				Int("pending", len(recipients)).
				Int64("entity_id", msg.EntityID).
				Msg("Reminder emails processed")

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("RSVP reminder worker stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
