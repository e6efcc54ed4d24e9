package mailer

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/rs/zerolog"

	"weddinghub/internal/model"
)

// Config holds the SMTP relay settings. An empty Host disables sending.
type Config struct {
	Host     string
	Port     int
	From     string
	Password string
}

func (c Config) Enabled() bool { return c.Host != "" }

func (c Config) send(log *zerolog.Logger, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		c.From, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	auth := smtp.PlainAuth("", c.From, c.Password, c.Host)

	if err := smtp.SendMail(addr, auth, c.From, []string{to}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send email to %s: %v", to, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("email sent to %s (subject: %s)", to, subject)
	return nil
}

// SendRSVPConfirmation notifies a guest that their response has been recorded.
func SendRSVPConfirmation(log *zerolog.Logger, cfg Config, guestName, entityName string, status model.Status, to string) error {
	var subject, body string
	switch status {
	case model.StatusAttending:
		subject = fmt.Sprintf("You're confirmed for %s", entityName)
		body = fmt.Sprintf("Hi %s,\n\nYour RSVP for %s is confirmed. We look forward to celebrating with you!", guestName, entityName)
	case model.StatusDeclined:
		subject = fmt.Sprintf("Your RSVP for %s", entityName)
		body = fmt.Sprintf("Hi %s,\n\nWe've recorded that you won't be joining %s. You'll be missed!", guestName, entityName)
	case model.StatusMaybe:
		subject = fmt.Sprintf("Your RSVP for %s", entityName)
		body = fmt.Sprintf("Hi %s,\n\nWe've noted you as a maybe for %s. Let us know once your plans firm up.", guestName, entityName)
	default:
		subject = fmt.Sprintf("RSVP started for %s", entityName)
		body = fmt.Sprintf("Hi %s,\n\nWe've saved your RSVP for %s. Don't forget to confirm your response before the deadline.", guestName, entityName)
	}
	return cfg.send(log, to, subject, body)
}

// SendDeadlineReminder nudges a guest whose RSVP is still pending.
func SendDeadlineReminder(log *zerolog.Logger, cfg Config, guestName, entityName string, deadline time.Time, to string) error {
	subject := fmt.Sprintf("RSVP reminder: %s", entityName)
	body := fmt.Sprintf(
		"Hi %s,\n\nWe haven't received your RSVP for %s yet. Responses close on %s — please reply before then so we can save your seat.",
		guestName, entityName, deadline.Format("January 2, 2006 15:04 MST"),
	)
	return cfg.send(log, to, subject, body)
}
