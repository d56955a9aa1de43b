package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/platform/queue"
)

// Task names, one per template so queue metrics break down by email kind.
const (
	TaskActivation          = "email.activation"
	TaskPasswordReset       = "email.password_reset"
	TaskCaregiverInvitation = "email.caregiver_invitation"
	TaskPatientWelcome      = "email.patient_welcome"
)

var taskTemplates = map[string]string{
	TaskActivation:          TemplateActivation,
	TaskPasswordReset:       TemplatePasswordReset,
	TaskCaregiverInvitation: TemplateCaregiverInvitation,
	TaskPatientWelcome:      TemplatePatientWelcome,
}

// EmailTask is the queued payload of every email task.
type EmailTask struct {
	To   string            `json:"to"`
	Data map[string]string `json:"data"`
}

// RegisterHandlers wires one handler per email task into mux. Each renders
// its template and hands the result to sender.
func RegisterHandlers(mux *queue.Mux, engine *TemplateEngine, sender EmailSender, logger zerolog.Logger) {
	for name, tpl := range taskTemplates {
		name, tpl := name, tpl
		mux.Handle(name, func(ctx context.Context, payload json.RawMessage) error {
			var t EmailTask
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			subject, body, err := engine.Render(tpl, t.Data)
			if err != nil {
				return err
			}
			if err := sender.SendEmail(ctx, t.To, subject, body); err != nil {
				return err
			}
			logger.Info().Str("task", name).Str("to", t.To).Msg("email sent")
			return nil
		})
	}
}

// Links builds the URLs embedded in emails.
type Links struct {
	// PublicBaseURL is where this API is reachable; activation links hit it directly.
	PublicBaseURL string
	// FrontendURL hosts the password reset and invitation pages.
	FrontendURL string
}

func (l Links) Activation(token string) string {
	return strings.TrimRight(l.PublicBaseURL, "/") + "/api/v1/auth/accounts/verify-account/" + token
}

func (l Links) PasswordReset(token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + "/reset-password/" + token
}

func (l Links) Invitation(token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + "/accept-invite/" + token
}

func (l Links) ForgotPassword() string {
	return strings.TrimRight(l.FrontendURL, "/") + "/forgot-password"
}

// Dispatcher turns domain events into queued email tasks.
type Dispatcher struct {
	enq           queue.Enqueuer
	links         Links
	activationTTL time.Duration
	resetTTL      time.Duration
}

func NewDispatcher(enq queue.Enqueuer, links Links, activationTTL, resetTTL time.Duration) *Dispatcher {
	return &Dispatcher{enq: enq, links: links, activationTTL: activationTTL, resetTTL: resetTTL}
}

func (d *Dispatcher) SendActivation(ctx context.Context, to, name, token string) error {
	return d.enq.Enqueue(ctx, TaskActivation, EmailTask{To: to, Data: map[string]string{
		"name":       name,
		"link":       d.links.Activation(token),
		"expires_in": humanDuration(d.activationTTL),
	}})
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, token string) error {
	return d.enq.Enqueue(ctx, TaskPasswordReset, EmailTask{To: to, Data: map[string]string{
		"email":      to,
		"link":       d.links.PasswordReset(token),
		"expires_in": humanDuration(d.resetTTL),
	}})
}

func (d *Dispatcher) SendInvitation(ctx context.Context, to, organization, role, token string, expiresAt time.Time) error {
	return d.enq.Enqueue(ctx, TaskCaregiverInvitation, EmailTask{To: to, Data: map[string]string{
		"organization": organization,
		"role":         role,
		"link":         d.links.Invitation(token),
		"expires_at":   expiresAt.UTC().Format("2 January 2006 15:04 MST"),
	}})
}

func (d *Dispatcher) SendPatientWelcome(ctx context.Context, to, name, organization, medicalID string) error {
	return d.enq.Enqueue(ctx, TaskPatientWelcome, EmailTask{To: to, Data: map[string]string{
		"name":         name,
		"organization": organization,
		"medical_id":   medicalID,
		"link":         d.links.ForgotPassword(),
	}})
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
}
