// Package notification renders transactional email from an embedded template
// catalogue and delivers it through a pluggable EmailSender. Email is never
// sent on the request path: services go through a Dispatcher, which enqueues
// tasks that the worker executes with the handlers from RegisterHandlers.
package notification

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// EmailSender delivers a rendered HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template is one entry of the email catalogue.
type Template struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

const (
	TemplateActivation          = "activation"
	TemplatePasswordReset       = "password_reset"
	TemplateCaregiverInvitation = "caregiver_invitation"
	TemplatePatientWelcome      = "patient_welcome"
)

//go:embed templates.yaml
var builtinTemplates []byte

// TemplateEngine holds templates by ID and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine loads the embedded catalogue.
func NewTemplateEngine() (*TemplateEngine, error) {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	if err := e.Load(builtinTemplates); err != nil {
		return nil, fmt.Errorf("load builtin templates: %w", err)
	}
	return e, nil
}

// Load parses a YAML list of templates and registers each one.
func (e *TemplateEngine) Load(doc []byte) error {
	var list []Template
	if err := yaml.Unmarshal(doc, &list); err != nil {
		return err
	}
	for _, t := range list {
		if t.ID == "" {
			return errors.New("template without id")
		}
		e.RegisterTemplate(t)
	}
	return nil
}

func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render replaces {{key}} placeholders with HTML-escaped values. Keys without
// data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	// One pass per field so substituted values are never expanded again.
	subjectPairs := make([]string, 0, 2*len(data))
	bodyPairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subjectPairs = append(subjectPairs, placeholder, v)
		bodyPairs = append(bodyPairs, placeholder, html.EscapeString(v))
	}
	subject = strings.NewReplacer(subjectPairs...).Replace(t.Subject)
	body = strings.NewReplacer(bodyPairs...).Replace(t.Body)
	return subject, body, nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
