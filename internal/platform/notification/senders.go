package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	from     string
	username string
	password string
	host     string
	port     int
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{from: from, username: username, password: password, host: host, port: port}
}

func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string) error {
	if s.host == "" || s.from == "" {
		return fmt.Errorf("missing SMTP configuration")
	}
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		s.from, to, subject, body,
	))
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	if err := smtp.SendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// HTTPSender posts mail to a transactional email provider's JSON API.
type HTTPSender struct {
	client *resty.Client
	url    string
	from   string
}

type httpEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewHTTPSender(apiURL, apiKey, from string) *HTTPSender {
	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)
	return &HTTPSender{client: client, url: apiURL, from: from}
}

func (s *HTTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(httpEmailRequest{From: s.from, To: []string{to}, Subject: subject, HTML: body}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("email api request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("email api returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email")
	return nil
}
