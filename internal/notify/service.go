// Package notify e-mails control owners when evidence is requested from them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"gopkg.in/gomail.v2"

	"controlroom/internal/ledger"
	"controlroom/internal/logger"
	"controlroom/internal/store"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Service sends task e-mails over SMTP.
type Service struct {
	config  Config
	logger  *logger.Logger
	deliver func(*gomail.Message) error
}

type Option func(*Service)

// WithSender routes messages through s instead of dialing the SMTP server.
func WithSender(s gomail.Sender) Option {
	return func(svc *Service) {
		svc.deliver = func(m *gomail.Message) error { return gomail.Send(s, m) }
	}
}

func NewService(config Config, log *logger.Logger, opts ...Option) *Service {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	svc := &Service{
		config:  config,
		logger:  log.WithComponent("notify"),
		deliver: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != 0 && s.config.From != ""
}

type taskEmailData struct {
	OwnerName   string
	ControlID   string
	ControlName string
	RequestedBy string
	Message     string
	Reminder    bool
}

// TaskRequested tells the control owner about a new or refreshed evidence
// request. Nothing is sent when SMTP is unconfigured or the owner has no
// address.
func (s *Service) TaskRequested(_ context.Context, task store.ControlTask, control store.Control, outcome ledger.TaskOutcome) error {
	if !s.IsConfigured() {
		s.logger.Debug().Str("task_id", task.ID).Msg("smtp not configured, skipping task e-mail")
		return nil
	}
	if control.OwnerEmail == "" {
		s.logger.Debug().Str("control_id", control.ID).Msg("control owner has no e-mail address")
		return nil
	}

	m, err := s.composeTaskEmail(task, control, outcome)
	if err != nil {
		return err
	}
	if err := s.deliver(m); err != nil {
		return fmt.Errorf("send task e-mail: %w", err)
	}
	s.logger.Info().Str("task_id", task.ID).Str("to", control.OwnerEmail).Msg("task e-mail sent")
	return nil
}

func (s *Service) composeTaskEmail(task store.ControlTask, control store.Control, outcome ledger.TaskOutcome) (*gomail.Message, error) {
	data := taskEmailData{
		OwnerName:   control.Owner,
		ControlID:   control.ID,
		ControlName: control.Name,
		RequestedBy: task.RequestedBy,
		Message:     task.Message,
		Reminder:    outcome == ledger.TaskUpdated,
	}

	subject := fmt.Sprintf("Evidence requested for %s %s", control.ID, control.Name)
	if data.Reminder {
		subject = fmt.Sprintf("Updated evidence request for %s %s", control.ID, control.Name)
	}

	html, err := renderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render task template: %w", err)
	}
	text, err := renderText(data)
	if err != nil {
		return nil, fmt.Errorf("render task template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.config.From, s.config.FromName))
	m.SetAddressHeader("To", control.OwnerEmail, control.Owner)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)
	return m, nil
}

var (
	htmlTemplates = template.Must(template.New("task").Parse(taskEmailHTML))
	textTemplates = texttemplate.Must(texttemplate.New("task").Parse(taskEmailText))
)

func renderHTML(data any) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplates.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderText(data any) (string, error) {
	var buf bytes.Buffer
	if err := textTemplates.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const taskEmailText = `Hi {{.OwnerName}},

{{.RequestedBy}} {{if .Reminder}}updated the evidence request{{else}}requested additional evidence{{end}} for {{.ControlID}} {{.ControlName}}:

{{.Message}}

Upload the evidence and resolve the task once it is attached.
`

const taskEmailHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Evidence request for {{.ControlID}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .request { background: #f4f7fb; border-left: 4px solid #0066cc; padding: 12px; margin: 20px 0; white-space: pre-wrap; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.ControlID}} {{.ControlName}}</h1>
    </div>

    <p>Hi {{.OwnerName}},</p>

    <p>{{.RequestedBy}} {{if .Reminder}}updated the evidence request{{else}}requested additional evidence{{end}} for this control.</p>

    <div class="request">{{.Message}}</div>

    <div class="footer">
        <p>Upload the evidence and resolve the task once it is attached.</p>
    </div>
</body>
</html>`
