package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"gshvpn_backend/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// loadTemplates email template'lerini yükler
func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"date": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.UTC().Format("02 Jan 2006")
		},
	}).ParseFS(templateFS, "templates/*.html")
}

type WelcomeData struct {
	Email string
}

type PaymentSuccessData struct {
	PlanName  string
	AmountUSD float64
	ExpiresAt *time.Time
	Server    string
}

type ExpiringSoonData struct {
	PlanName  string
	DaysLeft  int
	ExpiresAt *time.Time
}

type ExpiredData struct {
	PlanName  string
	ExpiresAt *time.Time
}

type RevokedData struct {
	PlanName string
}

var subjects = map[model.NotificationTemplate]string{
	model.TemplateWelcome:             "Welcome to GSH VPN",
	model.TemplatePaymentSuccess:      "Your GSH VPN access is ready",
	model.TemplateExpiringSoon:        "Your GSH VPN subscription expires in %d days",
	model.TemplateExpired:             "Your GSH VPN subscription has expired",
	model.TemplateSubscriptionRevoked: "Your GSH VPN subscription was cancelled",
}

// Renderer turns a template kind plus data into a subject and HTML body.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

func (r *Renderer) Render(kind model.NotificationTemplate, data interface{}) (string, string, error) {
	subject, ok := subjects[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", kind)
	}
	if d, ok := data.(ExpiringSoonData); ok {
		subject = fmt.Sprintf(subject, d.DaysLeft)
	}

	var body bytes.Buffer
	if err := r.templates.ExecuteTemplate(&body, string(kind)+".html", data); err != nil {
		return subject, "", fmt.Errorf("template execution error: %w", err)
	}
	return subject, body.String(), nil
}
