package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

//go:embed files/*.tmpl
var files embed.FS

const (
	kindWelcome       = "welcome"
	kindOTP           = "otp"
	kindStatus        = "status"
	kindNote          = "note"
	kindPasswordReset = "password_reset"
)

var statusColors = map[domain.DocumentStatus]string{
	domain.DocumentPending:     "#6b7280",
	domain.DocumentUnderReview: "#f59e0b",
	domain.DocumentApproved:    "#059669",
	domain.DocumentRejected:    "#dc2626",
	domain.DocumentSigned:      "#7c3aed",
}

var statusOutcomes = map[domain.DocumentStatus]string{
	domain.DocumentApproved: "Great news! Your document has been approved and is ready for the next step.",
	domain.DocumentRejected: "Action required: your document needs attention. Please review and resubmit with the necessary corrections.",
	domain.DocumentSigned:   "Complete! Your document has been successfully signed and processed.",
}

// Composer renders notices with the embedded html and text templates.
type Composer struct {
	html map[string]*htmltemplate.Template
	text map[string]*texttemplate.Template
	now  func() time.Time
}

type view struct {
	Heading string
	Color   string
	Name    string
	Year    int

	Email        string
	TempPassword string

	Intro     string
	Code      string
	ExpiresIn string

	DocumentType   string
	TransactionKey string
	StatusLabel    string
	SignedLink     string
	Outcome        string

	AuthorName    string
	PriorityLabel string
	NoteText      string
	Internal      bool
}

func New() (*Composer, error) {
	c := &Composer{
		html: make(map[string]*htmltemplate.Template),
		text: make(map[string]*texttemplate.Template),
		now:  time.Now,
	}
	for _, kind := range []string{kindWelcome, kindOTP, kindStatus, kindNote, kindPasswordReset} {
		h, err := htmltemplate.ParseFS(files, "files/layout.html.tmpl", "files/"+kind+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", kind, err)
		}
		t, err := texttemplate.ParseFS(files, "files/"+kind+".txt.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", kind, err)
		}
		c.html[kind] = h
		c.text[kind] = t
	}
	return c, nil
}

func (c *Composer) Welcome(n domain.WelcomeNotice) (domain.EmailMessage, error) {
	return c.render(kindWelcome, n.Email, "Welcome to Deco Platform - Your Account Details", view{
		Heading:      "Welcome to Deco Platform!",
		Color:        "#4f46e5",
		Name:         displayName(n.FirstName),
		Email:        n.Email,
		TempPassword: n.TempPassword,
	})
}

func (c *Composer) OTP(n domain.OTPNotice) (domain.EmailMessage, error) {
	v := view{
		Name:      displayName(n.FirstName),
		Code:      n.Code,
		ExpiresIn: fmt.Sprintf("%d minutes", int(domain.OTPTTL/time.Minute)),
	}
	var subject string
	switch n.Purpose {
	case domain.OTPPasswordReset:
		subject = "Password Reset OTP - Deco Platform"
		v.Heading = "Password Reset Request"
		v.Color = "#dc2626"
		v.Intro = "We received a request to reset your password for your Deco Platform account."
	case domain.OTPEmailVerification:
		subject = "Email Verification OTP - Deco Platform"
		v.Heading = "Verify Your Email"
		v.Color = "#059669"
		v.Intro = "Please verify your email address to complete your account setup."
	default:
		return domain.EmailMessage{}, fmt.Errorf("unknown otp purpose %q", n.Purpose)
	}
	return c.render(kindOTP, n.Email, subject, v)
}

func (c *Composer) Status(n domain.StatusNotice) (domain.EmailMessage, error) {
	title := n.Status.StatusTitle()
	color, ok := statusColors[n.Status]
	if !ok {
		color = statusColors[domain.DocumentPending]
	}
	return c.render(kindStatus, n.Recipient.Email, fmt.Sprintf("%s - %s | Deco Platform", title, n.DocumentType), view{
		Heading:        title,
		Color:          color,
		Name:           displayName(n.Recipient.FirstName),
		DocumentType:   n.DocumentType,
		TransactionKey: n.TransactionKey,
		StatusLabel:    strings.ToUpper(string(n.Status)),
		SignedLink:     n.SignedLink,
		Outcome:        statusOutcomes[n.Status],
	})
}

func (c *Composer) Note(n domain.NoteNotice) (domain.EmailMessage, error) {
	return c.render(kindNote, n.Recipient.Email, NoteSubject(n.DocumentType, n.Priority), view{
		Heading:        "New note on " + n.DocumentType,
		Color:          priorityColor(n.Priority),
		Name:           displayName(n.Recipient.FirstName),
		DocumentType:   n.DocumentType,
		TransactionKey: n.TransactionKey,
		AuthorName:     n.AuthorName,
		PriorityLabel:  string(n.Priority),
		NoteText:       n.NoteText,
		Internal:       n.Internal,
	})
}

func (c *Composer) PasswordReset(n domain.PasswordResetNotice) (domain.EmailMessage, error) {
	return c.render(kindPasswordReset, n.Email, "Password Reset Successful - Deco Platform", view{
		Heading: "Password Reset Successful",
		Color:   "#059669",
		Name:    displayName(n.FirstName),
	})
}

// NoteSubject prefixes escalated priorities so they stand out in an inbox.
func NoteSubject(documentType string, priority domain.NotePriority) string {
	subject := "New note on " + documentType + " | Deco Platform"
	switch priority {
	case domain.PriorityUrgent:
		return "[URGENT] " + subject
	case domain.PriorityHigh:
		return "[HIGH] " + subject
	default:
		return subject
	}
}

func (c *Composer) render(kind, to, subject string, v view) (domain.EmailMessage, error) {
	if strings.TrimSpace(to) == "" {
		return domain.EmailMessage{}, fmt.Errorf("render %s: recipient email is empty", kind)
	}
	v.Year = c.now().Year()

	var html bytes.Buffer
	if err := c.html[kind].ExecuteTemplate(&html, "layout", v); err != nil {
		return domain.EmailMessage{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	var text bytes.Buffer
	if err := c.text[kind].Execute(&text, v); err != nil {
		return domain.EmailMessage{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	return domain.EmailMessage{
		To:       to,
		Subject:  subject,
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}

func displayName(first string) string {
	if s := strings.TrimSpace(first); s != "" {
		return s
	}
	return "User"
}

func priorityColor(p domain.NotePriority) string {
	switch p {
	case domain.PriorityUrgent:
		return "#dc2626"
	case domain.PriorityHigh:
		return "#f59e0b"
	default:
		return "#4f46e5"
	}
}
