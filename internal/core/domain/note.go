package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type NoteType string

const (
	NoteTypeUser   NoteType = "user"
	NoteTypeAdmin  NoteType = "admin"
	NoteTypeSystem NoteType = "system"
)

func ParseNoteType(raw string) (NoteType, error) {
	switch t := NoteType(strings.TrimSpace(raw)); t {
	case "":
		return NoteTypeUser, nil
	case NoteTypeUser, NoteTypeAdmin, NoteTypeSystem:
		return t, nil
	default:
		return "", Fail(ErrInvalidArgument, "parse note type", "invalid note type: "+raw)
	}
}

type NotePriority string

const (
	PriorityLow    NotePriority = "low"
	PriorityMedium NotePriority = "medium"
	PriorityHigh   NotePriority = "high"
	PriorityUrgent NotePriority = "urgent"
)

func ParseNotePriority(raw string) (NotePriority, error) {
	switch p := NotePriority(strings.TrimSpace(raw)); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", Fail(ErrInvalidArgument, "parse note priority", "invalid note priority: "+raw)
	}
}

// Escalated reports whether the priority pulls every admin into the recipient set.
func (p NotePriority) Escalated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

const MaxNoteLength = 2000

// NormalizeNoteText trims the text and enforces the length bounds.
func NormalizeNoteText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", Fail(ErrInvalidArgument, "note text", "note text is required")
	}
	if utf8.RuneCountInString(text) > MaxNoteLength {
		return "", Fail(ErrInvalidArgument, "note text", "note text must be at most 2000 characters")
	}
	return text, nil
}

type NoteAttachment struct {
	FileName   string    `json:"file_name"`
	FileURL    string    `json:"file_url"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type RequestContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Note is a comment on a document. TransactionRef is the owning
// transaction's internal id, TransactionKey its business key.
type Note struct {
	ID             string           `json:"id"`
	DocumentID     string           `json:"document_id"`
	AuthorID       string           `json:"user_id"`
	TransactionRef string           `json:"transaction_ref"`
	TransactionKey string           `json:"transaction_id"`
	Text           string           `json:"note_text"`
	Type           NoteType         `json:"note_type"`
	Priority       NotePriority     `json:"priority"`
	Internal       bool             `json:"is_internal"`
	Attachments    []NoteAttachment `json:"attachments"`
	Metadata       RequestContext   `json:"metadata"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type AddNoteInput struct {
	DocumentID  string
	Text        string
	Type        string
	Priority    string
	Internal    bool
	Attachments []NoteAttachment
	Context     RequestContext
}

// NotePatch carries the only mutable note fields.
type NotePatch struct {
	Text     *string
	Priority *NotePriority
	Internal *bool
}

func (p NotePatch) Empty() bool {
	return p.Text == nil && p.Priority == nil && p.Internal == nil
}

// NoteVisibility restricts which notes a listing returns.
type NoteVisibility struct {
	All      bool
	ViewerID string
}

func VisibilityFor(p Principal) NoteVisibility {
	if p.IsAdmin() {
		return NoteVisibility{All: true}
	}
	return NoteVisibility{ViewerID: p.UserID}
}

// Allows reports whether n is visible: public notes always, internal notes
// only to their author or when the filter is unrestricted.
func (v NoteVisibility) Allows(n Note) bool {
	return v.All || !n.Internal || (v.ViewerID != "" && n.AuthorID == v.ViewerID)
}

type NoteStats struct {
	TotalNotes        int        `json:"total_notes"`
	UserNotes         int        `json:"user_notes"`
	AdminNotes        int        `json:"admin_notes"`
	HighPriorityNotes int        `json:"high_priority_notes"`
	UrgentNotes       int        `json:"urgent_notes"`
	InternalNotes     int        `json:"internal_notes"`
	LastNoteDate      *time.Time `json:"last_note_date"`
}
