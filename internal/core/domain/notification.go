package domain

// EmailMessage is a rendered mail ready for the gateway.
type EmailMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

type DeliveryReceipt struct {
	MessageID string `json:"message_id"`
}

type RecipientRole string

const (
	RecipientAdmin         RecipientRole = "admin"
	RecipientDocumentOwner RecipientRole = "document_owner"
)

type Recipient struct {
	UserID    string
	Email     string
	FirstName string
	Role      RecipientRole
}

type NoteNotice struct {
	Recipient      Recipient
	DocumentType   string
	TransactionKey string
	NoteText       string
	AuthorName     string
	NoteType       NoteType
	Priority       NotePriority
	Internal       bool
}

type StatusNotice struct {
	Recipient      Recipient
	DocumentType   string
	TransactionKey string
	Status         DocumentStatus
	SignedLink     string
}

type WelcomeNotice struct {
	Email        string
	FirstName    string
	TempPassword string
}

type OTPNotice struct {
	Email     string
	FirstName string
	Code      string
	Purpose   OTPPurpose
}

type PasswordResetNotice struct {
	Email     string
	FirstName string
}

// DeliveryReport summarizes a best-effort dispatch. It never fails the caller.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failures  []DeliveryFailure
}

type DeliveryFailure struct {
	To  string
	Err error
}

func (r DeliveryReport) Failed() int {
	return len(r.Failures)
}
