package domain

import "time"

type OTPPurpose string

const (
	OTPEmailVerification OTPPurpose = "email_verification"
	OTPPasswordReset     OTPPurpose = "password_reset"
)

const OTPTTL = 10 * time.Minute

type OTPVerification struct {
	VerificationID string     `json:"verification_id"`
	Email          string     `json:"email"`
	Code           string     `json:"-"`
	Purpose        OTPPurpose `json:"purpose"`
	Used           bool       `json:"used"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (o OTPVerification) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// OTPTicket is what callers get back after an OTP was issued.
type OTPTicket struct {
	VerificationID string    `json:"verification_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterInput struct {
	FirstName     string
	LastName      string
	Email         string
	PhoneNumber   string
	Address       string
	State         string
	PinCode       string
	TermsAccepted bool
}

type Registration struct {
	User         User      `json:"user"`
	TempPassword string    `json:"temp_password"`
	Tokens       TokenPair `json:"tokens"`
}

type LoginResult struct {
	User             User      `json:"user"`
	Tokens           TokenPair `json:"tokens"`
	UsedTempPassword bool      `json:"used_temp_password"`
	Message          string    `json:"message,omitempty"`
}
