package domain

import (
	"strings"
	"time"
)

// OTPPurpose indica para qué se emitió un código.
type OTPPurpose string

const (
	OTPPurposeSignup   OTPPurpose = "signup"
	OTPPurposeLogin    OTPPurpose = "login"
	OTPPurposeRecovery OTPPurpose = "recovery"
)

const (
	OTPTTL            = 10 * time.Minute
	RecoveryResetTTL  = 15 * time.Minute
	OTPCodeLength     = 6
	MinPasswordLength = 6
)

// ParseOTPPurpose normaliza y valida un tipo recibido del cliente.
func ParseOTPPurpose(raw string) (OTPPurpose, bool) {
	p := OTPPurpose(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.Valid()
}

func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeSignup, OTPPurposeLogin, OTPPurposeRecovery:
		return true
	}
	return false
}

// OTPCode es una fila de otp_codes. Puede haber varias por email.
type OTPCode struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Code      string     `json:"-"`
	Purpose   OTPPurpose `json:"purpose"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	// nil en códigos invalidados por uno más nuevo
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func (o OTPCode) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}
