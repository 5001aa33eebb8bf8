package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmailRequired      = errors.New("email required")
	ErrCodeRequired       = errors.New("code required")
	ErrPasswordRequired   = errors.New("password required")
	ErrInvalidPurpose     = errors.New("invalid otp type")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidCode        = errors.New("invalid code")
	ErrCodeExpired        = errors.New("code expired")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account does not exist")
	ErrAccountInactive    = errors.New("account inactive")
	ErrRecoveryExpired    = errors.New("verification session expired")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type RateLimitReason string

const (
	RateLimitBlocked RateLimitReason = "blocked"
	RateLimitWindow  RateLimitReason = "window"
	RateLimitTooSoon RateLimitReason = "too_soon"
)

// RateLimitError describe cuál de los chequeos de emisión rechazó la solicitud.
type RateLimitError struct {
	Reason      RateLimitReason
	RetryAfter  time.Duration
	MaxAttempts int
	Window      time.Duration
}

func (e *RateLimitError) Error() string {
	switch e.Reason {
	case RateLimitBlocked:
		return fmt.Sprintf("too many otp requests, retry after %d minutes", CeilMinutes(e.RetryAfter))
	case RateLimitWindow:
		return fmt.Sprintf("max %d otps per %d seconds", e.MaxAttempts, int(e.Window/time.Second))
	default:
		return fmt.Sprintf("wait %d seconds", CeilSeconds(e.RetryAfter))
	}
}

func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
