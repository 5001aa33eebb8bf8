package domain

import "time"

// Claves de la tabla settings que consume el flujo OTP.
const (
	SettingStoreName            = "STORE_NAME"
	SettingFromEmail            = "FROM_EMAIL"
	SettingEmailAPIKey          = "RESEND_API_KEY"
	SettingRateLimitWindow      = "OTP_RATE_LIMIT_WINDOW"
	SettingRateLimitMaxAttempts = "OTP_RATE_LIMIT_MAX_ATTEMPTS"
	SettingBlockDuration        = "OTP_RATE_LIMIT_BLOCK_DURATION"
)

var OTPSettingKeys = []string{
	SettingStoreName,
	SettingFromEmail,
	SettingEmailAPIKey,
	SettingRateLimitWindow,
	SettingRateLimitMaxAttempts,
	SettingBlockDuration,
}

const (
	DefaultRateLimitWindow      = 60 * time.Second
	DefaultRateLimitMaxAttempts = 3
	DefaultBlockDuration        = 300 * time.Second
)

// OTPSettings es una foto inmutable de la configuración dinámica de la tienda.
type OTPSettings struct {
	StoreName            string
	FromEmail            string
	EmailAPIKey          string
	RateLimitWindow      time.Duration
	RateLimitMaxAttempts int
	BlockDuration        time.Duration
}

// BlockThreshold es la cantidad de códigos dentro de BlockDuration que dispara el bloqueo.
func (s OTPSettings) BlockThreshold() int {
	return 2 * s.RateLimitMaxAttempts
}

// MinWait es el espaciado mínimo entre dos emisiones, truncado a segundos.
func (s OTPSettings) MinWait() time.Duration {
	if s.RateLimitMaxAttempts <= 0 {
		return 0
	}
	secs := int64(s.RateLimitWindow/time.Second) / int64(s.RateLimitMaxAttempts)
	return time.Duration(secs) * time.Second
}
