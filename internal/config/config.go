package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"theme-store/internal/domain"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32  `env:"DB_MIN_CONNS" envDefault:"1"`
	SiteURL       string `env:"SITE_URL" envDefault:"http://localhost:3000"`
	// Vacío usa SITE_URL como único origen permitido.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	EmailAPIBaseURL string `env:"EMAIL_API_BASE_URL" envDefault:"https://api.resend.com"`

	SettingsReloadInterval time.Duration `env:"SETTINGS_RELOAD_INTERVAL" envDefault:"1m"`
	OTPCleanupInterval     time.Duration `env:"OTP_CLEANUP_INTERVAL" envDefault:"15m"`
	AuthRateLimitPerMinute int           `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// Valores de respaldo cuando la tabla settings no define la clave.
	Store StoreDefaults
}

// StoreDefaults agrupa los settings de tienda que pueden venir del entorno.
type StoreDefaults struct {
	StoreName            string `env:"STORE_NAME" envDefault:"Theme Store"`
	FromEmail            string `env:"FROM_EMAIL"`
	EmailAPIKey          string `env:"RESEND_API_KEY"`
	RateLimitWindow      int    `env:"OTP_RATE_LIMIT_WINDOW" envDefault:"60"`
	RateLimitMaxAttempts int    `env:"OTP_RATE_LIMIT_MAX_ATTEMPTS" envDefault:"3"`
	BlockDuration        int    `env:"OTP_RATE_LIMIT_BLOCK_DURATION" envDefault:"300"`
}

// OTPSettings convierte los valores del entorno (en segundos) a la foto de dominio.
func (d StoreDefaults) OTPSettings() domain.OTPSettings {
	return domain.OTPSettings{
		StoreName:            d.StoreName,
		FromEmail:            d.FromEmail,
		EmailAPIKey:          d.EmailAPIKey,
		RateLimitWindow:      time.Duration(d.RateLimitWindow) * time.Second,
		RateLimitMaxAttempts: d.RateLimitMaxAttempts,
		BlockDuration:        time.Duration(d.BlockDuration) * time.Second,
	}
}

// CORSOrigins devuelve los orígenes permitidos para el storefront.
func (c *Config) CORSOrigins() []string {
	if len(c.CORSAllowedOrigins) > 0 {
		return c.CORSAllowedOrigins
	}
	if c.SiteURL == "" {
		return nil
	}
	return []string{strings.TrimRight(c.SiteURL, "/")}
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
