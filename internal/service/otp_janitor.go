package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"theme-store/internal/domain"
	"theme-store/internal/repository"
)

// OTPJanitor borra códigos vencidos. Conserva las filas mientras todavía cuentan
// para el rate limit o para una sesión de recuperación.
type OTPJanitor struct {
	logger   *zap.Logger
	otps     repository.OTPRepository
	settings SettingsSource
	now      func() time.Time
}

func NewOTPJanitor(logger *zap.Logger, otps repository.OTPRepository, settings SettingsSource) *OTPJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings == nil {
		settings = StaticSettings{}
	}
	return &OTPJanitor{
		logger:   logger,
		otps:     otps,
		settings: settings,
		now:      time.Now,
	}
}

// Sweep borra las filas cuyo vencimiento quedó fuera de todas las ventanas.
func (j *OTPJanitor) Sweep(ctx context.Context) (int64, error) {
	return j.otps.DeleteExpired(ctx, j.now().UTC().Add(-j.retention()))
}

func (j *OTPJanitor) retention() time.Duration {
	cfg := j.settings.Current()
	return max(domain.RecoveryResetTTL, cfg.BlockDuration, cfg.RateLimitWindow)
}

// Run ejecuta Sweep cada interval hasta que ctx se cancele. interval <= 0 lo desactiva.
func (j *OTPJanitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := j.Sweep(sweepCtx)
			cancel()
			if err != nil {
				j.logger.Warn("otp cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				j.logger.Info("expired otps deleted", zap.Int64("count", n))
			}
		}
	}
}
