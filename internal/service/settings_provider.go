package service

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"theme-store/internal/domain"
	"theme-store/internal/repository"
)

// SettingsSource entrega la foto vigente de settings de la tienda.
type SettingsSource interface {
	Current() domain.OTPSettings
}

// SettingsProvider mantiene en memoria los settings leídos de la tabla settings
// y los recarga de forma periódica. Las claves ausentes o inválidas usan el fallback.
type SettingsProvider struct {
	logger   *zap.Logger
	repo     repository.SettingsRepository
	fallback domain.OTPSettings
	current  atomic.Pointer[domain.OTPSettings]
}

func NewSettingsProvider(logger *zap.Logger, repo repository.SettingsRepository, fallback domain.OTPSettings) *SettingsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback = withSettingsDefaults(fallback)
	p := &SettingsProvider{
		logger:   logger,
		repo:     repo,
		fallback: fallback,
	}
	snapshot := fallback
	p.current.Store(&snapshot)
	return p
}

func (p *SettingsProvider) Current() domain.OTPSettings {
	return *p.current.Load()
}

// Reload relee la tabla. Ante un error se conserva la foto anterior.
func (p *SettingsProvider) Reload(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	values, err := p.repo.GetMany(ctx, domain.OTPSettingKeys)
	if err != nil {
		return err
	}
	snapshot := p.merge(values)
	p.current.Store(&snapshot)
	return nil
}

// Run recarga cada interval hasta que ctx se cancele. interval <= 0 lo desactiva.
func (p *SettingsProvider) Run(ctx context.Context, interval time.Duration) {
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
			reloadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.Reload(reloadCtx); err != nil {
				p.logger.Warn("reload settings failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (p *SettingsProvider) merge(values map[string]string) domain.OTPSettings {
	s := p.fallback
	if v := strings.TrimSpace(values[domain.SettingStoreName]); v != "" {
		s.StoreName = v
	}
	if v := strings.TrimSpace(values[domain.SettingFromEmail]); v != "" {
		s.FromEmail = v
	}
	if v := strings.TrimSpace(values[domain.SettingEmailAPIKey]); v != "" {
		s.EmailAPIKey = v
	}
	if n, ok := p.positiveInt(values, domain.SettingRateLimitWindow); ok {
		s.RateLimitWindow = time.Duration(n) * time.Second
	}
	if n, ok := p.positiveInt(values, domain.SettingRateLimitMaxAttempts); ok {
		s.RateLimitMaxAttempts = n
	}
	if n, ok := p.positiveInt(values, domain.SettingBlockDuration); ok {
		s.BlockDuration = time.Duration(n) * time.Second
	}
	return s
}

func (p *SettingsProvider) positiveInt(values map[string]string, key string) (int, bool) {
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		p.logger.Warn("ignoring invalid setting", zap.String("key", key), zap.String("value", raw))
		return 0, false
	}
	return n, true
}

func withSettingsDefaults(s domain.OTPSettings) domain.OTPSettings {
	if s.RateLimitWindow <= 0 {
		s.RateLimitWindow = domain.DefaultRateLimitWindow
	}
	if s.RateLimitMaxAttempts <= 0 {
		s.RateLimitMaxAttempts = domain.DefaultRateLimitMaxAttempts
	}
	if s.BlockDuration <= 0 {
		s.BlockDuration = domain.DefaultBlockDuration
	}
	return s
}

// StaticSettings sirve una foto fija; útil cuando no hay base de settings.
type StaticSettings domain.OTPSettings

func (s StaticSettings) Current() domain.OTPSettings {
	return withSettingsDefaults(domain.OTPSettings(s))
}
