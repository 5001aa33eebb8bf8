package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"theme-store/internal/domain"
)

func TestSettingsProvider_FallbackDefaults(t *testing.T) {
	p := NewSettingsProvider(zap.NewNop(), nil, domain.OTPSettings{StoreName: "Env Store"})

	got := p.Current()
	if got.StoreName != "Env Store" {
		t.Fatalf("expected env store name, got %q", got.StoreName)
	}
	if got.RateLimitWindow != 60*time.Second || got.RateLimitMaxAttempts != 3 || got.BlockDuration != 300*time.Second {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("reload without repo should be a no-op, got %v", err)
	}
}

func TestSettingsProvider_ReloadMergesTable(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{
		domain.SettingStoreName:            "WP Themes",
		domain.SettingFromEmail:            " hello@themes.test ",
		domain.SettingRateLimitWindow:      "120",
		domain.SettingRateLimitMaxAttempts: "not-a-number",
		domain.SettingBlockDuration:        "-5",
	}}
	fallback := domain.OTPSettings{
		StoreName:            "Env Store",
		EmailAPIKey:          "env-key",
		RateLimitMaxAttempts: 4,
	}
	p := NewSettingsProvider(zap.NewNop(), repo, fallback)

	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := p.Current()
	if got.StoreName != "WP Themes" || got.FromEmail != "hello@themes.test" {
		t.Fatalf("unexpected strings %+v", got)
	}
	if got.EmailAPIKey != "env-key" {
		t.Fatalf("expected env api key fallback, got %q", got.EmailAPIKey)
	}
	if got.RateLimitWindow != 120*time.Second {
		t.Fatalf("expected window from table, got %v", got.RateLimitWindow)
	}
	if got.RateLimitMaxAttempts != 4 {
		t.Fatalf("expected invalid max attempts to keep fallback, got %d", got.RateLimitMaxAttempts)
	}
	if got.BlockDuration != 300*time.Second {
		t.Fatalf("expected invalid block duration to keep default, got %v", got.BlockDuration)
	}
}

func TestSettingsProvider_ReloadErrorKeepsSnapshot(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{domain.SettingStoreName: "First"}}
	p := NewSettingsProvider(zap.NewNop(), repo, domain.OTPSettings{})
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	repo.err = errors.New("db down")
	if err := p.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if p.Current().StoreName != "First" {
		t.Fatalf("expected previous snapshot to survive, got %q", p.Current().StoreName)
	}
}

func TestSettingsProvider_RunReloadsUntilCancelled(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{domain.SettingStoreName: "Loop"}}
	p := NewSettingsProvider(zap.NewNop(), repo, domain.OTPSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for p.Current().StoreName != "Loop" {
		select {
		case <-deadline:
			t.Fatalf("settings were not reloaded")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestStaticSettingsAppliesDefaults(t *testing.T) {
	got := StaticSettings{StoreName: "X"}.Current()
	if got.RateLimitMaxAttempts != domain.DefaultRateLimitMaxAttempts || got.MinWait() != 20*time.Second {
		t.Fatalf("unexpected static settings %+v", got)
	}
}
