package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-store/internal/config"
	"theme-store/internal/db"
	"theme-store/internal/domain"
)

// Integration tests: require TEST_DATABASE_URL pointing to a disposable Postgres.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, &config.Config{DatabaseURL: url})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func newTestOTP(email string, purpose domain.OTPPurpose, createdAt time.Time) domain.OTPCode {
	return domain.OTPCode{
		ID:        uuid.NewString(),
		Email:     email,
		Code:      "123456",
		Purpose:   purpose,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(domain.OTPTTL),
	}
}

func uniqueEmail() string {
	return uuid.NewString() + "@example.com"
}

func TestPgOTPRepository_CreateAndFind(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgOTPRepository(pool)
	ctx := context.Background()
	email := uniqueEmail()
	now := time.Now().UTC().Truncate(time.Microsecond)

	otp := newTestOTP(email, domain.OTPPurposeSignup, now)
	require.NoError(t, repo.Create(ctx, otp))

	found, err := repo.FindUnused(ctx, email, "123456", domain.OTPPurposeSignup)
	require.NoError(t, err)
	assert.Equal(t, otp.ID, found.ID)
	assert.Equal(t, domain.OTPPurposeSignup, found.Purpose)
	assert.False(t, found.Used)

	_, err = repo.FindUnused(ctx, email, "123456", domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	latest, err := repo.LatestCreatedAt(ctx, email)
	require.NoError(t, err)
	assert.True(t, latest.Equal(now))
}

func TestPgOTPRepository_InvalidateOthersAndCounts(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgOTPRepository(pool)
	ctx := context.Background()
	email := uniqueEmail()
	now := time.Now().UTC()

	older := newTestOTP(email, domain.OTPPurposeLogin, now.Add(-2*time.Minute))
	newer := newTestOTP(email, domain.OTPPurposeLogin, now)
	newer.Code = "654321"
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	n, err := repo.InvalidateOthers(ctx, email, newer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.FindUnused(ctx, email, older.Code, domain.OTPPurposeLogin)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))

	count, err := repo.CountCreatedSince(ctx, email, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.CountCreatedSince(ctx, email, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPgOTPRepository_RecoveryLifecycle(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgOTPRepository(pool)
	ctx := context.Background()
	email := uniqueEmail()
	now := time.Now().UTC()

	otp := newTestOTP(email, domain.OTPPurposeRecovery, now)
	require.NoError(t, repo.Create(ctx, otp))

	superseded := newTestOTP(email, domain.OTPPurposeRecovery, now.Add(-time.Minute))
	superseded.Code = "111111"
	require.NoError(t, repo.Create(ctx, superseded))
	_, err := repo.InvalidateOthers(ctx, email, otp.ID)
	require.NoError(t, err)

	ok, err := repo.HasVerifiedSince(ctx, email, domain.OTPPurposeRecovery, now.Add(-domain.RecoveryResetTTL))
	require.NoError(t, err)
	assert.False(t, ok, "invalidated codes must not count as verified")

	require.NoError(t, repo.MarkVerified(ctx, otp.ID, now))

	ok, err = repo.HasVerifiedSince(ctx, email, domain.OTPPurposeRecovery, now.Add(-domain.RecoveryResetTTL))
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.DeleteByPurpose(ctx, email, domain.OTPPurposeRecovery)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.ErrorIs(t, repo.MarkVerified(ctx, otp.ID, now), pgx.ErrNoRows)
}

func TestPgOTPRepository_DeleteExpired(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgOTPRepository(pool)
	ctx := context.Background()
	email := uniqueEmail()
	now := time.Now().UTC()

	expired := newTestOTP(email, domain.OTPPurposeLogin, now.Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, expired))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = repo.LatestCreatedAt(ctx, email)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestPgUserRepository_CreateGetUpdate(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgUserRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user := domain.User{
		ID:              uuid.NewString(),
		Email:           uniqueEmail(),
		PasswordHash:    "hash",
		Role:            domain.RoleCustomer,
		IsActive:        true,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.Create(ctx, user))

	dup := user
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrEmailTaken)

	got, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.EmailVerifiedAt)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash", now.Add(time.Minute)))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	_, err = repo.GetByEmail(ctx, "missing-"+user.Email)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestPgSettingsRepository_GetMany(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPgSettingsRepository(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ('STORE_NAME', 'Theme Test')
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`)
	require.NoError(t, err)

	values, err := repo.GetMany(ctx, []string{domain.SettingStoreName, "UNKNOWN_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "Theme Test", values[domain.SettingStoreName])
	_, ok := values["UNKNOWN_KEY"]
	assert.False(t, ok)
}
