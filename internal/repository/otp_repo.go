package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"theme-store/internal/domain"
)

// OTPRepository define el contrato de persistencia para otp_codes.
// Las búsquedas sin resultado devuelven pgx.ErrNoRows.
// MarkVerified sólo consume filas con used = FALSE; si otra petición ganó, devuelve pgx.ErrNoRows.
type OTPRepository interface {
	Create(ctx context.Context, otp domain.OTPCode) error
	CountCreatedSince(ctx context.Context, email string, since time.Time) (int, error)
	LatestCreatedAt(ctx context.Context, email string) (time.Time, error)
	InvalidateOthers(ctx context.Context, email, keepID string) (int64, error)
	FindUnused(ctx context.Context, email, code string, purpose domain.OTPPurpose) (domain.OTPCode, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	HasVerifiedSince(ctx context.Context, email string, purpose domain.OTPPurpose, since time.Time) (bool, error)
	DeleteByPurpose(ctx context.Context, email string, purpose domain.OTPPurpose) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PgOTPRepository implementa OTPRepository usando pgxpool.
type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

func (r *PgOTPRepository) Create(ctx context.Context, otp domain.OTPCode) error {
	const query = `
		INSERT INTO otp_codes (id, email, code, purpose, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		otp.ID,
		otp.Email,
		otp.Code,
		string(otp.Purpose),
		otp.CreatedAt,
		otp.ExpiresAt,
		otp.Used,
	)
	return err
}

func (r *PgOTPRepository) CountCreatedSince(ctx context.Context, email string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM otp_codes
		WHERE email = $1 AND created_at >= $2
	`
	var count int
	err := r.pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

func (r *PgOTPRepository) LatestCreatedAt(ctx context.Context, email string) (time.Time, error) {
	const query = `
		SELECT created_at
		FROM otp_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, email).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, err
	}
	return createdAt, err
}

func (r *PgOTPRepository) InvalidateOthers(ctx context.Context, email, keepID string) (int64, error) {
	const query = `
		UPDATE otp_codes
		SET used = TRUE
		WHERE email = $1 AND used = FALSE AND id <> $2
	`
	tag, err := r.pool.Exec(ctx, query, email, keepID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgOTPRepository) FindUnused(ctx context.Context, email, code string, purpose domain.OTPPurpose) (domain.OTPCode, error) {
	const query = `
		SELECT id, email, code, purpose, created_at, expires_at, used, verified_at
		FROM otp_codes
		WHERE email = $1 AND code = $2 AND purpose = $3 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		otp     domain.OTPCode
		purpStr string
	)
	err := r.pool.QueryRow(ctx, query, email, code, string(purpose)).Scan(
		&otp.ID,
		&otp.Email,
		&otp.Code,
		&purpStr,
		&otp.CreatedAt,
		&otp.ExpiresAt,
		&otp.Used,
		&otp.VerifiedAt,
	)
	if err != nil {
		return domain.OTPCode{}, err
	}
	otp.Purpose = domain.OTPPurpose(purpStr)
	return otp, nil
}

func (r *PgOTPRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE otp_codes
		SET used = TRUE, verified_at = $2
		WHERE id = $1 AND used = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgOTPRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM otp_codes WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgOTPRepository) HasVerifiedSince(ctx context.Context, email string, purpose domain.OTPPurpose, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM otp_codes
			WHERE email = $1 AND purpose = $2 AND used = TRUE AND verified_at IS NOT NULL AND created_at >= $3
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, email, string(purpose), since).Scan(&exists)
	return exists, err
}

func (r *PgOTPRepository) DeleteByPurpose(ctx context.Context, email string, purpose domain.OTPPurpose) (int64, error) {
	const query = `DELETE FROM otp_codes WHERE email = $1 AND purpose = $2`
	tag, err := r.pool.Exec(ctx, query, email, string(purpose))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM otp_codes WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
