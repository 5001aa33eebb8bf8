package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"theme-store/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

// TokenPair es la sesión que recibe el cliente tras un login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims viaja en ambos tokens; typ distingue access de refresh.
type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountLookup carga el estado vigente de la cuenta al rotar una sesión.
// Una cuenta inexistente devuelve domain.ErrAccountNotFound.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// JWTService emite y valida las sesiones de clientes de la tienda (HS256).
// Los refresh tokens son de un solo uso: cada RefreshPair consume el jti anterior.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
	accounts   AccountLookup
	now        func() time.Time
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return NewJWTServiceWithStore(secret, accessTTL, refreshTTL, nil)
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "theme-store",
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithAccountLookup hace que RefreshPair relea la cuenta en cada rotación.
func (s *JWTService) WithAccountLookup(accounts AccountLookup) *JWTService {
	s.accounts = accounts
	return s
}

// GeneratePair firma un access token y un refresh token nuevo, y registra el jti del refresh.
func (s *JWTService) GeneratePair(ctx context.Context, user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrJWTInvalid
	}
	now := s.now()

	access, err := s.sign(s.claimsFor(user, now, s.accessTTL, tokenTypeAccess))
	if err != nil {
		return TokenPair{}, err
	}
	refreshClaims := s.claimsFor(user, now, s.refreshTTL, tokenTypeRefresh)
	refreshClaims.ID = uuid.NewString()
	refresh, err := s.sign(refreshClaims)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Save(ctx, refreshClaims.ID, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// RefreshPair rota la sesión. Un refresh token ya usado o revocado, o de una cuenta
// que ya no existe, devuelve ErrJWTInvalid; una cuenta desactivada, domain.ErrAccountInactive.
func (s *JWTService) RefreshPair(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.ID == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrJWTInvalid
	}

	user, err := s.currentUser(ctx, claims)
	if err != nil {
		return TokenPair{}, err
	}
	return s.GeneratePair(ctx, user)
}

// currentUser devuelve la cuenta guardada; sin AccountLookup reconstruye el usuario desde los claims.
func (s *JWTService) currentUser(ctx context.Context, claims Claims) (domain.User, error) {
	if s.accounts == nil {
		user := domain.User{
			ID:       claims.UserID,
			Email:    claims.Email,
			Role:     claims.Role,
			IsActive: true,
		}
		if claims.EmailVerified {
			verifiedAt := claims.IssuedAt.Time
			user.EmailVerifiedAt = &verifiedAt
		}
		return user, nil
	}

	user, err := s.accounts.GetByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return domain.User{}, ErrJWTInvalid
	case err != nil:
		return domain.User{}, fmt.Errorf("load account: %w", err)
	case !user.IsActive:
		return domain.User{}, domain.ErrAccountInactive
	}
	return user, nil
}

// RevokeRefresh cierra la sesión asociada al refresh token.
func (s *JWTService) RevokeRefresh(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return ErrJWTInvalid
	}
	return s.store.Revoke(ctx, claims.ID)
}

// RevokeUser cierra todas las sesiones abiertas del usuario, p. ej. tras cambiar la contraseña.
// Los access tokens ya emitidos siguen válidos hasta expirar.
func (s *JWTService) RevokeUser(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	return s.store.RevokeUser(ctx, userID)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	return s.parse(accessToken, tokenTypeAccess)
}

func (s *JWTService) claimsFor(user domain.User, now time.Time, ttl time.Duration, tokenType string) Claims {
	return Claims{
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerifiedAt != nil,
		TokenType:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *JWTService) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// parse valida firma, expiración, emisor, sujeto y tipo de token.
func (s *JWTService) parse(raw, tokenType string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if len(s.secret) == 0 || raw == "" {
		return Claims{}, ErrJWTInvalid
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrJWTExpired
	case err != nil:
		return Claims{}, ErrJWTInvalid
	}

	if claims.TokenType != tokenType {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}
