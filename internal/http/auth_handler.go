package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"theme-store/internal/domain"
	"theme-store/internal/service"
)

// OTPFlow agrupa las operaciones OTP que expone la API.
type OTPFlow interface {
	SendOTP(ctx context.Context, input service.SendOTPInput) error
	VerifyOTP(ctx context.Context, input service.VerifyOTPInput) (service.VerifyResult, error)
	ResetPassword(ctx context.Context, input service.ResetPasswordInput) error
}

// Accounts cubre el login con contraseña y la lectura del usuario autenticado.
type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// AuthHandler mantiene dependencias para los endpoints /api/auth.
type AuthHandler struct {
	logger   *zap.Logger
	otp      OTPFlow
	accounts Accounts
	jwtServ  *service.JWTService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, otp OTPFlow, accounts Accounts, jwtServ *service.JWTService) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	registerValidators()
	return &AuthHandler{
		logger:   logger,
		otp:      otp,
		accounts: accounts,
		jwtServ:  jwtServ,
	}
}

// SendOTP maneja POST /api/auth/send-otp.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Type  string `json:"type" binding:"required,otp_purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid send otp request", zap.Error(err))
		respondError(c, h.logger, "send otp", bindError(err))
		return
	}

	err := h.otp.SendOTP(c.Request.Context(), service.SendOTPInput{
		Email:   req.Email,
		Purpose: req.Type,
	})
	if err != nil {
		respondError(c, h.logger, "send otp", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// VerifyOTP maneja POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Code     string `json:"code" binding:"required"`
		Type     string `json:"type" binding:"required,otp_purpose"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify otp request", zap.Error(err))
		respondError(c, h.logger, "verify otp", bindError(err))
		return
	}

	res, err := h.otp.VerifyOTP(c.Request.Context(), service.VerifyOTPInput{
		Email:    req.Email,
		Code:     req.Code,
		Purpose:  req.Type,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.logger, "verify otp", err)
		return
	}

	resp := gin.H{"success": true, "verified": res.Verified}
	if res.UserCreated {
		resp["user_created"] = true
	}
	if res.ActionLink != "" {
		resp["action_link"] = res.ActionLink
	}
	if res.Tokens != nil {
		resp["tokens"] = res.Tokens
	}
	if res.User != nil {
		resp["user"] = res.User
	}
	c.JSON(http.StatusOK, resp)
}

// ResetPassword maneja POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		respondError(c, h.logger, "reset password", bindError(err))
		return
	}

	err := h.otp.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		Email:       req.Email,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondError(c, h.logger, "reset password", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		respondError(c, h.logger, "login", bindError(err))
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}

	tokens, err := h.issueTokens(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.logger, "jwt issue", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// RefreshToken maneja POST /api/auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		respondError(c, h.logger, "refresh", errInvalidRequest)
		return
	}
	if h.jwtServ == nil {
		respondError(c, h.logger, "refresh", errors.New("jwt not configured"))
		return
	}
	tokens, err := h.jwtServ.RefreshPair(c.Request.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, service.ErrJWTInvalid), errors.Is(err, service.ErrJWTExpired):
		respondError(c, h.logger, "refresh", errInvalidToken)
		return
	case err != nil:
		respondError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		respondError(c, h.logger, "logout", errInvalidRequest)
		return
	}
	if h.jwtServ == nil {
		respondError(c, h.logger, "logout", errors.New("jwt not configured"))
		return
	}
	_ = h.jwtServ.RevokeRefresh(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}

// Me maneja GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respondError(c, h.logger, "me", errInvalidToken)
		return
	}
	user, err := h.accounts.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   err.Error(),
				"code":    "account_not_found",
				"message": "Tài khoản không tồn tại.",
			})
			return
		}
		respondError(c, h.logger, "me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) issueTokens(ctx context.Context, user domain.User) (service.TokenPair, error) {
	if h.jwtServ == nil {
		return service.TokenPair{}, errors.New("jwt not configured")
	}
	return h.jwtServ.GeneratePair(ctx, user)
}
