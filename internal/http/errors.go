package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"theme-store/internal/domain"
)

var (
	errInvalidRequest  = errors.New("invalid request")
	errInvalidEmail    = errors.New("invalid email")
	errInvalidToken    = errors.New("invalid token")
	errTooManyRequests = errors.New("too many requests")
	errInternal        = errors.New("internal error")
)

type errorReply struct {
	status  int
	code    string
	message string
}

// Mensajes para el usuario final en vietnamita; "error" conserva el texto canónico.
var errorReplies = []struct {
	err   error
	reply errorReply
}{
	{errInvalidRequest, errorReply{http.StatusBadRequest, "invalid_request", "Dữ liệu gửi lên không hợp lệ."}},
	{errInvalidEmail, errorReply{http.StatusBadRequest, "invalid_email", "Địa chỉ email không hợp lệ."}},
	{domain.ErrEmailRequired, errorReply{http.StatusBadRequest, "email_required", "Vui lòng nhập email."}},
	{domain.ErrCodeRequired, errorReply{http.StatusBadRequest, "code_required", "Vui lòng nhập mã OTP."}},
	{domain.ErrPasswordRequired, errorReply{http.StatusBadRequest, "password_required", "Vui lòng nhập mật khẩu."}},
	{domain.ErrInvalidPurpose, errorReply{http.StatusBadRequest, "invalid_type", "Loại mã OTP không hợp lệ."}},
	{domain.ErrWeakPassword, errorReply{http.StatusBadRequest, "weak_password", fmt.Sprintf("Mật khẩu phải có ít nhất %d ký tự.", domain.MinPasswordLength)}},
	{domain.ErrInvalidCode, errorReply{http.StatusBadRequest, "invalid_code", "Mã OTP không hợp lệ."}},
	{domain.ErrCodeExpired, errorReply{http.StatusBadRequest, "code_expired", "Mã OTP đã hết hạn. Vui lòng yêu cầu mã mới."}},
	{domain.ErrAlreadyRegistered, errorReply{http.StatusBadRequest, "already_registered", "Email này đã được đăng ký."}},
	{domain.ErrAccountNotFound, errorReply{http.StatusBadRequest, "account_not_found", "Tài khoản không tồn tại."}},
	{domain.ErrAccountInactive, errorReply{http.StatusForbidden, "account_inactive", "Tài khoản đã bị vô hiệu hóa."}},
	{domain.ErrRecoveryExpired, errorReply{http.StatusBadRequest, "recovery_expired", "Phiên xác thực đã hết hạn. Vui lòng xác thực lại."}},
	{domain.ErrInvalidCredentials, errorReply{http.StatusUnauthorized, "invalid_credentials", "Email hoặc mật khẩu không đúng."}},
	{errInvalidToken, errorReply{http.StatusUnauthorized, "invalid_token", "Phiên đăng nhập không hợp lệ hoặc đã hết hạn."}},
	{errTooManyRequests, errorReply{http.StatusTooManyRequests, "too_many_requests", "Bạn thao tác quá nhanh. Vui lòng thử lại sau."}},
	{domain.ErrEmailSendFailure, errorReply{http.StatusInternalServerError, "email_send_failed", "Không thể gửi email. Vui lòng thử lại sau."}},
}

var internalReply = errorReply{http.StatusInternalServerError, "internal_error", "Đã có lỗi xảy ra. Vui lòng thử lại sau."}

// respondError traduce err a status, código y mensaje. Los errores desconocidos
// se registran y se responden como 500 sin detalles.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		seconds := domain.CeilSeconds(rl.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":       rl.Error(),
			"code":        "rate_limited",
			"message":     rateLimitMessage(rl),
			"retry_after": seconds,
		})
		return
	}

	for _, entry := range errorReplies {
		if errors.Is(err, entry.err) {
			if entry.reply.status >= http.StatusInternalServerError && logger != nil {
				logger.Error(op+" failed", zap.Error(err))
			}
			writeError(c, entry.reply, entry.err.Error())
			return
		}
	}

	if logger != nil {
		logger.Error(op+" failed", zap.Error(err))
	}
	writeError(c, internalReply, errInternal.Error())
}

func writeError(c *gin.Context, reply errorReply, canonical string) {
	c.AbortWithStatusJSON(reply.status, gin.H{
		"error":   canonical,
		"code":    reply.code,
		"message": reply.message,
	})
}

func rateLimitMessage(rl *domain.RateLimitError) string {
	switch rl.Reason {
	case domain.RateLimitBlocked:
		return fmt.Sprintf("Bạn đã yêu cầu quá nhiều mã OTP. Vui lòng thử lại sau %d phút.", domain.CeilMinutes(rl.RetryAfter))
	case domain.RateLimitWindow:
		return fmt.Sprintf("Chỉ được gửi tối đa %d mã OTP trong %d giây.", rl.MaxAttempts, domain.CeilSeconds(rl.Window))
	default:
		return fmt.Sprintf("Vui lòng đợi %d giây trước khi yêu cầu mã mới.", domain.CeilSeconds(rl.RetryAfter))
	}
}
