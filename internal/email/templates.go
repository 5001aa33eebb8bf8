package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"theme-store/internal/domain"
)

type otpCopy struct {
	Subject string
	Heading string
	Body    string
}

var otpCopies = map[domain.OTPPurpose]otpCopy{
	domain.OTPPurposeSignup: {
		Subject: "Xác thực đăng ký tài khoản",
		Heading: "Chào mừng bạn!",
		Body:    "Sử dụng mã dưới đây để hoàn tất đăng ký tài khoản của bạn.",
	},
	domain.OTPPurposeLogin: {
		Subject: "Mã đăng nhập",
		Heading: "Đăng nhập tài khoản",
		Body:    "Sử dụng mã dưới đây để đăng nhập vào tài khoản của bạn.",
	},
	domain.OTPPurposeRecovery: {
		Subject: "Khôi phục mật khẩu",
		Heading: "Đặt lại mật khẩu",
		Body:    "Chúng tôi đã nhận được yêu cầu đặt lại mật khẩu. Sử dụng mã dưới đây để tiếp tục.",
	},
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html lang="vi">
<body style="font-family:Arial,sans-serif;background:#f4f4f5;padding:24px">
  <div style="max-width:480px;margin:0 auto;background:#ffffff;border-radius:8px;padding:32px">
    <h2 style="margin-top:0">{{.Heading}}</h2>
    <p>{{.Body}}</p>
    <p style="font-size:32px;font-weight:bold;letter-spacing:8px;text-align:center">{{.Code}}</p>
    <p>Mã có hiệu lực trong {{.Minutes}} phút. Không chia sẻ mã này với bất kỳ ai.</p>
    <p style="color:#71717a;font-size:12px">Nếu bạn không yêu cầu mã này, hãy bỏ qua email.</p>
    <p style="color:#71717a;font-size:12px">{{.StoreName}}</p>
  </div>
</body>
</html>`))

// RenderOTP arma asunto y cuerpo HTML para el propósito indicado.
func RenderOTP(purpose domain.OTPPurpose, storeName, code string, ttl time.Duration) (string, string, error) {
	c, ok := otpCopies[purpose]
	if !ok {
		return "", "", fmt.Errorf("no email copy for purpose %q", purpose)
	}

	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Heading   string
		Body      string
		Code      string
		Minutes   int
		StoreName string
	}{
		Heading:   c.Heading,
		Body:      c.Body,
		Code:      code,
		Minutes:   int(ttl / time.Minute),
		StoreName: storeName,
	})
	if err != nil {
		return "", "", err
	}

	subject := c.Subject
	if storeName != "" {
		subject = fmt.Sprintf("%s - %s", c.Subject, storeName)
	}
	return subject, buf.String(), nil
}

// FormatFrom arma el encabezado From con el nombre de la tienda.
// Sin correo de origen devuelve "" para que el envío falle con "from email is required".
func FormatFrom(storeName, fromEmail string) string {
	fromEmail = strings.TrimSpace(fromEmail)
	if fromEmail == "" {
		return ""
	}
	if storeName == "" {
		return fromEmail
	}
	return fmt.Sprintf("%s <%s>", storeName, fromEmail)
}
