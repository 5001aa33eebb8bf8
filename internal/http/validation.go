package http

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"theme-store/internal/domain"
)

var registerValidatorsOnce sync.Once

// registerValidators agrega el tag otp_purpose y usa el nombre JSON en los errores.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("otp_purpose", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseOTPPurpose(fl.Field().String())
			return ok
		})
	})
}

// bindError convierte el primer error de validación en el error de dominio que corresponde.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errInvalidRequest
	}
	fe := verrs[0]
	switch fe.Field() {
	case "email":
		if fe.Tag() == "required" {
			return domain.ErrEmailRequired
		}
		return errInvalidEmail
	case "code":
		return domain.ErrCodeRequired
	case "type":
		return domain.ErrInvalidPurpose
	case "password", "newPassword":
		if fe.Tag() == "required" {
			return domain.ErrPasswordRequired
		}
		return domain.ErrWeakPassword
	}
	return errInvalidRequest
}
