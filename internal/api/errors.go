package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

// messageResponse 非字段类错误的统一响应体。
type messageResponse struct {
	Message string `json:"message"`
}

// validationResponse 字段级错误的统一响应体。
type validationResponse struct {
	Errors []apperr.FieldError `json:"errors"`
}

// writeError 是唯一给错误分配 HTTP 状态码的地方。
//
// 分类规则：
//   - 字段校验失败 / 唯一约束冲突 → 422，逐字段列出
//   - 不允许的上传类型 → 415
//   - 记录不存在 → 404
//   - 其余 → 记日志后返回不含内部细节的 500
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, validationResponse{Errors: verr.Fields})
		return
	}

	var uerr *apperr.UniqueConstraintError
	if errors.As(err, &uerr) {
		c.JSON(http.StatusUnprocessableEntity, validationResponse{Errors: []apperr.FieldError{
			{Field: uerr.Field, Message: uerr.Field + " is already taken"},
		}})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, messageResponse{
			Message: "unsupported media type, expected image/jpeg, image/png or image/gif",
		})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, messageResponse{Message: "record not found"})
	default:
		s.logger.Error("unhandled error",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "internal server error"})
	}
}

// bindError 把 gin 的绑定错误折算成字段级校验错误。
func bindError(err error) error {
	var ferrs validator.ValidationErrors
	if errors.As(err, &ferrs) {
		verr := &apperr.ValidationError{}
		for _, fe := range ferrs {
			field := jsonFieldName(fe.Field())
			switch fe.Tag() {
			case "required":
				verr.Add(field, field+" is required")
			default:
				verr.Add(field, field+" is invalid")
			}
		}
		return verr
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Validation(typeErr.Field, typeErr.Field+" has the wrong type")
	}

	return apperr.Validation("body", "malformed request body")
}

// jsonFieldName 把结构体字段名转成接口上的 JSON 字段名。
func jsonFieldName(structField string) string {
	if structField == "UserID" {
		return "userId"
	}
	if structField == "" {
		return structField
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}
