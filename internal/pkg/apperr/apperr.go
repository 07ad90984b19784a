package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// 哨兵错误：没有字段信息的分类直接用 errors.Is 判断。
var (
	// ErrNotFound 被引用的记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedMedia 上传文件的 MIME 类型不在允许列表内。
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// FieldError 描述单个字段的校验失败，直接按响应格式序列化。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 聚合一次写入中的全部字段级失败。
type ValidationError struct {
	Fields []FieldError
}

// Validation 构造单字段校验错误。
func Validation(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add 追加一个字段失败。
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors 报告是否收集到了失败。
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UniqueConstraintError 唯一约束冲突（nickname/email/tel 已被占用）。
type UniqueConstraintError struct {
	Field string
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}
