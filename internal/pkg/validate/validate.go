package validate

import (
	"regexp"
	"strings"
	"time"
)

// telPattern 乌克兰手机号格式：+380 后跟 9 位数字，或 0 后跟 9 位数字。
var telPattern = regexp.MustCompile(`^\+380\d{9}$|^0\d{9}$`)

// emailPattern 课堂级别的邮箱格式（local@domain.tld）。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidPhone 校验手机号格式。
func IsValidPhone(s string) bool {
	return telPattern.MatchString(s)
}

// IsValidEmail 校验邮箱格式。
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidBirthday 校验生日不晚于今天。
//
// 只比较日历日（各自时区下的年月日），等于今天视为合法。
func IsValidBirthday(t time.Time) bool {
	return !dateOf(t).After(dateOf(time.Now()))
}

// IsValidDeadline 校验截止日期不早于今天。
//
// 只比较日历日，等于今天视为合法。
func IsValidDeadline(t time.Time) bool {
	return !dateOf(t).Before(dateOf(time.Now()))
}

// IsNonEmpty 校验字符串去掉首尾空白后非空。
func IsNonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
