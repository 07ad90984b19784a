package store

import (
	"errors"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

// uniqueColumns 参与唯一约束的列，用于从驱动错误文本里还原冲突字段。
var uniqueColumns = []string{"nickname", "email", "tel"}

// classifyWriteErr 把 ORM 写入错误翻译成应用层错误分类。
//
// 模型钩子产生的校验错误原样透传；唯一索引冲突翻译成
// UniqueConstraintError；CHECK 约束违例翻译成对应字段的校验错误。
func classifyWriteErr(err error) error {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		return verr
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &apperr.UniqueConstraintError{Field: duplicateField(err)}
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return &apperr.UniqueConstraintError{Field: duplicateField(err)}
	}

	if errors.Is(err, gorm.ErrCheckConstraintViolated) || strings.Contains(err.Error(), "CHECK constraint failed") {
		return checkViolation(err)
	}
	return err
}

// duplicateField 尽力从驱动报错文本里找出冲突的唯一列。
// 翻译后的错误往往不带列名，找不到时由调用方回查补全。
func duplicateField(err error) string {
	msg := strings.ToLower(err.Error())
	for _, col := range uniqueColumns {
		if strings.Contains(msg, col) {
			return col
		}
	}
	return "unique"
}

func checkViolation(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "chk_users_tel"):
		return apperr.Validation("tel", "tel must match +380XXXXXXXXX or 0XXXXXXXXX")
	case strings.Contains(msg, "chk_tasks_body"):
		return apperr.Validation("body", "body must not be empty")
	}
	return err
}
