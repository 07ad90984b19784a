package model

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/validate"
)

// DateLayout 生日与截止日期在接口上的统一格式。
const DateLayout = "2006-01-02"

// NicknameMaxLen 昵称最大长度（按字符数计）。
const NicknameMaxLen = 50

// User 表示系统用户。
//
// nickname/email/tel 全局唯一。除应用层校验外，BeforeSave 钩子在任何
// ORM 写路径上都会再执行一遍相同的规则；唯一索引和 CHECK 约束在数据库
// 层面兜底。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 用户 ID
	CreatedAt time.Time `json:"-"`                    // 创建时间
	UpdatedAt time.Time `json:"-"`                    // 更新时间

	Nickname     string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"nickname"` // 昵称（唯一）
	Email        string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`   // 邮箱（唯一）
	Tel          string    `gorm:"type:varchar(16);uniqueIndex;not null;check:chk_users_tel,tel LIKE '+380_________' OR tel LIKE '0_________'" json:"tel"` // 手机号（唯一）
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`                // bcrypt 哈希，绝不序列化
	Birthday     time.Time `gorm:"type:date;not null" json:"-"`                           // 生日（只保留日期部分）
	Gender       string    `gorm:"type:varchar(16)" json:"gender"`                        // 性别
	Role         string    `gorm:"type:varchar(32)" json:"role"`                          // 角色: student / teacher 等
	Image        *string   `gorm:"type:varchar(255)" json:"image"`                        // 头像文件名（可空）

	Tasks []Task `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeSave 在任何 ORM 写路径上执行与应用层相同的校验规则。
func (u *User) BeforeSave(tx *gorm.DB) error {
	verr := &apperr.ValidationError{}
	switch {
	case !validate.IsNonEmpty(u.Nickname):
		verr.Add("nickname", "nickname is required")
	case utf8.RuneCountInString(u.Nickname) > NicknameMaxLen:
		verr.Add("nickname", "nickname must be at most 50 characters")
	}
	if !validate.IsValidEmail(u.Email) {
		verr.Add("email", "email format is invalid")
	}
	if !validate.IsValidPhone(u.Tel) {
		verr.Add("tel", "tel must match +380XXXXXXXXX or 0XXXXXXXXX")
	}
	if !validate.IsNonEmpty(u.PasswordHash) {
		verr.Add("password", "password is required")
	}
	switch {
	case u.Birthday.IsZero():
		verr.Add("birthday", "birthday is required")
	case !validate.IsValidBirthday(u.Birthday):
		verr.Add("birthday", "birthday must not be in the future")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// UserView 是对外返回的用户视图，永远不包含密码散列与时间戳。
type UserView struct {
	ID       uint    `json:"id"`
	Nickname string  `json:"nickname"`
	Email    string  `json:"email"`
	Tel      string  `json:"tel"`
	Birthday string  `json:"birthday"`
	Gender   string  `json:"gender"`
	Role     string  `json:"role"`
	Image    *string `json:"image"`
}

// View 生成脱敏视图，生日格式化为 YYYY-MM-DD。
func (u *User) View() UserView {
	return UserView{
		ID:       u.ID,
		Nickname: u.Nickname,
		Email:    u.Email,
		Tel:      u.Tel,
		Birthday: u.Birthday.Format(DateLayout),
		Gender:   u.Gender,
		Role:     u.Role,
		Image:    u.Image,
	}
}
