package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/validate"
)

// Task 表示归属于某个用户的待办任务。
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 任务 ID
	CreatedAt time.Time `json:"-"`                    // 创建时间
	UpdatedAt time.Time `json:"-"`                    // 更新时间

	Body     string    `gorm:"type:varchar(255);not null;check:chk_tasks_body,length(trim(body)) > 0" json:"body"` // 任务内容
	Deadline time.Time `gorm:"type:date;not null" json:"-"`  // 截止日期
	UserID   uint      `gorm:"not null;index" json:"userId"` // 所属用户 ID
	User     User      `gorm:"foreignKey:UserID" json:"-"`   // 所属用户
}

// BeforeSave 校验任务内容与截止日期，规则与应用层一致。
func (t *Task) BeforeSave(tx *gorm.DB) error {
	verr := &apperr.ValidationError{}
	if !validate.IsNonEmpty(t.Body) {
		verr.Add("body", "body must not be empty")
	}
	switch {
	case t.Deadline.IsZero():
		verr.Add("deadline", "deadline is required")
	case !validate.IsValidDeadline(t.Deadline):
		verr.Add("deadline", "deadline must not be in the past")
	}
	if t.UserID == 0 {
		verr.Add("userId", "userId is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// TaskView 是任务的对外视图。
type TaskView struct {
	ID       uint   `json:"id"`
	Body     string `json:"body"`
	Deadline string `json:"deadline"`
	UserID   uint   `json:"userId"`
}

// View 生成对外视图，截止日期格式化为 YYYY-MM-DD。
func (t *Task) View() TaskView {
	return TaskView{
		ID:       t.ID,
		Body:     t.Body,
		Deadline: t.Deadline.Format(DateLayout),
		UserID:   t.UserID,
	}
}

// TaskWithOwner 是任务视图附带属主昵称，由列表联查一次性填充。
type TaskWithOwner struct {
	TaskView
	Nickname string `json:"nickname"`
}
