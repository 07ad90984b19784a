package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

// TaskStore 提供 tasks 表的持久化操作。
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create 插入新任务。所属用户不存在时报 userId 字段校验失败。
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", task.UserID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.Validation("userId", "user does not exist")
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

type taskOwnerRow struct {
	ID       uint
	Body     string
	Deadline time.Time
	UserID   uint
	Nickname string
}

// ListWithOwner 一次联查返回全部任务及属主昵称，避免逐条回查用户。
func (s *TaskStore) ListWithOwner(ctx context.Context) ([]model.TaskWithOwner, error) {
	var rows []taskOwnerRow
	err := s.db.WithContext(ctx).
		Table("tasks").
		Select("tasks.id, tasks.body, tasks.deadline, tasks.user_id, users.nickname").
		Joins("JOIN users ON users.id = tasks.user_id").
		Order("tasks.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.TaskWithOwner, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.TaskWithOwner{
			TaskView: model.TaskView{
				ID:       r.ID,
				Body:     r.Body,
				Deadline: r.Deadline.Format(model.DateLayout),
				UserID:   r.UserID,
			},
			Nickname: r.Nickname,
		})
	}
	return out, nil
}

// Delete 按 id 删除任务，记录不存在时返回 apperr.ErrNotFound。
func (s *TaskStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Task{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
