package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

// UserStore 提供 users 表的持久化操作。
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create 插入新用户，唯一约束冲突翻译为 UniqueConstraintError。
//
// 先显式查重：驱动把唯一索引冲突折叠成不带列名的 ErrDuplicatedKey，
// 只有查询才能说出到底是哪个字段撞了。唯一索引仍然兜底并发窗口。
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	field, err := s.conflictingField(ctx, user, user.ID)
	if err != nil {
		return err
	}
	if field != "" {
		return &apperr.UniqueConstraintError{Field: field}
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return s.nameConflict(ctx, user, classifyWriteErr(err))
	}
	return nil
}

// FindByID 按主键查找用户，不存在时返回 apperr.ErrNotFound。
func (s *UserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserUpdate 描述一次部分更新中提交的字段，nil 表示该字段未提交。
type UserUpdate struct {
	Nickname     *string
	Email        *string
	Tel          *string
	PasswordHash *string
	Birthday     *time.Time
	Gender       *string
	Role         *string
	Image        *string
}

func (c UserUpdate) apply(u *model.User) {
	if c.Nickname != nil {
		u.Nickname = *c.Nickname
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.Tel != nil {
		u.Tel = *c.Tel
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.Birthday != nil {
		u.Birthday = *c.Birthday
	}
	if c.Gender != nil {
		u.Gender = *c.Gender
	}
	if c.Role != nil {
		u.Role = *c.Role
	}
	if c.Image != nil {
		u.Image = c.Image
	}
}

// Update 按 id 应用部分更新，返回更新后的用户。
//
// 记录不存在时返回 (nil, nil)，由调用方决定是否转为创建。
// 先加载再整体 Save：BeforeSave 钩子校验的是合并后的值，并且记录是否
// 存在不依赖 RowsAffected（提交与原值相同的字段时 MySQL 报 0 行受影响）。
func (s *UserStore) Update(ctx context.Context, id uint, fields UserUpdate) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields.apply(&user)
	field, err := s.conflictingField(ctx, &user, user.ID)
	if err != nil {
		return nil, err
	}
	if field != "" {
		return nil, &apperr.UniqueConstraintError{Field: field}
	}

	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, s.nameConflict(ctx, &user, classifyWriteErr(err))
	}
	return &user, nil
}

// conflictingField 返回与给定用户撞唯一约束的列名，没有冲突时返回空串。
// excludeID 排除用户自身，更新场景下自己的行不算冲突。
func (s *UserStore) conflictingField(ctx context.Context, user *model.User, excludeID uint) (string, error) {
	q := s.db.WithContext(ctx).
		Where("nickname = ? OR email = ? OR tel = ?", user.Nickname, user.Email, user.Tel)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var existing []model.User
	if err := q.Limit(3).Find(&existing).Error; err != nil {
		return "", err
	}
	for i := range existing {
		switch {
		case existing[i].Nickname == user.Nickname:
			return "nickname", nil
		case existing[i].Email == user.Email:
			return "email", nil
		case existing[i].Tel == user.Tel:
			return "tel", nil
		}
	}
	return "", nil
}

// nameConflict 给兜底捕获的唯一约束错误补上列名。
func (s *UserStore) nameConflict(ctx context.Context, user *model.User, err error) error {
	var uerr *apperr.UniqueConstraintError
	if !errors.As(err, &uerr) {
		return err
	}
	if field, ferr := s.conflictingField(ctx, user, user.ID); ferr == nil && field != "" {
		uerr.Field = field
	}
	return uerr
}

// List 按 id 升序分页返回用户和总数。
func (s *UserStore) List(ctx context.Context, page, pageSize int) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	users := make([]model.User, 0, pageSize)
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// TasksOf 返回指定用户的全部任务；用户不存在时返回 apperr.ErrNotFound。
func (s *UserStore) TasksOf(ctx context.Context, userID uint) ([]model.Task, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperr.ErrNotFound
	}

	tasks := make([]model.Task, 0)
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Delete 在同一事务里删除用户及其全部任务。
func (s *UserStore) Delete(ctx context.Context, id uint) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var user model.User
	if err := tx.First(&user, id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := tx.Where("user_id = ?", id).Delete(&model.Task{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&user).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
