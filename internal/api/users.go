package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/metrics"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/password"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/validate"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/store"
)

// createUserForm 创建用户的 multipart 表单字段。
type createUserForm struct {
	Nickname string `form:"nickname" binding:"required"`
	Email    string `form:"email" binding:"required"`
	Tel      string `form:"tel" binding:"required"`
	Password string `form:"password" binding:"required"`
	Birthday string `form:"birthday" binding:"required"`
	Gender   string `form:"gender"`
	Role     string `form:"role"`
}

// updateUserForm PUT 提交的字段子集，nil 表示该字段未提交。
type updateUserForm struct {
	Nickname *string `form:"nickname"`
	Email    *string `form:"email"`
	Tel      *string `form:"tel"`
	Password *string `form:"password"`
	Birthday *string `form:"birthday"`
	Gender   *string `form:"gender"`
	Role     *string `form:"role"`
}

// listUsersResponse 用户分页响应。
type listUsersResponse struct {
	Items    []model.UserView `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// handleCreateUser 处理创建用户的请求。
//
// POST /users (multipart form，photo 字段可选)
func (s *Server) handleCreateUser(c *gin.Context) {
	var form createUserForm
	if err := c.ShouldBind(&form); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	verr := &apperr.ValidationError{}
	checkNickname(verr, form.Nickname)
	checkEmail(verr, form.Email)
	checkTel(verr, form.Tel)
	if !validate.IsNonEmpty(form.Password) {
		verr.Add("password", "password is required")
	}
	birthday := checkBirthday(verr, form.Birthday)
	if verr.HasErrors() {
		s.writeError(c, verr)
		return
	}

	fh, err := formFile(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	hash, err := password.Hash(form.Password, s.cfg.App.BcryptCost)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user := model.User{
		Nickname:     form.Nickname,
		Email:        form.Email,
		Tel:          form.Tel,
		PasswordHash: hash,
		Birthday:     birthday,
		Gender:       form.Gender,
		Role:         form.Role,
	}

	var savedFile string
	if fh != nil {
		savedFile, err = s.saveUpload(fh)
		if err != nil {
			s.writeError(c, err)
			return
		}
		user.Image = &savedFile
	}

	if err := s.users.Create(c.Request.Context(), &user); err != nil {
		// 记录没写成，文件不能留下
		s.cleanupUpload(savedFile)
		s.writeError(c, err)
		return
	}

	metrics.UsersCreatedTotal.Inc()
	c.JSON(http.StatusCreated, user.View())
}

// handleListUsers 分页返回用户列表。
//
// GET /users?page=P&results=R
func (s *Server) handleListUsers(c *gin.Context) {
	def := s.cfg.App.DefaultPageSize
	if def < 1 {
		def = 10
	}

	page := parseQueryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseQueryInt(c, "results", def)
	if pageSize < 1 {
		pageSize = def
	}
	if max := s.cfg.App.MaxPageSize; max > 0 && pageSize > max {
		pageSize = max
	}

	users, total, err := s.users.List(c.Request.Context(), page, pageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}

	items := make([]model.UserView, 0, len(users))
	for i := range users {
		items = append(items, users[i].View())
	}
	c.JSON(http.StatusOK, listUsersResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// handleGetUser 返回单个用户。
//
// GET /users/:userId
func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	user, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.View())
}

// handleUpdateOrCreateUser 先尝试按 id 更新，没有命中任何行时回落到创建。
//
// PUT /users/:userId
//
// 更新路径返回 200，创建路径返回 201。上传的文件只保存一次，路径引用
// 跟随两条路径中的任意一条入库；数据库写入失败时删掉孤儿文件。
func (s *Server) handleUpdateOrCreateUser(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	var form updateUserForm
	if err := c.ShouldBind(&form); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	// 只校验提交的字段子集
	verr := &apperr.ValidationError{}
	var birthday *time.Time
	if form.Nickname != nil {
		checkNickname(verr, *form.Nickname)
	}
	if form.Email != nil {
		checkEmail(verr, *form.Email)
	}
	if form.Tel != nil {
		checkTel(verr, *form.Tel)
	}
	if form.Password != nil && !validate.IsNonEmpty(*form.Password) {
		verr.Add("password", "password is required")
	}
	if form.Birthday != nil {
		b := checkBirthday(verr, *form.Birthday)
		birthday = &b
	}
	if verr.HasErrors() {
		s.writeError(c, verr)
		return
	}

	fh, err := formFile(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	fields := store.UserUpdate{
		Nickname: form.Nickname,
		Email:    form.Email,
		Tel:      form.Tel,
		Birthday: birthday,
		Gender:   form.Gender,
		Role:     form.Role,
	}
	if form.Password != nil {
		hash, err := password.Hash(*form.Password, s.cfg.App.BcryptCost)
		if err != nil {
			s.writeError(c, err)
			return
		}
		fields.PasswordHash = &hash
	}

	var savedFile string
	if fh != nil {
		savedFile, err = s.saveUpload(fh)
		if err != nil {
			s.writeError(c, err)
			return
		}
		fields.Image = &savedFile
	}

	updated, err := s.users.Update(c.Request.Context(), id, fields)
	if err != nil {
		s.cleanupUpload(savedFile)
		s.writeError(c, err)
		return
	}
	if updated != nil {
		c.JSON(http.StatusOK, updated.View())
		return
	}

	// 没有命中任何行：转为创建，路径里的 id 随行写入
	s.createFromPut(c, id, form, fields, savedFile)
}

// createFromPut 是 PUT 回落到创建的分支。
//
// 创建要求完整字段；并发竞争下撞上唯一键时报 422 而不是 500。
func (s *Server) createFromPut(c *gin.Context, id uint, form updateUserForm, fields store.UserUpdate, savedFile string) {
	verr := &apperr.ValidationError{}
	if form.Nickname == nil {
		verr.Add("nickname", "nickname is required")
	}
	if form.Email == nil {
		verr.Add("email", "email is required")
	}
	if form.Tel == nil {
		verr.Add("tel", "tel is required")
	}
	if form.Password == nil {
		verr.Add("password", "password is required")
	}
	if form.Birthday == nil {
		verr.Add("birthday", "birthday is required")
	}
	if verr.HasErrors() {
		s.cleanupUpload(savedFile)
		s.writeError(c, verr)
		return
	}

	user := model.User{
		ID:           id,
		Nickname:     *fields.Nickname,
		Email:        *fields.Email,
		Tel:          *fields.Tel,
		PasswordHash: *fields.PasswordHash,
		Birthday:     *fields.Birthday,
		Image:        fields.Image,
	}
	if fields.Gender != nil {
		user.Gender = *fields.Gender
	}
	if fields.Role != nil {
		user.Role = *fields.Role
	}

	if err := s.users.Create(c.Request.Context(), &user); err != nil {
		s.cleanupUpload(savedFile)
		s.writeError(c, err)
		return
	}

	metrics.UsersCreatedTotal.Inc()
	c.JSON(http.StatusCreated, user.View())
}

// handleDeleteUser 删除用户及其全部任务，顺带清理头像文件。
//
// DELETE /users/:userId
func (s *Server) handleDeleteUser(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	var oldImage string
	if u, err := s.users.FindByID(c.Request.Context(), id); err == nil && u.Image != nil {
		oldImage = *u.Image
	}

	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	s.cleanupUpload(oldImage)

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleListUserTasks 返回指定用户的全部任务。
//
// GET /users/:userId/tasks
func (s *Server) handleListUserTasks(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	tasks, err := s.users.TasksOf(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	views := make([]model.TaskView, 0, len(tasks)) // Initialize as empty slice to ensure JSON is [] not null
	for i := range tasks {
		views = append(views, tasks[i].View())
	}
	c.JSON(http.StatusOK, views)
}

// handleUpdateUserImage 只更新用户头像。
//
// PATCH /users/:userId/images
//
// 顺序：用户存在 → 文件必须存在 → MIME 通过 → 落盘 → 更新记录 → 删旧文件。
func (s *Server) handleUpdateUserImage(c *gin.Context) {
	id, ok := parseIDParam(c, "userId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	current, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	fh, err := formFile(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if fh == nil {
		s.writeError(c, apperr.Validation("photo", "photo file is required"))
		return
	}

	savedFile, err := s.saveUpload(fh)
	if err != nil {
		s.writeError(c, err)
		return
	}

	updated, err := s.users.Update(c.Request.Context(), id, store.UserUpdate{Image: &savedFile})
	if err != nil {
		s.cleanupUpload(savedFile)
		s.writeError(c, err)
		return
	}
	if updated == nil {
		// 查到之后又被并发删除
		s.cleanupUpload(savedFile)
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	if current.Image != nil && *current.Image != savedFile {
		s.cleanupUpload(*current.Image)
	}

	c.JSON(http.StatusOK, updated.View())
}

// formFile 取出可选的 photo 文件；请求没带文件时返回 (nil, nil)。
func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("photo")
	if err == nil {
		return fh, nil
	}
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	return nil, apperr.Validation("photo", "invalid file upload")
}

// saveUpload 落盘上传文件并维护相关指标。
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	name, err := s.uploads.Save(fh)
	if err != nil {
		if errors.Is(err, apperr.ErrUnsupportedMedia) {
			metrics.UploadsRejectedTotal.Inc()
		}
		return "", err
	}
	metrics.UploadsSavedTotal.Inc()
	return name, nil
}

// cleanupUpload 删除数据库写入失败后留下的孤儿文件。
func (s *Server) cleanupUpload(name string) {
	if name == "" {
		return
	}
	if err := s.uploads.Remove(name); err != nil {
		s.logger.Warn("orphan upload cleanup failed",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}

func checkNickname(verr *apperr.ValidationError, nickname string) {
	switch {
	case !validate.IsNonEmpty(nickname):
		verr.Add("nickname", "nickname is required")
	case utf8.RuneCountInString(nickname) > model.NicknameMaxLen:
		verr.Add("nickname", "nickname must be at most 50 characters")
	}
}

func checkEmail(verr *apperr.ValidationError, email string) {
	if !validate.IsValidEmail(email) {
		verr.Add("email", "email format is invalid")
	}
}

func checkTel(verr *apperr.ValidationError, tel string) {
	if !validate.IsValidPhone(tel) {
		verr.Add("tel", "tel must match +380XXXXXXXXX or 0XXXXXXXXX")
	}
}

func checkBirthday(verr *apperr.ValidationError, raw string) time.Time {
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		verr.Add("birthday", "birthday must be in YYYY-MM-DD format")
		return time.Time{}
	}
	if !validate.IsValidBirthday(t) {
		verr.Add("birthday", "birthday must not be in the future")
	}
	return t
}
