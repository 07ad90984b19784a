package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/metrics"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/validate"
)

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Body     string `json:"body" binding:"required"`
	Deadline string `json:"deadline" binding:"required"`
	UserID   uint   `json:"userId" binding:"required"`
}

// handleCreateTask 处理创建任务的请求。
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	verr := &apperr.ValidationError{}
	if !validate.IsNonEmpty(req.Body) {
		verr.Add("body", "body must not be empty")
	}
	deadline := checkDeadline(verr, req.Deadline)
	if verr.HasErrors() {
		s.writeError(c, verr)
		return
	}

	task := model.Task{
		Body:     req.Body,
		Deadline: deadline,
		UserID:   req.UserID,
	}
	if err := s.tasks.Create(c.Request.Context(), &task); err != nil {
		s.writeError(c, err)
		return
	}

	metrics.TasksCreatedTotal.Inc()
	c.JSON(http.StatusCreated, task.View())
}

// handleListTasks 返回全部任务，每条都带属主昵称。
//
// GET /tasks
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.ListWithOwner(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleDeleteTask 删除任务。
//
// DELETE /tasks/:taskId
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseIDParam(c, "taskId")
	if !ok {
		s.writeError(c, apperr.ErrNotFound)
		return
	}

	if err := s.tasks.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func checkDeadline(verr *apperr.ValidationError, raw string) time.Time {
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		verr.Add("deadline", "deadline must be in YYYY-MM-DD format")
		return time.Time{}
	}
	if !validate.IsValidDeadline(t) {
		verr.Add("deadline", "deadline must not be in the past")
	}
	return t
}
