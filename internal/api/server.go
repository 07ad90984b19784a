package api

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/api/middleware"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/config"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/metrics"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/ratelimit"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/upload"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/store"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端以及 Gin 路由引擎；
// 业务操作通过小接口注入，测试中可以直接替换。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	rdb     *redis.Client
	router  *gin.Engine
	users   UserStore
	tasks   TaskStore
	uploads Uploader
	limiter *ratelimit.RateLimiter
}

// UserStore 是 handler 依赖的用户持久化接口。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	Update(ctx context.Context, id uint, fields store.UserUpdate) (*model.User, error)
	List(ctx context.Context, page, pageSize int) ([]model.User, int64, error)
	TasksOf(ctx context.Context, userID uint) ([]model.Task, error)
	Delete(ctx context.Context, id uint) error
}

// TaskStore 是 handler 依赖的任务持久化接口。
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	ListWithOwner(ctx context.Context) ([]model.TaskWithOwner, error)
	Delete(ctx context.Context, id uint) error
}

// Uploader 保存与清理上传的图片文件。
type Uploader interface {
	Save(fh *multipart.FileHeader) (string, error)
	Remove(name string) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（未配置时跳过，限流随之关闭）
// 3. 初始化 Gin 路由引擎并注册路由
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		TranslateError: true,                                          // 统一各驱动的唯一键冲突错误
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	var limiter *ratelimit.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		limiter = ratelimit.NewRedisRateLimiter(rdb, "classwork:ratelimit", cfg.App.RateLimit, cfg.App.RateBurst)
	}

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RequestMetrics())
	r.MaxMultipartMemory = cfg.App.MaxUploadMB << 20

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		router:  r,
		users:   store.NewUserStore(db),
		tasks:   store.NewTaskStore(db),
		uploads: upload.NewSaver(cfg.Static.Dir),
		limiter: limiter,
	}
	s.registerRoutes()
	return s, nil
}

// Run 启动 HTTP 服务器并开始监听请求。
//
// 参数:
//
//	无 (使用配置中的地址)
//
// 返回值:
//
//	error: 服务器运行出错时返回
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// 上传的图片由静态路由直接对外提供
	s.router.Static(s.cfg.Static.Route, s.cfg.Static.Dir)

	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/")
	api.Use(middleware.RateLimit(s.limiter, s.logger))

	api.POST("/users", s.handleCreateUser)
	api.GET("/users", s.handleListUsers)
	api.GET("/users/:userId", s.handleGetUser)
	api.PUT("/users/:userId", s.handleUpdateOrCreateUser)
	api.DELETE("/users/:userId", s.handleDeleteUser)
	api.GET("/users/:userId/tasks", s.handleListUserTasks)
	api.PATCH("/users/:userId/images", s.handleUpdateUserImage)

	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks", s.handleListTasks)
	api.DELETE("/tasks/:taskId", s.handleDeleteTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseQueryInt 解析查询参数中的整数值。
//
// 参数:
//
//	c: Gin 上下文
//	key: 参数名
//	def: 默认值
//
// 返回值:
//
//	int: 解析后的整数或默认值
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

// parseIDParam 解析路径参数中的数字 id。
func parseIDParam(c *gin.Context, key string) (uint, bool) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
