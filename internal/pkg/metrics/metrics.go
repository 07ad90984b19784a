package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "classwork"

// 指标在声明时就创建，未注册也能安全地 Inc/Observe，测试里不依赖注册顺序。
var (
	// HTTPRequestsTotal 按方法、路由、状态码计数的请求总量。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration 按方法、路由统计的请求耗时。
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// UsersCreatedTotal 创建成功的用户数。
	UsersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created_total",
		Help:      "Total number of users created.",
	})

	// TasksCreatedTotal 创建成功的任务数。
	TasksCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_created_total",
		Help:      "Total number of tasks created.",
	})

	// UploadsSavedTotal 落盘成功的上传文件数。
	UploadsSavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_saved_total",
		Help:      "Total number of uploaded files persisted.",
	})

	// UploadsRejectedTotal 因 MIME 类型被拒绝的上传数。
	UploadsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_rejected_total",
		Help:      "Total number of uploads rejected by the MIME allow-list.",
	})

	// RateLimitDeniedTotal 被限流拒绝的请求数。
	RateLimitDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_denied_total",
		Help:      "Total number of requests denied by the rate limiter.",
	})
)

var registerOnce sync.Once

// InitMetrics 把所有指标注册到默认 Registry，可安全地重复调用。
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			UsersCreatedTotal,
			TasksCreatedTotal,
			UploadsSavedTotal,
			UploadsRejectedTotal,
			RateLimitDeniedTotal,
		)
	})
}
