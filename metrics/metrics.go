// Package metrics 集中定义 prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PlanCacheHits 命中缓存的展开计划
	PlanCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrail_populate_plan_cache_hits_total",
		Help: "Populate plans served from the plan cache",
	})

	PlanCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrail_populate_plan_cache_misses_total",
		Help: "Populate plans computed because the cache had no entry",
	})

	// CapturesTotal 被拦截并派发的写操作，按操作类型
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrail_audit_captures_total",
		Help: "Mutations intercepted and dispatched for auditing",
	}, []string{"operation"})

	// CaptureFailures 派发或构建审计记录失败
	CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrail_audit_capture_failures_total",
		Help: "Audit captures that could not be dispatched or built",
	}, []string{"stage"})

	// BeforeFetchFailures 变更前快照读取失败
	BeforeFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrail_audit_before_fetch_failures_total",
		Help: "Pre-mutation snapshot reads that failed and were recorded as absent",
	})

	// PersistFailures 审计记录写入失败
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrail_audit_persist_failures_total",
		Help: "Audit records that failed to persist",
	})

	// PersistDuration 审计记录写入耗时
	PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snaptrail_audit_persist_duration_seconds",
		Help:    "Time spent persisting one audit record",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// RestoresTotal 恢复请求，按结果
	RestoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrail_restores_total",
		Help: "Snapshot restores by outcome",
	}, []string{"outcome"})

	// TaskRuns 定时任务执行，按最终状态
	TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrail_task_runs_total",
		Help: "Scheduled task executions by final status",
	}, []string{"status"})

	// QueueJobs 队列消费结果
	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrail_queue_jobs_total",
		Help: "Queued audit jobs by consumer outcome",
	}, []string{"transport", "outcome"})
)

// Handler 默认注册表的 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
