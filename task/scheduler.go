package task

import (
	"context"
	"time"

	"snaptrail/logging"
)

// Scheduler 按固定间隔处理到期任务
type Scheduler struct {
	executor *Executor
	interval time.Duration
	clock    func() time.Time
	logger   logging.Logger
}

// NewScheduler 创建调度器，interval 非正时为 1 分钟
func NewScheduler(executor *Executor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		executor: executor,
		interval: interval,
		clock:    time.Now,
		logger:   logging.GetLogger().WithFields(logging.Component("task.scheduler")),
	}
}

// Run 立即处理一次，之后每个间隔处理一次，直到 ctx 结束
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "task scheduler started", logging.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.WithoutCancel(ctx), "task scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.executor.ProcessPending(ctx, s.clock()); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, "process pending tasks failed", logging.Error(err))
	}
}
