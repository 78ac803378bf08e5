// Package retry 提供带指数退避的重试执行
package retry

import (
	"context"
	"math"
	"time"
)

// Operation 可重试的操作函数类型，attempt 从 1 开始
type Operation func(ctx context.Context, attempt int) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数
	MaxDelay      time.Duration // 最大延迟

	// Retryable 判断错误是否值得重试，nil 表示全部重试
	Retryable func(err error) bool

	// OnRetry 每次失败且即将重试时回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig 返回默认配置：3 次尝试，50ms 起步，翻倍，上限 2s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      2 * time.Second,
	}
}

// Delay 计算第 attempt 次失败后的等待时间
func (c Config) Delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Do 执行带重试的操作
//
// 返回 nil 表示某次尝试成功；否则返回最后一次的错误，
// 或在等待期间上下文被取消时返回 ctx.Err()。
//
//	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
//	    return store.Save(ctx, record)
//	}, retry.DefaultConfig())
func Do(ctx context.Context, op Operation, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}
