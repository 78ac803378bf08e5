package server

import (
	"context"
	"time"
)

// State 引擎所处阶段
type State int

const (
	StatePending State = iota
	StateInitializing
	// StatePrepared 存储与组件已装配，HTTP 尚未监听
	StatePrepared
	StateRunning
	StateStopping
	StateStopped
	StateError
)

var stateNames = [...]string{"Pending", "Initializing", "Prepared", "Running", "Stopping", "Stopped", "Error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Hook 启动前或停止后执行的回调
type Hook func(ctx context.Context) error

// Options 引擎参数，零值由 defaultOptions 补齐
type Options struct {
	Name            string
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	beforeStart []Hook
	afterStop   []Hook
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Name:            "snaptrail",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// WithStartupTimeout 限制打开存储和装配组件的耗时
func WithStartupTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.StartupTimeout = d
		}
	}
}

// WithShutdownTimeout 限制 HTTP 关闭与队列排空的耗时
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithBeforeStart 失败会中止启动
func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.beforeStart = append(o.beforeStart, fn) }
}

// WithAfterStop 失败只记日志
func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.afterStop = append(o.afterStop, fn) }
}
