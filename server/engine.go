// Package server 编排进程生命周期：加载配置、装配依赖、启动后台任务、运行 HTTP 服务、优雅关闭
package server

import (
	"context"
	"fmt"
	"sync"

	"snaptrail/logging"
)

// IServer 应用需要实现的生命周期步骤
type IServer interface {
	Name() string

	// LoadConfig 解析配置文件与环境变量
	LoadConfig() error

	// SetupDependencies 连接存储、构建服务与路由
	SetupDependencies(ctx context.Context) error

	// StartBackgroundTasks 启动调度器、队列消费者等非阻塞任务，ctx 在关闭时取消
	StartBackgroundTasks(ctx context.Context) error

	// Run 阻塞运行主服务
	Run(ctx context.Context) error

	// Shutdown 释放资源
	Shutdown(ctx context.Context) error
}

// Engine 按固定顺序驱动 IServer：
// LoadConfig -> Setup -> Background -> Run -> 等待退出 -> Shutdown
type Engine struct {
	server  IServer
	options *Options
	logger  logging.Logger

	mu    sync.RWMutex
	state State
}

// NewEngine 创建引擎
func NewEngine(server IServer, opts ...Option) *Engine {
	options := defaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	return &Engine{
		server:  server,
		options: options,
		logger:  logging.GetLogger().WithFields(logging.Component("server"), logging.String("app", options.Name)),
		state:   StatePending,
	}
}

// State 当前状态
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run 执行完整生命周期，直到 ctx 结束或主服务退出
func (e *Engine) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e.logger.Info(ctx, "starting")
	e.setState(StateInitializing)

	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	err := e.server.SetupDependencies(setupCtx)
	setupCancel()
	if err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	e.setState(StatePrepared)

	for _, hook := range e.options.beforeStart {
		if err := hook(ctx); err != nil {
			e.setState(StateError)
			return fmt.Errorf("before-start hook failed: %w", err)
		}
	}

	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		// shutdown 会切到 Stopping，Error 须在其后设置
		_ = e.shutdown()
		e.setState(StateError)
		return fmt.Errorf("failed to start background tasks: %w", err)
	}

	e.setState(StateRunning)
	errChan := make(chan error, 1)
	go func() {
		errChan <- e.server.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errChan:
		if runErr != nil {
			e.logger.Error(ctx, "server stopped with error", logging.Error(runErr))
		} else {
			e.logger.Info(ctx, "server stopped")
		}
	case <-ctx.Done():
		e.logger.Info(context.WithoutCancel(ctx), "shutdown requested")
	}
	cancel()

	if err := e.shutdown(); err != nil {
		e.setState(StateError)
		return err
	}

	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}
	e.setState(StateStopped)
	e.logger.Info(context.Background(), "shutdown complete")
	return nil
}

func (e *Engine) shutdown() error {
	e.setState(StateStopping)
	ctx, cancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error(ctx, "shutdown failed", logging.Error(err))
		return err
	}
	for _, hook := range e.options.afterStop {
		if err := hook(ctx); err != nil {
			e.logger.Warn(ctx, "after-stop hook failed", logging.Error(err))
		}
	}
	return nil
}
