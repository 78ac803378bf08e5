package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"time"

	"snaptrail/api"
	"snaptrail/config"
	"snaptrail/logging"
)

// App snaptrail 服务进程：HTTP API、任务调度器与审计队列消费者
type App struct {
	configPath string
	cfg        *config.Config

	components *Components
	httpServer *http.Server
}

// NewApp 创建 App。cfg 非 nil 时直接使用，否则从 configPath 加载
func NewApp(configPath string, cfg *config.Config) *App {
	return &App{configPath: configPath, cfg: cfg}
}

func (a *App) Name() string {
	return "snaptrail"
}

func (a *App) LoadConfig() error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	logging.SetLogger(logging.NewStdLoggerTo(os.Stderr, "[snaptrail] ", logging.ParseLevel(a.cfg.Log.Level)))
	return nil
}

func (a *App) SetupDependencies(ctx context.Context) error {
	components, err := Build(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.components = components
	a.httpServer = &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: api.NewHTTPHandler(components.Handler, api.Options{
			CORSOrigins: a.cfg.HTTP.CORSOrigins,
			Mode:        a.cfg.HTTP.Mode,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (a *App) StartBackgroundTasks(ctx context.Context) error {
	return a.components.Start(ctx)
}

func (a *App) Run(ctx context.Context) error {
	logging.GetLogger().Info(ctx, "http listening", logging.String("addr", a.cfg.HTTP.Addr))
	if err := a.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.components != nil {
		if err := a.components.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Config 已加载的配置
func (a *App) Config() *config.Config {
	return a.cfg
}
