package server

import (
	"context"
	"fmt"
	"sync"

	"snaptrail/api"
	"snaptrail/audit"
	"snaptrail/audit/memstore"
	auditsql "snaptrail/audit/sqlstore"
	"snaptrail/config"
	core "snaptrail/data/db"
	"snaptrail/data/db/basic"
	"snaptrail/dispatch"
	"snaptrail/document"
	"snaptrail/document/memory"
	"snaptrail/logging"
	"snaptrail/messaging"
	memtransport "snaptrail/messaging/transport/memory"
	"snaptrail/messaging/transport/natsjetstream"
	"snaptrail/messaging/transport/redisstreams"
	"snaptrail/patterns/retry"
	"snaptrail/populate"
	"snaptrail/redact"
	"snaptrail/schema"
	"snaptrail/snowflake"
	"snaptrail/task"
	tasksql "snaptrail/task/sqlstore"
)

// Stores 审计与任务存储，memory 驱动时不持有数据库连接
type Stores struct {
	Audit audit.IStore
	Tasks task.IStore
	db    *basic.DB
}

// OpenStores 按 store.driver 打开存储并执行迁移
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.Store.Driver == "memory" {
		return &Stores{Audit: memstore.New(), Tasks: task.NewMemoryStore()}, nil
	}

	db, err := basic.Open(ctx, core.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	auditStore, err := auditsql.New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	taskStore, err := tasksql.New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Stores{Audit: auditStore, Tasks: taskStore, db: db}, nil
}

// Close 关闭数据库连接
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Components 装配好的运行时组件
type Components struct {
	Config    *config.Config
	Registry  *schema.Registry
	Planner   *populate.Planner
	Engine    *memory.Engine
	Pipeline  *document.Pipeline
	Stores    *Stores
	Recorder  *audit.Recorder
	Audits    *audit.Service
	Tasks     *task.Service
	Executor  *task.Executor
	Scheduler *task.Scheduler
	Handler   *api.Handler

	// Transport 为 nil 表示 detached 模式
	Transport messaging.ITransport
	detached  *dispatch.Detached

	background sync.WaitGroup
	logger     logging.Logger
}

// Build 根据配置装配全部组件，不启动任何后台任务
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := logging.GetLogger().WithFields(logging.Component("wire"))

	registry, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", cfg.Schema.Path, err)
	}
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Components{Config: cfg, Registry: registry, Stores: stores, logger: logger}
	omit := redact.NewOmitSet(cfg.Audit.OmitFields...)
	c.Planner = populate.NewPlanner(registry, omit, populate.WithCache(cfg.Audit.PlanCacheSize))
	c.Engine = memory.New(registry)

	ids, err := snowflake.NewGenerator(cfg.Audit.DatacenterID, cfg.Audit.WorkerID)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	c.Recorder = audit.NewRecorder(stores.Audit, ids,
		audit.WithOmitSet(omit),
		audit.WithSchemaVersion(cfg.Audit.SchemaVersion))

	dispatcher, err := c.buildDispatcher()
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	c.Pipeline = document.NewPipeline(c.Engine)
	c.Pipeline.Use(audit.NewInterceptor(c.Planner, c.Engine, dispatcher,
		audit.WithRecordType(cfg.Audit.RecordType)))

	c.Audits = audit.NewService(stores.Audit, audit.NewRestorer(c.Pipeline), cfg.Audit.ListLimit, cfg.Audit.MaxListLimit)
	c.Tasks = task.NewService(stores.Tasks)
	c.Executor = task.NewExecutor(stores.Tasks, c.Pipeline)
	c.Scheduler = task.NewScheduler(c.Executor, cfg.Tasks.PollInterval)
	c.Handler = api.NewHandler(api.Deps{
		Audits:    c.Audits,
		Tasks:     c.Tasks,
		Executor:  c.Executor,
		Documents: c.Pipeline,
		Planner:   c.Planner,
	})

	logger.Info(ctx, "components ready",
		logging.String("store", cfg.Store.Driver),
		logging.String("dispatch", cfg.Dispatch.Mode),
		logging.String("schema_version", registry.Version()))
	return c, nil
}

func (c *Components) buildDispatcher() (audit.IDispatcher, error) {
	cfg := c.Config.Dispatch
	switch cfg.Mode {
	case config.DispatchDetached:
		c.detached = dispatch.NewDetached(c.Recorder)
		return c.detached, nil
	case config.DispatchMemory:
		c.Transport = memtransport.NewMemoryTransport(cfg.QueueSize, cfg.Workers)
	case config.DispatchRedis:
		t, err := redisstreams.NewTransport(redisstreams.Config{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamPrefix: cfg.Redis.StreamPrefix,
			GroupName:    cfg.Redis.Group,
			MaxLen:       cfg.Redis.MaxLen,
			ClaimMinIdle: cfg.Redis.ClaimMinIdle,
		})
		if err != nil {
			return nil, err
		}
		c.Transport = t
	case config.DispatchNATS:
		c.Transport = natsjetstream.NewTransport(natsjetstream.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			DurablePrefix: cfg.NATS.DurablePrefix,
			AckWait:       cfg.NATS.AckWait,
			MaxDeliver:    cfg.NATS.MaxDeliver,
		})
	default:
		return nil, fmt.Errorf("unsupported dispatch mode %q", cfg.Mode)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Retry.InitialDelay
	retryCfg.MaxDelay = cfg.Retry.MaxDelay
	consumer := dispatch.NewConsumer(c.Recorder, retryCfg, c.Transport.Stats().Name)
	if err := consumer.Register(c.Transport); err != nil {
		return nil, err
	}
	return dispatch.NewQueued(c.Transport, cfg.PublishTimeout), nil
}

// Start 启动消息传输，tasks.enabled 时启动调度器；ctx 取消后调度器退出。
// 传输不随 ctx 停止，由 Close 排空后关闭。
func (c *Components) Start(ctx context.Context) error {
	if c.Transport != nil {
		if err := c.Transport.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("start %s transport: %w", c.Transport.Stats().Name, err)
		}
	}
	if c.Config.Tasks.Enabled {
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			_ = c.Scheduler.Run(ctx)
		}()
	}
	return nil
}

// Close 等待后台任务与未完成的审计写入，再关闭传输与存储。
// 调用前应先取消传给 Start 的 ctx。
func (c *Components) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.background.Wait()
		if c.detached != nil {
			c.detached.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn(ctx, "background work still running at shutdown")
	}

	var firstErr error
	if c.Transport != nil {
		if err := c.Transport.Close(); err != nil {
			firstErr = fmt.Errorf("close transport: %w", err)
		}
	}
	if err := c.Stores.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}
	return firstErr
}
