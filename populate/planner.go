package populate

import (
	"context"

	"snaptrail/cache"
	"snaptrail/logging"
	"snaptrail/metrics"
	"snaptrail/redact"
	"snaptrail/schema"
)

// Planner 根据注册表生成展开计划，计算过程只读注册表，可并发调用
type Planner struct {
	registry schema.IRegistry
	omit     redact.OmitSet
	memo     *cache.Cache[string, *Plan]
	logger   logging.Logger
}

// Option 配置 Planner
type Option func(*Planner)

// WithCache 以 (注册表版本, 类型) 为键缓存计划，size<=0 时不缓存
func WithCache(size int) Option {
	return func(p *Planner) {
		if size > 0 {
			p.memo = cache.New[string, *Plan](cache.Config{Name: "populate_plans", MaxSize: size})
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner 创建 Planner，omit 中的字段不参与展开
func NewPlanner(registry schema.IRegistry, omit redact.OmitSet, opts ...Option) *Planner {
	p := &Planner{
		registry: registry,
		omit:     omit,
		logger:   logging.GetLogger().WithFields(logging.Component("populate")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan 返回 uid 的完整展开计划。
//
// 未知类型返回叶子；路径上已出现的类型在再次出现处截断为叶子，
// 因此自引用或互相引用的结构也能得到有限的计划。返回值归调用方所有。
func (p *Planner) Plan(uid string) *Plan {
	if p.memo == nil {
		return p.build(uid, nil)
	}

	key := p.registry.Version() + "\x00" + uid
	if cached, ok := p.memo.Get(key); ok {
		metrics.PlanCacheHits.Inc()
		return cached.Clone()
	}
	metrics.PlanCacheMisses.Inc()

	plan := p.build(uid, nil)
	p.memo.Set(key, plan)
	return plan.Clone()
}

// build 计算 uid 的计划，path 为当前分支上已经访问过的类型
func (p *Planner) build(uid string, path []string) *Plan {
	for _, seen := range path {
		if seen == uid {
			return Leaf()
		}
	}

	entity, ok := p.registry.Get(uid)
	if !ok {
		p.logger.Debug(context.Background(), "unknown entity type, expanding top level only", logging.String("uid", uid))
		return Leaf()
	}

	// 每个分支持有自己的路径副本，兄弟字段互不影响
	branch := make([]string, len(path)+1)
	copy(branch, path)
	branch[len(path)] = uid

	fields := make(map[string]*Plan)
	for _, f := range entity.Fields {
		if p.omit.Has(f.Name) {
			continue
		}
		switch f.Kind {
		case schema.KindRelation, schema.KindComponent:
			fields[f.Name] = p.build(f.Target, branch)
		case schema.KindDynamicZone:
			fields[f.Name] = p.zone(f.Components, branch)
		case schema.KindMedia:
			fields[f.Name] = Leaf()
		}
	}

	if len(fields) == 0 {
		return Leaf()
	}
	return &Plan{Populate: fields}
}

func (p *Planner) zone(components []string, branch []string) *Plan {
	if len(components) == 0 {
		return Leaf()
	}
	on := make(map[string]*Plan, len(components))
	for _, c := range components {
		on[c] = p.build(c, branch)
	}
	return &Plan{On: on}
}
