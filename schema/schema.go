// Package schema 描述内容类型的字段结构，供展开计划与文档引擎查询
package schema

import (
	"fmt"
	"sort"
	"sync"
)

// FieldKind 字段类别
type FieldKind string

const (
	KindScalar      FieldKind = "scalar"
	KindRelation    FieldKind = "relation"
	KindComponent   FieldKind = "component"
	KindDynamicZone FieldKind = "dynamiczone"
	KindMedia       FieldKind = "media"
)

// Valid 是否为已知类别
func (k FieldKind) Valid() bool {
	switch k {
	case KindScalar, KindRelation, KindComponent, KindDynamicZone, KindMedia:
		return true
	}
	return false
}

// Expandable 是否需要展开才能拿到完整值
func (k FieldKind) Expandable() bool {
	return k == KindRelation || k == KindComponent || k == KindDynamicZone || k == KindMedia
}

// Field 字段定义
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Kind FieldKind `yaml:"type" json:"type"`

	// Target relation 的目标类型或 component 的组件类型
	Target string `yaml:"target,omitempty" json:"target,omitempty"`

	// Components dynamiczone 允许的组件类型
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`

	// Multiple 一对多关系、可重复组件或多文件媒体
	Multiple bool `yaml:"multiple,omitempty" json:"multiple,omitempty"`
}

// EntityType 一个内容类型或组件的结构
type EntityType struct {
	UID    string  `yaml:"uid" json:"uid"`
	Kind   string  `yaml:"kind,omitempty" json:"kind,omitempty"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Field 按名称查找字段
func (t *EntityType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate 检查字段定义是否自洽
func (t *EntityType) Validate() error {
	if t.UID == "" {
		return fmt.Errorf("schema: entity type without uid")
	}
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: %s has a field without name", t.UID)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: %s declares field %q twice", t.UID, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Kind.Valid() {
			return fmt.Errorf("schema: %s.%s has unknown type %q", t.UID, f.Name, f.Kind)
		}
		if (f.Kind == KindRelation || f.Kind == KindComponent) && f.Target == "" {
			return fmt.Errorf("schema: %s.%s needs a target", t.UID, f.Name)
		}
	}
	return nil
}

// IRegistry 内容类型注册表
type IRegistry interface {
	// Get 返回类型结构，未知类型返回 false
	Get(uid string) (*EntityType, bool)

	// Version 注册表内容的版本，内容变化时必须变化
	Version() string
}

// Registry 内存注册表
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*EntityType
	version string
}

// NewRegistry 创建注册表
func NewRegistry(version string, types ...EntityType) (*Registry, error) {
	r := &Registry{types: make(map[string]*EntityType, len(types)), version: version}
	for i := range types {
		if err := r.Register(types[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry 创建注册表，定义有误时 panic，供测试与内置夹具使用
func MustRegistry(version string, types ...EntityType) *Registry {
	r, err := NewRegistry(version, types...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register 注册或替换一个类型
func (r *Registry) Register(t EntityType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	fields := make([]Field, len(t.Fields))
	copy(fields, t.Fields)
	t.Fields = fields

	r.mu.Lock()
	r.types[t.UID] = &t
	r.mu.Unlock()
	return nil
}

// SetVersion 更新版本号，替换类型定义后调用
func (r *Registry) SetVersion(version string) {
	r.mu.Lock()
	r.version = version
	r.mu.Unlock()
}

func (r *Registry) Get(uid string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[uid]
	return t, ok
}

func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// UIDs 返回已注册类型，按字典序
func (r *Registry) UIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for uid := range r.types {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
