// Package redact 从快照中递归剔除指定字段名
package redact

import "sort"

// DefaultOmitFields 默认剔除的系统字段
var DefaultOmitFields = []string{
	"createdAt",
	"createdBy",
	"updatedAt",
	"updatedBy",
	"publishedAt",
	"users",
	"roles",
	"permissions",
}

// OmitSet 需要剔除的字段名集合，按名称匹配，不区分所在层级
type OmitSet map[string]struct{}

// NewOmitSet 创建集合，空字符串被忽略
func NewOmitSet(names ...string) OmitSet {
	s := make(OmitSet, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has 名称是否需要剔除
func (s OmitSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names 按字典序返回集合内容
func (s OmitSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Redact 返回剔除了 omit 中字段名后的副本，不修改入参。
//
// 对象逐键过滤并递归，数组逐元素递归，其余值原样返回。
// nil 对象保持 nil，空对象返回新的空对象。
func Redact(value any, omit OmitSet) any {
	switch v := value.(type) {
	case map[string]any:
		return Object(v, omit)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Redact(item, omit)
		}
		return out
	case []map[string]any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Object(item, omit)
		}
		return out
	default:
		return value
	}
}

// Object 针对对象的 Redact
func Object(obj map[string]any, omit OmitSet) map[string]any {
	if obj == nil {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if omit.Has(k) {
			continue
		}
		out[k] = Redact(v, omit)
	}
	return out
}
