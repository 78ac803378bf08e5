// Package populate 根据内容类型结构计算一次读取所需的完整展开计划
package populate

import (
	"encoding/json"
	"sort"
)

// Plan 展开计划的一个节点。
//
// 两个字段都为空时是叶子，序列化为 true，表示整体展开但不再向下嵌套；
// Populate 列出需要继续展开的字段；On 用于动态区，按组件类型给出各自的计划。
type Plan struct {
	Populate map[string]*Plan
	On       map[string]*Plan
}

// Leaf 返回一个叶子节点
func Leaf() *Plan {
	return &Plan{}
}

// IsLeaf 是否为叶子
func (p *Plan) IsLeaf() bool {
	return p == nil || (len(p.Populate) == 0 && len(p.On) == 0)
}

// Depth 嵌套的 populate 层数，叶子为 0，动态区不额外计层
func (p *Plan) Depth() int {
	if p.IsLeaf() {
		return 0
	}
	depth := 0
	if len(p.Populate) > 0 {
		for _, child := range p.Populate {
			if d := child.Depth() + 1; d > depth {
				depth = d
			}
		}
	}
	for _, child := range p.On {
		if d := child.Depth(); d > depth {
			depth = d
		}
	}
	return depth
}

// Fields 按字典序返回 Populate 中的字段名
func (p *Plan) Fields() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Populate))
	for name := range p.Populate {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Child 返回字段对应的子计划，叶子节点对所有字段都返回叶子
func (p *Plan) Child(field string) (*Plan, bool) {
	if p == nil {
		return nil, false
	}
	if p.IsLeaf() {
		return Leaf(), true
	}
	child, ok := p.Populate[field]
	return child, ok
}

// Clone 深拷贝
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{}
	if p.Populate != nil {
		out.Populate = make(map[string]*Plan, len(p.Populate))
		for k, v := range p.Populate {
			out.Populate[k] = v.Clone()
		}
	}
	if p.On != nil {
		out.On = make(map[string]*Plan, len(p.On))
		for k, v := range p.On {
			out.On[k] = v.Clone()
		}
	}
	return out
}

// Merge 合并两个计划，返回新计划，不修改入参。
//
// 任一为 nil 时返回另一方的副本；叶子与非叶子合并时取非叶子一方；
// 两个非叶子按字段取并集并逐字段递归合并。
func Merge(a, b *Plan) *Plan {
	switch {
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	case a.IsLeaf():
		return b.Clone()
	case b.IsLeaf():
		return a.Clone()
	}
	return &Plan{
		Populate: mergeChildren(a.Populate, b.Populate),
		On:       mergeChildren(a.On, b.On),
	}
}

func mergeChildren(a, b map[string]*Plan) map[string]*Plan {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]*Plan, len(a)+len(b))
	for k, v := range a {
		out[k] = v.Clone()
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			out[k] = Merge(existing, v)
			continue
		}
		out[k] = v.Clone()
	}
	return out
}

// Query 根节点的对外形状：字段表直接位于顶层，没有可展开字段时为 true。
// 嵌套节点仍按 MarshalJSON 包一层 populate 或 on。
func (p *Plan) Query() any {
	if p.IsLeaf() {
		return true
	}
	return p.Populate
}

// MarshalJSON 叶子输出 true，其余输出 {"populate": ...} 或 {"on": ...}
func (p *Plan) MarshalJSON() ([]byte, error) {
	if p.IsLeaf() {
		return []byte("true"), nil
	}
	wire := struct {
		Populate map[string]*Plan `json:"populate,omitempty"`
		On       map[string]*Plan `json:"on,omitempty"`
	}{Populate: p.Populate, On: p.On}
	return json.Marshal(wire)
}

// UnmarshalJSON 接受 true 或对象形式
func (p *Plan) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		*p = Plan{}
		return nil
	}
	var wire struct {
		Populate map[string]*Plan `json:"populate"`
		On       map[string]*Plan `json:"on"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.Populate = wire.Populate
	p.On = wire.On
	return nil
}
