package memory

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader"

	"snaptrail/populate"
	"snaptrail/schema"
)

// renderer 一次读取内共享的渲染状态
type renderer struct {
	registry schema.IRegistry
	loader   *dataloader.Loader
}

func (r *renderer) document(ctx context.Context, typeUID string, doc *entry, plan *populate.Plan) map[string]any {
	out := map[string]any{
		"documentId": doc.id,
		"createdAt":  doc.createdAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":  doc.updatedAt.UTC().Format(time.RFC3339Nano),
	}
	if doc.publishedAt != nil {
		out["publishedAt"] = doc.publishedAt.UTC().Format(time.RFC3339Nano)
	} else {
		out["publishedAt"] = nil
	}
	if doc.locale != "" {
		out["locale"] = doc.locale
	}
	r.fields(ctx, typeUID, doc.fields, plan, out)
	return out
}

// fields 标量原样输出；可展开字段只有计划要求时才输出
func (r *renderer) fields(ctx context.Context, typeUID string, values map[string]any, plan *populate.Plan, out map[string]any) {
	t, known := r.registry.Get(typeUID)
	for key, value := range values {
		if !known {
			out[key] = value
			continue
		}
		f, ok := t.Field(key)
		if !ok || !f.Kind.Expandable() {
			out[key] = value
			continue
		}
		child, ok := plan.Child(key)
		if !ok {
			continue
		}
		out[key] = r.expand(ctx, f, value, child)
	}
}

func (r *renderer) expand(ctx context.Context, f schema.Field, value any, child *populate.Plan) any {
	switch f.Kind {
	case schema.KindRelation:
		return r.relation(ctx, f, value, nested(child))

	case schema.KindComponent:
		if items, ok := value.([]any); ok {
			out := make([]any, 0, len(items))
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					out = append(out, r.component(ctx, f.Target, m, nested(child)))
				}
			}
			return out
		}
		if m, ok := value.(map[string]any); ok {
			return r.component(ctx, f.Target, m, nested(child))
		}
		return nil

	case schema.KindDynamicZone:
		items, _ := value.([]any)
		out := make([]any, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			componentUID, _ := m[ComponentKey].(string)
			var sub *populate.Plan
			if child != nil {
				sub = nested(child.On[componentUID])
			}
			rendered := r.component(ctx, componentUID, m, sub)
			rendered[ComponentKey] = componentUID
			out = append(out, rendered)
		}
		return out

	default:
		return value
	}
}

func (r *renderer) component(ctx context.Context, typeUID string, values map[string]any, plan *populate.Plan) map[string]any {
	out := make(map[string]any, len(values))
	rest := values
	if _, ok := values[ComponentKey]; ok {
		rest = make(map[string]any, len(values))
		for k, v := range values {
			if k != ComponentKey {
				rest[k] = v
			}
		}
	}
	r.fields(ctx, typeUID, rest, plan, out)
	return out
}

func (r *renderer) relation(ctx context.Context, f schema.Field, value any, plan *populate.Plan) any {
	if ids, ok := value.([]any); ok {
		keys := make(dataloader.Keys, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				keys = append(keys, loaderKey(f.Target, s))
			}
		}
		loaded, _ := r.loader.LoadMany(ctx, keys)()
		out := make([]any, 0, len(loaded))
		for _, item := range loaded {
			if doc, ok := item.(*entry); ok && doc != nil {
				out = append(out, r.document(ctx, f.Target, doc, plan))
			}
		}
		return out
	}

	id, ok := value.(string)
	if !ok {
		return nil
	}
	item, err := r.loader.Load(ctx, loaderKey(f.Target, id))()
	if err != nil {
		return nil
	}
	doc, ok := item.(*entry)
	if !ok || doc == nil {
		return nil
	}
	return r.document(ctx, f.Target, doc, plan)
}

// nested 叶子计划表示只展开这一层
func nested(p *populate.Plan) *populate.Plan {
	if p.IsLeaf() {
		return nil
	}
	return p
}
