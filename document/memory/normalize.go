package memory

import (
	"fmt"

	"snaptrail/errors"
	"snaptrail/schema"
)

// normalize 把写入数据转成存储形态：关系值收敛为ID，组件与动态区逐层校验。
// 已展开的关系对象（例如来自快照）按其 documentId 还原为引用。
func (e *Engine) normalize(typeUID string, data map[string]any) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}

	t, known := e.registry.Get(typeUID)
	out := make(map[string]any, len(data))
	for key, value := range data {
		if _, system := systemFields[key]; system {
			continue
		}
		if !known {
			out[key] = cloneValue(value)
			continue
		}
		f, ok := t.Field(key)
		if !ok {
			return nil, errors.Errorf(errors.ErrCodeValidation, "unknown field %q on %s", key, typeUID)
		}
		normalized, err := e.normalizeField(typeUID, f, value)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}
	return out, nil
}

func (e *Engine) normalizeField(typeUID string, f schema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch f.Kind {
	case schema.KindRelation:
		return normalizeRelation(typeUID, f, value)

	case schema.KindComponent:
		if f.Multiple {
			items, ok := value.([]any)
			if !ok {
				return nil, fieldError(typeUID, f, "expects a list of components")
			}
			out := make([]any, 0, len(items))
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fieldError(typeUID, f, "expects component objects")
				}
				c, err := e.normalize(f.Target, m)
				if err != nil {
					return nil, err
				}
				out = append(out, c)
			}
			return out, nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fieldError(typeUID, f, "expects a component object")
		}
		return e.normalize(f.Target, m)

	case schema.KindDynamicZone:
		items, ok := value.([]any)
		if !ok {
			return nil, fieldError(typeUID, f, "expects a list of components")
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fieldError(typeUID, f, "expects component objects")
			}
			componentUID, _ := m[ComponentKey].(string)
			if !allowed(f.Components, componentUID) {
				return nil, fieldError(typeUID, f, fmt.Sprintf("does not allow component %q", componentUID))
			}
			rest := make(map[string]any, len(m))
			for k, v := range m {
				if k != ComponentKey {
					rest[k] = v
				}
			}
			c, err := e.normalize(componentUID, rest)
			if err != nil {
				return nil, err
			}
			c[ComponentKey] = componentUID
			out = append(out, c)
		}
		return out, nil

	default:
		return cloneValue(value), nil
	}
}

func normalizeRelation(typeUID string, f schema.Field, value any) (any, error) {
	if f.Multiple {
		items, ok := value.([]any)
		if !ok {
			return nil, fieldError(typeUID, f, "expects a list of references")
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			id, ok := referenceID(item)
			if !ok {
				return nil, fieldError(typeUID, f, "has an invalid reference")
			}
			out = append(out, id)
		}
		return out, nil
	}
	id, ok := referenceID(value)
	if !ok {
		return nil, fieldError(typeUID, f, "has an invalid reference")
	}
	return id, nil
}

// referenceID 接受ID字符串或带 documentId 的对象
func referenceID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		id, ok := t["documentId"].(string)
		return id, ok && id != ""
	}
	return "", false
}

func allowed(components []string, uid string) bool {
	if uid == "" {
		return false
	}
	if len(components) == 0 {
		return true
	}
	for _, c := range components {
		if c == uid {
			return true
		}
	}
	return false
}

func fieldError(typeUID string, f schema.Field, msg string) error {
	return errors.Errorf(errors.ErrCodeValidation, "%s.%s %s", typeUID, f.Name, msg)
}
