package audit

import (
	"encoding/json"
	"time"

	"snaptrail/document"
	"snaptrail/requestctx"
)

// Capture 一次写操作完成后交给记录器的原始材料，可序列化后经队列传递
type Capture struct {
	TypeUID   string          `json:"type_uid"`
	Operation document.Kind   `json:"operation"`
	Before    map[string]any  `json:"before"`
	After     map[string]any  `json:"after"`
	Locale    string          `json:"locale,omitempty"`
	Meta      requestctx.Meta `json:"meta"`
	At        time.Time       `json:"at"`
}

// Snapshot 把文档转成与调用方完全隔离的 JSON 形状副本，nil 保持 nil
func Snapshot(doc document.Document) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
