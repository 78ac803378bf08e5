// Package requestctx 在 context 中携带发起请求的用户与客户端信息
package requestctx

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type metaContextKey string

const contextKeyMeta metaContextKey = "request_meta"

// Header 名称
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderRealIP    = "X-Real-Ip"
	HeaderForwarded = "X-Forwarded-For"
)

// Meta 一次请求的发起方信息，任何字段都可能为空
type Meta struct {
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// IsZero 是否完全没有信息
func (m Meta) IsZero() bool {
	return m == Meta{}
}

// WithMeta 在 context 中设置请求信息
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, contextKeyMeta, meta)
}

// FromContext 读取请求信息，没有请求上下文时返回零值
func FromContext(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	if meta, ok := ctx.Value(contextKeyMeta).(Meta); ok {
		return meta
	}
	return Meta{}
}

// FromRequest 从 HTTP 请求中提取信息
//
// 用户信息取自 X-User-* 头，由前置的认证网关写入；
// IP 依次取 X-Forwarded-For 第一段、X-Real-Ip、RemoteAddr。
func FromRequest(r *http.Request) Meta {
	if r == nil {
		return Meta{}
	}
	return Meta{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		UserEmail: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		UserName:  strings.TrimSpace(r.Header.Get(HeaderUserName)),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get(HeaderForwarded); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
