package requestctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Empty(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsZero())
}

func TestWithMeta_RoundTrip(t *testing.T) {
	meta := Meta{UserID: "7", UserEmail: "ed@example.com", IPAddress: "10.0.0.1"}
	ctx := WithMeta(context.Background(), meta)
	assert.Equal(t, meta, FromContext(ctx))
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"forwarded first hop", map[string]string{HeaderForwarded: "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.5"},
		{"real ip", map[string]string{HeaderRealIP: "198.51.100.7"}, "10.0.0.1:80", "198.51.100.7"},
		{"remote without port", nil, "192.0.2.99", "192.0.2.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.wantIP, FromRequest(r).IPAddress)
		})
	}
}

func TestFromRequest_Headers(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/documents/x", nil)
	r.Header.Set(HeaderUserID, " 42 ")
	r.Header.Set(HeaderUserEmail, "editor@example.com")
	r.Header.Set(HeaderUserName, "editor")
	r.Header.Set("User-Agent", "snaptrail-test")
	r.RemoteAddr = "192.0.2.1:1234"

	assert.Equal(t, Meta{
		UserID:    "42",
		UserEmail: "editor@example.com",
		UserName:  "editor",
		IPAddress: "192.0.2.1",
		UserAgent: "snaptrail-test",
	}, FromRequest(r))
}
