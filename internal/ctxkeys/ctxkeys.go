// Package ctxkeys 统一管理请求级 context 值, 避免各包自造键类型互相读不到.
package ctxkeys

import "context"

// contextKey 独立键类型, 防止与其他包的 context 值相撞
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientIPKey  contextKey = "client_ip"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

// stringValue 未设置与空串一律按"没有"处理
func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 把请求 ID 挂到 context, 供日志关联与响应回填
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// RequestID 取出请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithClientIP 把客户端 IP 挂到 context, 审计事件会带上它
func WithClientIP(ctx context.Context, ip string) context.Context {
	return withString(ctx, clientIPKey, ip)
}

// ClientIP 取出客户端 IP
func ClientIP(ctx context.Context) (string, bool) {
	return stringValue(ctx, clientIPKey)
}
