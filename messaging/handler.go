package messaging

import "context"

// IHandler 消息处理器。返回错误表示未处理成功，支持重投的传输会再次投递
type IHandler interface {
	Handle(ctx context.Context, message *Message) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, message *Message) error

func (f HandlerFunc) Handle(ctx context.Context, message *Message) error {
	return f(ctx, message)
}
