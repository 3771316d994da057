package frame

import "context"

// Handler processes one inbound frame in the context of a caller-owned
// state value T (typically the connection the frame arrived on).
type Handler[T any] interface {
	Handle(ctx context.Context, src T, f *Frame) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, src T, f *Frame) error

// Handle implements Handler.
func (fn HandlerFunc[T]) Handle(ctx context.Context, src T, f *Frame) error {
	return fn(ctx, src, f)
}

// Dispatcher routes frames to handlers by frame type. An optional
// default handler catches unregistered types.
type Dispatcher[T any] struct {
	handlers       map[string]Handler[T]
	defaultHandler Handler[T]
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{handlers: make(map[string]Handler[T])}
}

// Register binds a handler to a frame type.
func (d *Dispatcher[T]) Register(frameType string, h Handler[T]) {
	d.handlers[frameType] = h
}

// RegisterFunc binds a handler function to a frame type.
func (d *Dispatcher[T]) RegisterFunc(frameType string, fn HandlerFunc[T]) {
	d.handlers[frameType] = fn
}

// Default sets the handler for frame types with no registration.
func (d *Dispatcher[T]) Default(h HandlerFunc[T]) {
	d.defaultHandler = h
}

// HasHandler reports whether frameType has an explicit handler.
func (d *Dispatcher[T]) HasHandler(frameType string) bool {
	_, ok := d.handlers[frameType]
	return ok
}

// Dispatch routes f to its handler, or to the default handler when the
// type is unregistered. With neither, the frame is dropped silently.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, src T, f *Frame) error {
	if h, ok := d.handlers[f.Type]; ok {
		return h.Handle(ctx, src, f)
	}
	if d.defaultHandler != nil {
		return d.defaultHandler.Handle(ctx, src, f)
	}
	return nil
}
