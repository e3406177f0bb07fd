package bridge

import "context"

// FromFunc adapts a context-aware blocking function into a Single. The
// function runs on the subscribing goroutine and its ctx is cancelled when
// the subscription is disposed.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Single[T] {
	return func(ctx context.Context, emit Emitter[T]) {
		v, err := fn(ctx)
		if err != nil {
			emit.Error(err)
			return
		}
		emit.Success(v)
	}
}

// Map transforms the value of a Single.
func Map[T, R any](src Single[T], fn func(T) (R, error)) Single[R] {
	return func(ctx context.Context, emit Emitter[R]) {
		src(ctx, mapEmitter[T, R]{emit: emit, fn: fn})
	}
}

type mapEmitter[T, R any] struct {
	emit Emitter[R]
	fn   func(T) (R, error)
}

func (m mapEmitter[T, R]) Success(v T) {
	r, err := m.fn(v)
	if err != nil {
		m.emit.Error(err)
		return
	}
	m.emit.Success(r)
}

func (m mapEmitter[T, R]) Error(err error) {
	m.emit.Error(err)
}

// Just returns a Single that emits v.
func Just[T any](v T) Single[T] {
	return func(ctx context.Context, emit Emitter[T]) {
		emit.Success(v)
	}
}

// Fail returns a Single that emits err.
func Fail[T any](err error) Single[T] {
	return func(ctx context.Context, emit Emitter[T]) {
		emit.Error(err)
	}
}

// Never returns a Single that emits nothing and returns once disposed.
func Never[T any]() Single[T] {
	return func(ctx context.Context, emit Emitter[T]) {
		<-ctx.Done()
	}
}
