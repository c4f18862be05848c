package throttle

import "context"

// EnqueueTyped 是 Throttler.Enqueue 的泛型包装，返回 fn 的结果
func EnqueueTyped[T any](t *Throttler, ctx context.Context, key string, fn func() (T, error)) (T, error) {
	var result T
	err := t.Enqueue(ctx, key, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
