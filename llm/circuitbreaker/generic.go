package circuitbreaker

import "context"

// CallWithResultTyped 是 CircuitBreaker.CallWithResult 的泛型包装，省去类型断言。
//
//	resp, err := circuitbreaker.CallWithResultTyped(cb, ctx, func() (*llm.Response, error) {
//	    return provider.Invoke(ctx, req)
//	})
func CallWithResultTyped[T any](cb CircuitBreaker, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := cb.CallWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}
