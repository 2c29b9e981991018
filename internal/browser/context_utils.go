package browser

import "context"

// CombineContext returns a context that carries primary's values (the CDP
// target for chromedp) and is done when either primary or op is done. op's
// deadline, if any, is applied as well.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(primary)
	cancelDeadline := context.CancelFunc(func() {})
	if d, ok := op.Deadline(); ok {
		ctx, cancelDeadline = context.WithDeadline(ctx, d)
	}
	stop := context.AfterFunc(op, func() { cancel(context.Cause(op)) })

	return ctx, func() {
		stop()
		cancelDeadline()
		cancel(context.Canceled)
	}
}
