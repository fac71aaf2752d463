package session

import (
	"context"
	"fmt"
)

// NonFatal runs fn and reports whether it succeeded. Errors and panics are
// logged and never reach the caller.
func NonFatal(ctx context.Context, op string, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log().Error("recovered panic", "op", op, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	if err := fn(ctx); err != nil {
		log().Warn("operation failed", "op", op, "error", err)
		return false
	}
	return true
}
