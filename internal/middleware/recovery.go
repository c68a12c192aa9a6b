package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorRecoveryMiddleware turns a handler panic into a 500 and a failed span.
// Panics inside session goroutines are not covered: those never run under a handler.
func ErrorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			// Let net/http abort the response as it intends to
			if v == http.ErrAbortHandler {
				panic(v)
			}

			stack := debug.Stack()
			AddSpanError(r.Context(), fmt.Errorf("panic: %v", v))
			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("exception.type", "panic"),
				attribute.String("exception.stacktrace", string(stack)),
			)
			log.Printf("[%s] 💥 panic serving %s: %v\n%s", RequestID(r.Context()), r.URL.Path, v, stack)

			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
