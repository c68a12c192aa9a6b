package middleware

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*
LEARNING: TRACING A LONG-LIVED CONNECTION

A websocket starts life as an ordinary HTTP request, so it gets the same root
span as every other request. The difference is that the handler only returns
when the connection ends: the span (and the request log line) cover the whole
session, and per-frame work hangs off it as child spans.
*/

var tracer = otel.Tracer("collab-sync")

type contextKey int

const requestIDKey contextKey = iota

// TracingMiddleware opens a server span per request and logs one line when it ends
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// KSUIDs sort by time, so ids in the log read in request order
		id := ksuid.New().String()
		upgrade := r.Header.Get("Upgrade") != ""

		name := "HTTP " + r.Method + " " + r.URL.Path
		if upgrade {
			name = "WebSocket " + r.URL.Path
		}
		ctx, span := tracer.Start(context.WithValue(r.Context(), requestIDKey, id), name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("user_agent.original", r.UserAgent()),
				attribute.String("client.address", r.RemoteAddr),
				attribute.Bool("http.upgrade", upgrade),
				attribute.String("request.id", id),
			),
		)
		defer span.End()

		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		// Client errors are the caller's fault; only 5xx marks the server span failed
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		if rec.hijacked {
			log.Printf("[%s] %s %s - websocket closed after %s", id, r.Method, r.URL.Path, elapsed.Round(time.Millisecond))
			return
		}
		log.Printf("[%s] %s %s - %d (%dms)", id, r.Method, r.URL.Path, rec.status, elapsed.Milliseconds())
	})
}

// statusRecorder remembers the response status and whether the connection was taken over
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack hands the raw connection to the websocket upgrader
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		r.status = http.StatusSwitchingProtocols
		r.hijacked = true
	}
	return conn, rw, err
}

// StartSpan starts a child span of whatever span ctx carries
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddSpanError marks the span in ctx failed; nil errors are ignored
func AddSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RequestID returns the id TracingMiddleware assigned, or "-" outside a request
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "-"
}
