package collaboration

import (
	"context"
	"errors"
	"testing"

	"collab-sync/internal/models"
	"collab-sync/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type routerFixture struct {
	router   *Router
	registry *Registry
	document *DocumentState
	cursors  *CursorTable
	metrics  *telemetry.Metrics
	a, b     *Session
}

func newRouterFixture(t *testing.T, strict bool) *routerFixture {
	t.Helper()
	f := &routerFixture{
		registry: NewRegistry(),
		document: NewDocumentState(),
		cursors:  NewCursorTable(),
		metrics:  testMetrics(),
	}
	bc := NewBroadcaster(f.registry, f.metrics, nil)
	f.router = NewRouter(f.document, f.cursors, bc, f.metrics, strict)
	f.a, _ = admitFake(t, f.registry, 8)
	f.b, _ = admitFake(t, f.registry, 8)
	// Admission seeds a cursor at the start of the document
	f.cursors.Update(f.a.ID, 0, 0, 0)
	f.cursors.Update(f.b.ID, 0, 0, 0)
	return f
}

func (f *routerFixture) route(t *testing.T, frame string) error {
	t.Helper()
	return f.router.Route(context.Background(), f.a, []byte(frame))
}

func TestRouter_ContentChange(t *testing.T) {
	f := newRouterFixture(t, true)

	if err := f.route(t, `{"type":"content_change","content":"hello"}`); err != nil {
		t.Fatalf("Route: %v", err)
	}

	if got := string(f.document.Snapshot().Body); got != `"hello"` {
		t.Errorf("document body = %s", got)
	}
	if got := queued(t, f.a); len(got) != 0 {
		t.Errorf("sender received %v", got)
	}
	got := queued(t, f.b)
	if len(got) != 1 {
		t.Fatalf("peer received %d frames, want 1", len(got))
	}
	m := got[0]
	if m["type"] != models.TypeContentUpdate || m["content"] != "hello" || m["from"] != f.a.ID {
		t.Errorf("content_update = %v", m)
	}
}

func TestRouter_ContentChangeMissingContent(t *testing.T) {
	f := newRouterFixture(t, true)
	f.document.ReplaceBody([]byte(`"old"`))

	if err := f.route(t, `{"type":"content_change"}`); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := string(f.document.Snapshot().Body); got != `""` {
		t.Errorf("document body = %s, want empty string", got)
	}
	if got := queued(t, f.b); len(got) != 1 || got[0]["content"] != "" {
		t.Errorf("peer received %v", got)
	}
}

func TestRouter_ContentKeepsStructuredBody(t *testing.T) {
	f := newRouterFixture(t, true)
	body := `{"ops":[{"insert":"hi"}]}`

	if err := f.route(t, `{"type":"content_change","content":`+body+`}`); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := string(f.document.Snapshot().Body); got != body {
		t.Errorf("document body = %s, want %s", got, body)
	}
}

func TestRouter_CursorUpdateDefaultsSelection(t *testing.T) {
	f := newRouterFixture(t, true)

	if err := f.route(t, `{"type":"cursor_update","position":5}`); err != nil {
		t.Fatalf("Route: %v", err)
	}

	state, ok := f.cursors.Get(f.a.ID)
	if !ok || state.Position != 5 || state.SelectionStart != 0 || state.SelectionEnd != 0 {
		t.Errorf("stored cursor = %+v (present %v)", state, ok)
	}

	got := queued(t, f.b)
	if len(got) != 1 {
		t.Fatalf("peer received %d frames, want 1", len(got))
	}
	m := got[0]
	if m["type"] != models.TypeCursorPosition || m["clientId"] != f.a.ID {
		t.Errorf("cursor_position = %v", m)
	}
	if m["position"] != float64(5) || m["selectionStart"] != float64(0) || m["selectionEnd"] != float64(0) {
		t.Errorf("cursor_position numbers = %v", m)
	}
	if m["userColor"] != f.a.Color {
		t.Errorf("userColor = %v, want %s", m["userColor"], f.a.Color)
	}
}

func TestRouter_FormattingChangeMerges(t *testing.T) {
	f := newRouterFixture(t, true)

	if err := f.route(t, `{"type":"formatting_change","formatting":{"bold":true,"fontSize":18}}`); err != nil {
		t.Fatalf("Route: %v", err)
	}

	stored := f.document.Snapshot().Formatting
	if !stored.Bold || stored.FontSize != "18" || stored.Alignment != "left" {
		t.Errorf("stored formatting = %+v", stored)
	}

	got := queued(t, f.b)
	if len(got) != 1 {
		t.Fatalf("peer received %d frames, want 1", len(got))
	}
	formatting, _ := got[0]["formatting"].(map[string]interface{})
	if got[0]["from"] != f.a.ID || formatting["bold"] != true || formatting["alignment"] != "left" {
		t.Errorf("formatting_update = %v", got[0])
	}
}

func TestRouter_InvalidFormattingDroppedWhenStrict(t *testing.T) {
	f := newRouterFixture(t, true)

	err := f.route(t, `{"type":"formatting_change","formatting":{"bold":true,"alignment":"diagonal"}}`)
	if !errors.Is(err, models.ErrInvalidFormatting) {
		t.Fatalf("Route error = %v, want ErrInvalidFormatting", err)
	}
	if f.document.Snapshot().Formatting != models.DefaultFormatting() {
		t.Error("an invalid patch must not be partially applied")
	}
	if got := queued(t, f.b); len(got) != 0 {
		t.Errorf("peer received %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.DecodeErrors); got != 1 {
		t.Errorf("decode errors = %v, want 1", got)
	}
}

func TestRouter_PermissiveFormattingPassesThrough(t *testing.T) {
	f := newRouterFixture(t, false)

	if err := f.route(t, `{"type":"formatting_change","formatting":{"alignment":"diagonal"}}`); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := f.document.Snapshot().Formatting.Alignment; got != "diagonal" {
		t.Errorf("alignment = %q", got)
	}
}

func TestRouter_UnknownTypeRelayedVerbatim(t *testing.T) {
	f := newRouterFixture(t, true)
	frame := `{"type":"emoji_reaction","emoji":"🎉","extra":{"nested":[1,2]}}`

	if err := f.route(t, frame); err != nil {
		t.Fatalf("Route: %v", err)
	}

	select {
	case got := <-f.b.send:
		if string(got) != frame {
			t.Errorf("relayed %s, want %s", got, frame)
		}
	default:
		t.Fatal("peer received nothing")
	}
	if got := queued(t, f.a); len(got) != 0 {
		t.Errorf("sender received %v", got)
	}
}

func TestRouter_MalformedFramesDropped(t *testing.T) {
	frames := []string{
		`not json`,
		`{"content":"no type"}`,
		`{"type":"cursor_update","position":"abc"}`,
		`{"type":"content_change","content":`,
	}

	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			f := newRouterFixture(t, true)

			err := f.route(t, frame)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("Route error = %v, want ErrMalformedFrame", err)
			}
			if got := queued(t, f.b); len(got) != 0 {
				t.Errorf("peer received %v", got)
			}
			if got := testutil.ToFloat64(f.metrics.DecodeErrors); got != 1 {
				t.Errorf("decode errors = %v, want 1", got)
			}
		})
	}
}

func TestRouter_AcceptsBrowserFormattingRecord(t *testing.T) {
	f := newRouterFixture(t, true)
	// A block-level change from the editor carries the whole record, with the
	// color as the browser reports it for the current selection
	frame := `{"type":"formatting_change","formatting":{"alignment":"center","fontSize":"14",` +
		`"fontFamily":"Arial","bold":false,"italic":false,"underline":false,` +
		`"color":"rgb(0, 0, 0)","lineHeight":"1.6"},"from":"` + f.a.ID + `"}`

	if err := f.route(t, frame); err != nil {
		t.Fatalf("Route: %v", err)
	}

	stored := f.document.Snapshot().Formatting
	if stored.Alignment != "center" || stored.Color != "rgb(0, 0, 0)" {
		t.Errorf("stored formatting = %+v", stored)
	}
	got := queued(t, f.b)
	if len(got) != 1 || got[0]["type"] != models.TypeFormattingUpdate {
		t.Fatalf("peer received %v, want one formatting_update", got)
	}
}

func TestRouter_DepartedSessionChangesNothing(t *testing.T) {
	frames := []string{
		`{"type":"content_change","content":"from a departed session"}`,
		`{"type":"cursor_update","position":7}`,
		`{"type":"formatting_change","formatting":{"bold":true}}`,
		`{"type":"emoji_reaction","emoji":"👋"}`,
	}

	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			f := newRouterFixture(t, true)
			before := f.document.Snapshot()

			f.registry.Remove(f.a.ID)
			f.a.Close()
			f.cursors.Remove(f.a.ID)

			if err := f.route(t, frame); !errors.Is(err, ErrSessionClosed) {
				t.Fatalf("Route error = %v, want ErrSessionClosed", err)
			}

			after := f.document.Snapshot()
			if string(after.Body) != string(before.Body) || after.Formatting != before.Formatting {
				t.Errorf("document changed: %+v", after)
			}
			if _, ok := f.cursors.Get(f.a.ID); ok {
				t.Error("departed session's cursor came back")
			}
			if f.cursors.Len() != 1 {
				t.Errorf("cursor count = %d, want 1", f.cursors.Len())
			}
			if got := queued(t, f.b); len(got) != 0 {
				t.Errorf("peer received %v", got)
			}
		})
	}
}

func TestRouter_CursorAfterRemovalNotRecreated(t *testing.T) {
	f := newRouterFixture(t, true)

	// The departure lands while a frame is already past the open check
	f.cursors.Remove(f.a.ID)

	if err := f.route(t, `{"type":"cursor_update","position":3}`); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Route error = %v, want ErrSessionClosed", err)
	}
	if _, ok := f.cursors.Get(f.a.ID); ok {
		t.Error("cursor entry recreated after removal")
	}
	if got := queued(t, f.b); len(got) != 0 {
		t.Errorf("peer received %v", got)
	}
}

func TestRouter_FractionalCursorTruncated(t *testing.T) {
	f := newRouterFixture(t, true)

	if err := f.route(t, `{"type":"cursor_update","position":5.5,"selectionEnd":null}`); err != nil {
		t.Fatalf("Route: %v", err)
	}
	got := queued(t, f.b)
	if len(got) != 1 || got[0]["position"] != float64(5) || got[0]["selectionEnd"] != float64(0) {
		t.Errorf("peer received %v", got)
	}
}
