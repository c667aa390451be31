package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentLedger, Output: &buf})

	l.Info("Expense added", FieldExpenseID, "id-1")
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "expense_id=id-1") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug record should be filtered at info level")
	}
	if l.Component() != ComponentLedger {
		t.Fatalf("component = %s", l.Component())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "json", Output: &buf}).Warn("Persist failed")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"component":"app"`) {
		t.Fatalf("expected JSON record, got %q", buf.String())
	}
}

func TestFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentHTTP).
		WithRequestID("").
		WithError(nil).
		WithExpense("id-1", 12.5, "Sharath", "equal").
		WithHTTPResponse(404, 3)

	if _, ok := f[FieldRequestID]; ok {
		t.Error("empty request id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if f[FieldSuccess] != false || f[FieldAmount] != 12.5 {
		t.Errorf("unexpected fields %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("slice length = %d", got)
	}

	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Errorf("error = %v", f[FieldError])
	}
}

func TestMiddlewareCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	h := Middleware(base)(ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-42"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") || !strings.Contains(out, "component=http") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Logger == nil {
		t.Fatal("expected fallback logger")
	}
	if RequestID(context.Background()) != "" {
		t.Fatal("expected empty request id")
	}
}
