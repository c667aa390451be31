package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"flatmates/internal/balance"
	"flatmates/internal/core"
	"flatmates/internal/export"
	"flatmates/internal/ledger"
	"flatmates/internal/metrics"
	"flatmates/internal/middleware/ratelimit"
	"flatmates/internal/store"
	"flatmates/internal/store/memory"
)

var fixedNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, backend store.Store, mutate ...func(*Options)) *testServer {
	t.Helper()
	n := 0
	m := metrics.New()
	opts := Options{
		Ledger: ledger.New(backend,
			ledger.WithClock(func() time.Time { return fixedNow }),
			ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
			ledger.WithObserver(m)),
		Metrics: m,
		Now:     func() time.Time { return fixedNow },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	s := NewServer(":0", opts)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return &testServer{Server: s, metrics: m}
}

func (s *testServer) do(t *testing.T, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(t *testing.T, target string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return s.do(t, http.MethodPost, target, string(b), "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	probeErr := errors.New("database is locked")
	var failing bool
	s := newTestServer(t, nil, func(o *Options) {
		o.Ready = func(context.Context) error {
			if failing {
				return probeErr
			}
			return nil
		}
	})

	if rec := s.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK || decode[readyBody](t, rec).Status != "ready" {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body)
	}

	failing = true
	rec = s.do(t, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable || decode[readyBody](t, rec).Error != probeErr.Error() {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body)
	}
}

func TestCreateExpense(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantField   string
		wantPct     [2]int
	}{
		{
			name:        "json equal split",
			body:        `{"description":"Rent July","amount":1200,"paidBy":"Sharath","date":"2025-07-01"}`,
			contentType: "application/json",
			wantStatus:  http.StatusCreated,
			wantPct:     [2]int{50, 50},
		},
		{
			name:        "form preset relative to payer",
			body:        "description=Wifi&amount=30%2C50&paidBy=thejas&splitType=60-40",
			contentType: "application/x-www-form-urlencoded",
			wantStatus:  http.StatusCreated,
			wantPct:     [2]int{40, 60},
		},
		{
			name:        "custom split",
			body:        `{"description":"Cook","amount":"90","paidBy":"Thejas","splitType":"custom","sharathPercent":25,"thejasPercent":75}`,
			contentType: "application/json",
			wantStatus:  http.StatusCreated,
			wantPct:     [2]int{25, 75},
		},
		{
			name:        "custom split not summing to 100",
			body:        `{"description":"Cook","amount":90,"paidBy":"Thejas","splitType":"custom","sharathPercent":25,"thejasPercent":70}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "percent",
		},
		{
			name:        "custom split missing percents",
			body:        `{"description":"Cook","amount":90,"paidBy":"Thejas","splitType":"custom"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "percent",
		},
		{
			name:        "blank description",
			body:        `{"description":"   ","amount":10,"paidBy":"Sharath"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "description",
		},
		{
			name:        "zero amount",
			body:        `{"description":"Water","amount":0,"paidBy":"Sharath"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "amount",
		},
		{
			name:        "unknown payer",
			body:        `{"description":"Water","amount":5,"paidBy":"Carol"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "paidBy",
		},
		{
			name:        "unknown split",
			body:        `{"description":"Water","amount":5,"paidBy":"Sharath","splitType":"90-10"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
			wantField:   "splitType",
		},
		{
			name:        "malformed json",
			body:        `{"description":`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			rec := s.do(t, http.MethodPost, "/api/expenses", tt.body, tt.contentType)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantStatus != http.StatusCreated {
				if tt.wantField != "" {
					if got := decode[ErrorBody](t, rec).Field; got != tt.wantField {
						t.Errorf("field = %q, want %q", got, tt.wantField)
					}
				}
				if len(s.ledger.All()) != 0 {
					t.Error("rejected request must not mutate the ledger")
				}
				return
			}

			e := decode[core.Expense](t, rec)
			if e.SharathPercent != tt.wantPct[0] || e.ThejasPercent != tt.wantPct[1] {
				t.Errorf("percents = %d/%d, want %v", e.SharathPercent, e.ThejasPercent, tt.wantPct)
			}
			if rec.Header().Get("Location") != "/api/expenses/"+e.ID {
				t.Errorf("Location = %q", rec.Header().Get("Location"))
			}
			if rec.Header().Get(HeaderSyncWarning) != "" {
				t.Errorf("unexpected sync warning %q", rec.Header().Get(HeaderSyncWarning))
			}
		})
	}
}

func TestCreateDefaultsDateToToday(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.postJSON(t, "/api/expenses", map[string]interface{}{
		"description": "Uber home", "amount": 12.5, "paidBy": "a",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	e := decode[core.Expense](t, rec)
	if e.Date.String() != "2025-07-15" || e.Category != core.CategoryTransport || e.PaidBy != core.PartySharath {
		t.Fatalf("unexpected record %+v", e)
	}
}

func TestListAndFilter(t *testing.T) {
	s := newTestServer(t, nil)
	for _, body := range []map[string]interface{}{
		{"description": "Rent", "amount": 1000, "paidBy": "Sharath"},
		{"description": "Groceries", "amount": 80, "paidBy": "Thejas"},
		{"description": "Doctor visit", "amount": 40, "paidBy": "Thejas"},
	} {
		if rec := s.postJSON(t, "/api/expenses", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed: %d %s", rec.Code, rec.Body)
		}
	}

	all := decode[expenseList](t, s.do(t, http.MethodGet, "/api/expenses", "", ""))
	if all.Count != 3 || all.Expenses[0].Description != "Doctor visit" || all.Version != 3 {
		t.Fatalf("unexpected list %+v", all)
	}

	tests := []struct {
		q    string
		want int
	}{
		{"thejas", 2},
		{"MEDICAL", 1},
		{"rent", 1},
		{"  ", 3},
		{"nothing", 0},
		{".env", 0},
		{".git", 0},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodGet, "/api/expenses?q="+url.QueryEscape(tt.q), "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("q=%q: status = %d, want 200", tt.q, rec.Code)
			continue
		}
		list := decode[expenseList](t, rec)
		if list.Count != tt.want || len(list.Expenses) != tt.want {
			t.Errorf("q=%q: count = %d, want %d", tt.q, list.Count, tt.want)
		}
	}
}

func TestEditExpense(t *testing.T) {
	s := newTestServer(t, nil)
	s.postJSON(t, "/api/expenses", map[string]interface{}{
		"description": "Internet", "amount": 40, "paidBy": "Sharath", "splitType": "70-30",
	})

	rec := s.do(t, http.MethodPatch, "/api/expenses/id-1", `{"description":"Electric bill","amount":"45.5"}`, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	e := decode[core.Expense](t, rec)
	if e.Amount != 45.5 || e.Category != core.CategoryElectricity || e.SharathPercent != 70 {
		t.Fatalf("unexpected record %+v", e)
	}

	tests := []struct {
		name, target, body string
		want               int
	}{
		{"split is immutable", "/api/expenses/id-1", `{"splitType":"equal"}`, http.StatusUnprocessableEntity},
		{"empty patch", "/api/expenses/id-1", `{}`, http.StatusUnprocessableEntity},
		{"blank description", "/api/expenses/id-1", `{"description":""}`, http.StatusUnprocessableEntity},
		{"bad amount", "/api/expenses/id-1", `{"amount":-3}`, http.StatusUnprocessableEntity},
		{"unknown id", "/api/expenses/nope", `{"amount":3}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPatch, tt.target, tt.body, "application/json")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	got, _ := s.ledger.Get("id-1")
	if got.Description != "Electric bill" || got.Amount != 45.5 {
		t.Fatalf("failed edits must leave the record unchanged, got %+v", got)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Water", "amount": 5, "paidBy": "Sharath"})
	}

	if rec := s.do(t, http.MethodDelete, "/api/expenses/id-2", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/expenses/id-2", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/expenses/id-2", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", rec.Code)
	}

	rec := s.do(t, http.MethodDelete, "/api/expenses", "", "")
	if rec.Code != http.StatusBadRequest || len(s.ledger.All()) != 2 {
		t.Fatalf("unconfirmed clear = %d, %d left", rec.Code, len(s.ledger.All()))
	}
	if rec := s.do(t, http.MethodDelete, "/api/expenses?confirm=true", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("confirmed clear = %d", rec.Code)
	}
	if len(s.ledger.All()) != 0 {
		t.Fatal("ledger should be empty")
	}
}

func TestBalance(t *testing.T) {
	s := newTestServer(t, nil)

	empty := decode[balance.Summary](t, s.do(t, http.MethodGet, "/api/balance", "", ""))
	if empty.Settlement.Status != balance.StatusSettled || empty.Settlement.Message != "All settled up" {
		t.Fatalf("empty ledger settlement = %+v", empty.Settlement)
	}

	s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Rent", "amount": 100, "paidBy": "Sharath"})
	s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Groceries", "amount": 40, "paidBy": "Thejas", "splitType": "60-40"})

	sum := decode[balance.Summary](t, s.do(t, http.MethodGet, "/api/balance", "", ""))
	// Sharath: paid 100, share 50 + 16 = 66, net +34.
	if sum.Settlement.Message != "Thejas owes Sharath 34.00" || sum.Count != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if got := s.metrics.NetBalance(core.PartySharath); got != sum.NetA {
		t.Errorf("net gauge = %v, want %v", got, sum.NetA)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	for _, body := range []map[string]interface{}{
		{"description": "Rent", "amount": 900, "paidBy": "Sharath", "date": "2025-07-01"},
		{"description": "Groceries", "amount": 60, "paidBy": "Thejas", "date": "2025-07-10"},
		{"description": "Food order", "amount": 30, "paidBy": "Thejas", "date": "2025-07-12"},
		{"description": "Rent", "amount": 900, "paidBy": "Sharath", "date": "2025-06-01"},
	} {
		s.postJSON(t, "/api/expenses", body)
	}

	stats := decode[balance.MonthStats](t, s.do(t, http.MethodGet, "/api/stats", "", ""))
	if stats.Total != 990 || stats.Count != 3 || stats.Day != 15 || stats.DailyAverage != 66 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// Categories appear in ledger order, newest first.
	if len(stats.ByCategory) != 2 || stats.ByCategory[0].Category != core.CategoryGroceries || stats.ByCategory[0].Amount != 90 {
		t.Fatalf("unexpected categories %+v", stats.ByCategory)
	}

	june := decode[balance.MonthStats](t, s.do(t, http.MethodGet, "/api/stats?month=6&day=30", "", ""))
	if june.Total != 900 || june.DailyAverage != 30 {
		t.Fatalf("unexpected june stats %+v", june)
	}

	s.do(t, http.MethodGet, "/api/stats", "", "")
	if hits := s.metrics.CacheLookups("stats", "hit"); hits != 1 {
		t.Fatalf("cache hits = %v, want 1", hits)
	}

	// A mutation bumps the version, so the cached view is not reused.
	s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Water", "amount": 10, "paidBy": "Sharath", "date": "2025-07-14"})
	stats = decode[balance.MonthStats](t, s.do(t, http.MethodGet, "/api/stats", "", ""))
	if stats.Total != 1000 {
		t.Fatalf("stale stats served: %+v", stats)
	}

	for _, q := range []string{"month=13", "day=31&month=6", "year=abc"} {
		if rec := s.do(t, http.MethodGet, "/api/stats?"+q, "", ""); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d", q, rec.Code)
		}
	}
}

func TestExportImport(t *testing.T) {
	src := newTestServer(t, nil)
	src.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Rent", "amount": 1000, "paidBy": "Sharath", "date": "2025-07-01"})
	src.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Maid", "amount": 200, "paidBy": "Thejas", "splitType": "custom", "sharathPercent": 30, "thejasPercent": 70, "date": "2025-07-02"})

	rec := src.do(t, http.MethodGet, "/api/export", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), "flatmates-export-2025-07-15.json") {
		t.Fatalf("export = %d %v", rec.Code, rec.Header())
	}
	bundle := rec.Body.String()

	dst := newTestServer(t, nil)
	rec = dst.do(t, http.MethodPost, "/api/import", bundle, "application/json")
	if rec.Code != http.StatusOK || decode[importResult](t, rec).Imported != 2 {
		t.Fatalf("import = %d %s", rec.Code, rec.Body)
	}

	var reexported bytes.Buffer
	if err := export.Encode(&reexported, export.New(dst.ledger.All(), fixedNow)); err != nil {
		t.Fatal(err)
	}
	if reexported.String() != bundle {
		t.Fatalf("round trip differs\n got: %s\nwant: %s", reexported.String(), bundle)
	}

	csvRec := src.do(t, http.MethodGet, "/api/export.csv", "", "")
	if !strings.HasPrefix(csvRec.Body.String(), "id,date,description,amount,paidBy") {
		t.Fatalf("csv = %q", csvRec.Body.String())
	}
	csvDst := newTestServer(t, nil)
	rec = csvDst.do(t, http.MethodPost, "/api/import", csvRec.Body.String(), "text/csv")
	if rec.Code != http.StatusOK || len(csvDst.ledger.All()) != 2 {
		t.Fatalf("csv import = %d %s", rec.Code, rec.Body)
	}
}

func TestImportRejectsInvalidBundle(t *testing.T) {
	s := newTestServer(t, nil)
	s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Rent", "amount": 10, "paidBy": "Sharath"})

	bad := `{"expenses":[{"id":"x","description":"Rent","amount":10,"paidBy":"Sharath","date":"2025-07-01",` +
		`"splitType":"custom","sharathPercent":50,"thejasPercent":40,"category":"rent","timestamp":"2025-07-01T00:00:00Z"}]}`
	if rec := s.do(t, http.MethodPost, "/api/import", bad, "application/json"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec := s.do(t, http.MethodPost, "/api/import", "id,date\nx,notadate", "text/csv"); rec.Code != http.StatusBadRequest {
		t.Fatalf("csv status = %d: %s", rec.Code, rec.Body)
	}
	if len(s.ledger.All()) != 1 {
		t.Fatal("failed import must leave the ledger untouched")
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) ([]core.Expense, error) { return nil, nil }
func (failingStore) Save(context.Context, []core.Expense) error {
	return &core.PersistenceWarning{Backend: "sheets", Op: "save", Err: errors.New("quota exceeded")}
}

func TestSyncWarningHeader(t *testing.T) {
	s := newTestServer(t, failingStore{})
	rec := s.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Rent", "amount": 10, "paidBy": "Sharath"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: the mutation must succeed despite the failed save", rec.Code)
	}
	if got := rec.Header().Get(HeaderSyncWarning); got != "sheets save failed: quota exceeded" {
		t.Fatalf("%s = %q", HeaderSyncWarning, got)
	}
	if s.metrics.PersistWarnings("sheets", "save") != 1 {
		t.Fatal("warning should be counted")
	}

	ready := decode[readyBody](t, s.do(t, http.MethodGet, "/readyz", "", ""))
	if ready.LastWarning == "" || ready.Status != "ready" {
		t.Fatalf("readyz = %+v", ready)
	}

	okSave := newTestServer(t, memory.New(nil))
	rec = okSave.postJSON(t, "/api/expenses", map[string]interface{}{"description": "Rent", "amount": 10, "paidBy": "Sharath"})
	if rec.Header().Get(HeaderSyncWarning) != "" {
		t.Fatal("no warning expected after a successful save")
	}
}

func TestRateLimitAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, func(o *Options) { o.RateLimit = ratelimit.Config{Limit: 2} })
	body := map[string]interface{}{"description": "Water", "amount": 5, "paidBy": "Sharath"}

	for i := 0; i < 2; i++ {
		if rec := s.postJSON(t, "/api/expenses", body); rec.Code != http.StatusCreated {
			t.Fatalf("post %d = %d", i, rec.Code)
		}
	}
	rec := s.postJSON(t, "/api/expenses", body)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third post = %d", rec.Code)
	}
	// Reads are not limited.
	if rec := s.do(t, http.MethodGet, "/api/expenses", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}

	out := s.do(t, http.MethodGet, "/metrics", "", "").Body.String()
	for _, want := range []string{
		`flatmates_ledger_operations_total{op="add",result="ok"} 2`,
		`route="/api/expenses",status="4xx"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/api/balance", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rec.Header().Get("X-Request-ID"))
	}
	if rec := s.do(t, http.MethodGet, "/.git/config", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("scanner path = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/nothing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/balance", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method = %d", rec.Code)
	}
}
