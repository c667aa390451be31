package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"flatmates/internal/core"
)

func newParser(t *testing.T, body, contentType string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	p := NewRequestBodyParser(httptest.NewRecorder(), req, 1024)
	return p
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name, body, contentType string
		isJSON                  bool
		wantAmount              string
		wantHasDate             bool
	}{
		{"json", `{"amount": 12.5, "date": null}`, "application/json", true, "12.5", false},
		{"json without content type", `{"amount":"3,20"}`, "", true, "3,20", false},
		{"form", "amount=7&date=", "application/x-www-form-urlencoded", false, "7", true},
		{"empty", "", "", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.body, tt.contentType)
			if err := p.Parse(); err != nil {
				t.Fatalf("parse: %v", err)
			}
			if p.IsJSON() != tt.isJSON {
				t.Errorf("IsJSON = %v", p.IsJSON())
			}
			if got := p.Get("amount"); got != tt.wantAmount {
				t.Errorf("amount = %q, want %q", got, tt.wantAmount)
			}
			if p.Has("date") != tt.wantHasDate {
				t.Errorf("Has(date) = %v", p.Has("date"))
			}
		})
	}
}

func TestRequestBodyParserLimits(t *testing.T) {
	p := newParser(t, `{"description":"`+strings.Repeat("x", 2048)+`"}`, "application/json")
	err := p.Parse()
	var tooBig *http.MaxBytesError
	if !errors.As(err, &tooBig) {
		t.Fatalf("expected MaxBytesError, got %v", err)
	}

	p = newParser(t, `{"description":`, "application/json")
	if err := p.Parse(); !errors.Is(err, errMalformedBody) {
		t.Fatalf("expected malformed body, got %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  Rent\x00 July\x07 \n"); got != "Rent July" {
		t.Fatalf("sanitizeInput = %q", got)
	}
}

func TestParsePatchForm(t *testing.T) {
	p := newParser(t, "paidBy=B&amount=10%2C25", "application/x-www-form-urlencoded")
	if err := p.Parse(); err != nil {
		t.Fatal(err)
	}
	patch, err := parsePatch(p)
	if err != nil {
		t.Fatalf("parsePatch: %v", err)
	}
	if patch.Description != nil || *patch.Amount != 10.25 || *patch.PaidBy != core.PartyThejas {
		t.Fatalf("unexpected patch %+v", patch)
	}
}

func TestParseDateParams(t *testing.T) {
	ref := core.NewDate(2025, 7, 15)
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"", "2025-07-15", false},
		{"month=2&day=28", "2025-02-28", false},
		{"year=2024&month=2&day=29", "2024-02-29", false},
		{"year=2025&month=2&day=29", "", true},
		{"month=0", "", true},
		{"day=x", "", true},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		got, err := ParseDateParams(q, ref)
		if tt.wantErr {
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("%q: expected validation error, got %v", tt.query, err)
			}
			continue
		}
		if err != nil || got.String() != tt.want {
			t.Errorf("%q: got %s, %v; want %s", tt.query, got, err, tt.want)
		}
	}
}
