package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flatmates/internal/core"
	"flatmates/internal/ledger"
)

// errMalformedBody marks request bodies that cannot be decoded at all.
var errMalformedBody = errors.New("malformed request body")

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its fields as trimmed strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request, maxBytes int64) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	return p
}

// Parse decodes the body as JSON when it looks like an object, as a form
// otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errMalformedBody, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(trimmed)
	if err != nil {
		p.err = fmt.Errorf("%w: %v", errMalformedBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Has reports whether key was supplied at all, even as an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns the sanitised value of key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseAddRequest maps body fields onto an add request. Field-level problems
// are ValidationErrors; a missing date is left zero for the ledger to fill.
func parseAddRequest(p *RequestBodyParser) (ledger.AddRequest, error) {
	req := ledger.AddRequest{Description: p.Get("description")}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return req, core.NewValidationError("amount", "must be a positive decimal number")
	}
	req.Amount = amount

	payer, err := core.ParseParty(p.Get("paidBy"))
	if err != nil {
		return req, core.NewValidationError("paidBy", fmt.Sprintf("unknown party %q", p.Get("paidBy")))
	}
	req.PaidBy = payer

	if v := p.Get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return req, core.NewValidationError("date", "expected YYYY-MM-DD")
		}
		req.Date = d
	}

	if req.SplitType, err = core.ParseSplitType(p.Get("splitType")); err != nil {
		return req, err
	}

	if req.SharathPercent, err = optionalPercent(p, "sharathPercent"); err != nil {
		return req, err
	}
	if req.ThejasPercent, err = optionalPercent(p, "thejasPercent"); err != nil {
		return req, err
	}
	return req, nil
}

func optionalPercent(p *RequestBodyParser, key string) (*int, error) {
	v := p.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, core.NewValidationError(key, "must be a whole number")
	}
	return &n, nil
}

// parsePatch collects the editable fields that were supplied. Split fields
// are immutable once recorded.
func parsePatch(p *RequestBodyParser) (ledger.Patch, error) {
	var patch ledger.Patch
	for _, key := range []string{"splitType", "sharathPercent", "thejasPercent"} {
		if p.Has(key) {
			return patch, core.NewValidationError(key, "split fields cannot be edited; delete and re-add the expense")
		}
	}

	if p.Has("description") {
		desc := p.Get("description")
		patch.Description = &desc
	}
	if p.Has("amount") {
		amount, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return patch, core.NewValidationError("amount", "must be a positive decimal number")
		}
		patch.Amount = &amount
	}
	if p.Has("paidBy") {
		payer, err := core.ParseParty(p.Get("paidBy"))
		if err != nil {
			return patch, core.NewValidationError("paidBy", fmt.Sprintf("unknown party %q", p.Get("paidBy")))
		}
		patch.PaidBy = &payer
	}
	if patch.Description == nil && patch.Amount == nil && patch.PaidBy == nil {
		return patch, core.NewValidationError("body", "no editable field supplied")
	}
	return patch, nil
}

// ParseDateParams reads year, month and day from query, each defaulting to
// the matching part of today. Out-of-range combinations are rejected.
func ParseDateParams(query url.Values, today core.Date) (core.Date, error) {
	year, month, day := today.Year(), int(today.Month()), today.Day()

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"year", &year},
		{"month", &month},
		{"day", &day},
	} {
		v := strings.TrimSpace(query.Get(f.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.Date{}, core.NewValidationError(f.key, "must be a number")
		}
		*f.dst = n
	}

	d := core.NewDate(year, month, day)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day || year < 1 {
		return core.Date{}, core.NewValidationError("date", fmt.Sprintf("%04d-%02d-%02d is not a calendar date", year, month, day))
	}
	return d, nil
}

// today returns the calendar date of now in UTC.
func today(now func() time.Time) core.Date {
	return core.DateOf(now().UTC())
}
