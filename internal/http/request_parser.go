// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept both JSON bodies and the form-encoded bodies htmx sends.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bilancio/internal/core"
)

// maxBodyBytes caps request bodies read by RequestBodyParser.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// ParseMonth reads the month from query parameters. It accepts
// month=YYYY-MM, or year=YYYY&month=M where missing parts come from fallback.
func ParseMonth(query url.Values, fallback core.MonthKey) (core.MonthKey, error) {
	v := strings.TrimSpace(query.Get("month"))
	if strings.Contains(v, "-") {
		return core.ParseMonthKey(v)
	}

	year, month := fallback.Year, fallback.Month
	if y := strings.TrimSpace(query.Get("year")); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return core.MonthKey{}, core.ErrInvalidMonth
		}
		year = n
	}
	if v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.MonthKey{}, core.ErrInvalidMonth
		}
		month = n
	}
	m := core.NewMonthKey(year, month)
	if err := m.Validate(); err != nil {
		return core.MonthKey{}, err
	}
	return m, nil
}

// ParsePeriod reads from=YYYY-MM-DD&to=YYYY-MM-DD, falling back to a month
// parsed by ParseMonth.
func ParsePeriod(query url.Values, fallback core.MonthKey) (core.Period, error) {
	from, to := strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to"))
	if from == "" && to == "" {
		m, err := ParseMonth(query, fallback)
		if err != nil {
			return core.Period{}, err
		}
		return core.MonthPeriod(m), nil
	}
	f, err := core.ParseDate(from)
	if err != nil {
		return core.Period{}, err
	}
	t, err := core.ParseDate(to)
	if err != nil {
		return core.Period{}, err
	}
	p := core.Period{From: f, To: t}
	return p, p.Validate()
}

// ParseLimit reads a positive limit capped at max. Missing or invalid values yield 0.
func ParseLimit(query url.Values, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(query.Get("limit")))
	if err != nil || n <= 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
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

// sanitizeInput removes control characters except tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
