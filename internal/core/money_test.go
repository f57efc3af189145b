package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.50", true},
		{".5", "0.50", true},
		{"0", "0.00", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{".", "", false},
		{"10000000000000", "", false},
		{"25,000", "25000.00", true},
		{"25,000.50", "25000.50", true},
		{"1,234,567.5", "1234567.50", true},
		{"12,5", "12.50", true},
		{"12,3456", "12.35", true},
		{"1,2,3", "", false},
		{"12,34.5", "", false},
		{"1234,567.5", "", false},
		{"12,", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.StringFixed(2) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got.StringFixed(2), err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":         "0.00",
		"500":       "500.00",
		"25000":     "25,000.00",
		"1234567.5": "1,234,567.50",
		"-1200":     "-1,200.00",
	}
	for in, want := range cases {
		d := decimal.RequireFromString(in)
		if got := FormatAmount(d); got != want {
			t.Errorf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	for _, in := range []string{"0", "999.99", "25000", "1234567.5", "1000000000"} {
		d := decimal.RequireFromString(in)
		formatted := FormatAmount(d)
		got, err := ParseAmount(formatted)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error = %v", formatted, err)
		}
		if !got.Equal(d.Round(2)) {
			t.Errorf("ParseAmount(FormatAmount(%s)) = %s", in, got)
		}
	}
}
