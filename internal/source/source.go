package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// AnnualFigures is one fiscal-year column from a provider's consensus
// table, normalized to canonical units: monetary amounts in million
// KRW, EPS in KRW, PER in multiples, ROE in percent. Nil means the
// provider did not expose the value.
type AnnualFigures struct {
	FiscalYear      int
	IsEstimate      bool
	Revenue         *float64
	OperatingProfit *float64
	NetIncome       *float64
	EPS             *float64
	PER             *float64
	ROE             *float64
}

// Client fetches one company's annual figures from one provider.
// An empty (nil, nil) result means the provider has no usable table
// for the company; only transport-level failures return an error.
type Client interface {
	Name() string
	FetchAnnual(ctx context.Context, code string) ([]AnnualFigures, error)
}

var periodHeaderRe = regexp.MustCompile(`^(\d{4})\.(\d{2})\s*(\(E\))?$`)

// parsePeriodHeader reads a fiscal-period column header like
// "2025.12(E)". The (E) marker flags a consensus estimate; headers
// without it are reported actuals.
func parsePeriodHeader(s string) (year int, estimate bool, ok bool) {
	m := periodHeaderRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, false
	}
	return year, m[3] != "", true
}

// parseNumber reads a numeric table cell. Thousands separators are
// stripped; empty cells and placeholder dashes mean "no value".
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "N/A" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// scaled multiplies a parsed value into the canonical unit.
func scaled(v *float64, factor float64) *float64 {
	if v == nil || factor == 1 {
		return v
	}
	out := *v * factor
	return &out
}
