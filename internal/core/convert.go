package core

// convert.go turns raw user input into typed record fields.
//
// CSV rows use day-first dates (single-digit day and month allowed), while
// JSON bodies may send ISO dates or full RFC 3339 timestamps. Every parsed
// date is truncated to midnight UTC so it compares equal to the stored value.

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CSVDateLayout is the day-first layout of CSV dates. time.Parse accepts
// "1-2-2006" as well as zero-padded "01-02-2006" for this layout.
const CSVDateLayout = "2-1-2006"

// numericRegex validates a plain decimal number. It rejects hex, exponents,
// and currency symbols that decimal.NewFromString would otherwise tolerate.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Amounts are stored as numeric(14,2).
const (
	amountScale         = 2
	amountIntegerDigits = 12
)

// maxAmount is the smallest magnitude that no longer fits the column.
var maxAmount = decimal.New(1, amountIntegerDigits)

var inputDateLayouts = []string{
	DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	CSVDateLayout,
}

var (
	errEmptyValue    = errors.New("value is empty")
	errInvalidNumber = errors.New("invalid number")
)

// ParseCSVDate parses a DD-MM-YYYY date cell.
func ParseCSVDate(s string) (time.Time, error) {
	t, err := time.Parse(CSVDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return toDate(t), nil
}

// ParseInputDate parses a date from an API request body.
// Accepted: YYYY-MM-DD, RFC 3339, DD-MM-YYYY.
func ParseInputDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyValue
	}

	var firstErr error
	for _, layout := range inputDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return toDate(t), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// toDate drops the time of day. Timestamps are read in their own offset
// first, so "2024-03-01T23:00:00-05:00" stays on March 1st.
func toDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseAmount parses a decimal amount. It does not check the sign.
// Amounts with more decimal places or integer digits than the column holds
// fail with ErrAmountOutOfRange rather than being rounded by the database.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errEmptyValue
	}
	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, errInvalidNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.Equal(d.Truncate(amountScale)) || d.Abs().GreaterThanOrEqual(maxAmount) {
		return decimal.Decimal{}, ErrAmountOutOfRange
	}
	return d, nil
}

// ParsePositiveAmount parses an amount that must be greater than zero.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, ErrAmountNotPositive
	}
	return d, nil
}

// CleanCell trims whitespace and unwraps the Excel text-formula form ="...".
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}
