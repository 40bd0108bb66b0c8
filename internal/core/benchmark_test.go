package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseCSVDate benchmarks the DD-MM-YYYY date parser.
// This runs once per row during CSV import.
func BenchmarkParseCSVDate(b *testing.B) {
	testCases := []string{
		"15-01-2024",
		"5-1-2024",
		"31-12-1999",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseCSVDate(tc)
		}
	}
}

// BenchmarkParseAmount benchmarks decimal amount parsing.
func BenchmarkParseAmount(b *testing.B) {
	testCases := []string{
		"123",
		"456.78",
		"  999.99  ",
		"0.01",
		"not-a-number",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseAmount(tc)
		}
	}
}

// BenchmarkCleanCell benchmarks cell cleaning with various inputs.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"simple",
		"  whitespace  ",
		`="excel formula"`,
		"",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

// BenchmarkValidateRow benchmarks per-row validation of a valid row.
func BenchmarkValidateRow(b *testing.B) {
	row := Row{Line: 1, Fields: []string{"15-01-2024", "Groceries", "42.10", "USD"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = validateRow(row)
	}
}

// ============================================================================
// Streaming and Parsing Benchmarks
// ============================================================================

// BenchmarkReadRows benchmarks decoding a 1000 row file.
func BenchmarkReadRows(b *testing.B) {
	data := generateTestCSV(1000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ReadRows(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWrapForStreaming_LargeFile benchmarks the BOM and UTF-8 layers
// on a file with a BOM.
func BenchmarkWrapForStreaming_LargeFile(b *testing.B) {
	data := append([]byte("\xEF\xBB\xBF"), generateTestCSV(10000)...)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, _ := WrapForStreaming(bytes.NewReader(data))
		if _, err := io.Copy(io.Discard, r); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkUTF8Sanitizer_Invalid benchmarks sanitizing input that needs
// replacements on every line.
func BenchmarkUTF8Sanitizer_Invalid(b *testing.B) {
	line := "15-01-2024,Caf\xe9 au lait,4.50,EUR\n"
	data := []byte(strings.Repeat(line, 5000))

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := io.Copy(io.Discard, NewUTF8Sanitizer(bytes.NewReader(data))); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Import Benchmarks
// ============================================================================

// BenchmarkImportCSV benchmarks a full import of 500 new rows into SQLite.
func BenchmarkImportCSV(b *testing.B) {
	ctx := context.Background()
	data := generateTestCSV(500)
	parsed, err := ReadRows(bytes.NewReader(data))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		service := NewService(newTestStore(b))
		b.StartTimer()

		if _, err := service.ImportCSV(ctx, parsed); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

// generateTestCSV generates CSV data with the specified number of unique rows.
func generateTestCSV(rows int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		w.Write([]string{
			start.AddDate(0, 0, i%365).Format(CSVDateLayout),
			fmt.Sprintf("Payment %d", i),
			"1234.56",
			"USD",
		})
	}
	w.Flush()

	return buf.Bytes()
}
