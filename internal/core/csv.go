package core

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Row is one decoded CSV record with its 1-based line number.
type Row struct {
	Line   int
	Fields []string
}

// ReadRows decodes all records from r. Records may have any number of fields;
// field count is checked during validation so a short row is reported as
// invalid rather than failing the file. Blank lines are skipped.
//
// Any decoder error (for example a bare quote) aborts with a *ParseError.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Line: pe.Line, Err: pe.Err}
			}
			return nil, &ParseError{Err: err}
		}

		if isBlankRecord(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{Line: line, Fields: record})
	}

	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
