package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/ledger/internal/logging"
)

// csvFieldCount is the number of fields in an import row:
// date, description, amount, currency.
const csvFieldCount = 4

// ContextCheckInterval is how often, in rows, the import checks for cancellation.
var ContextCheckInterval = 100

// candidate is a validated row waiting for duplicate checks.
type candidate struct {
	row         Row
	date        time.Time
	description string
	amount      decimal.Decimal
	currency    string
}

func (c *candidate) key() Key {
	return NewKey(c.date, c.description)
}

// ImportReader decodes a CSV stream and imports its rows.
// It holds an import slot, when a limiter is configured, for the whole run.
func (s *Service) ImportReader(ctx context.Context, r io.Reader) (*ImportResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			if errors.Is(err, ErrTooManyImports) {
				return nil, err
			}
			return nil, &Error{Kind: KindUnavailable, Message: "import cancelled", Err: err}
		}
		defer s.limiter.Release()
	}

	stream, counter := WrapForStreaming(r)
	rows, err := ReadRows(stream)
	if err != nil {
		logging.FromContext(ctx).Warn("csv decode failed", "bytes", counter.BytesRead, "error", err)
		return nil, err
	}

	return s.ImportCSV(ctx, rows)
}

// ImportCSV validates rows, drops duplicates and writes new records in
// batches. When nothing new is staged it returns the result together with
// ErrNothingToImport so callers can still report rejected rows.
func (s *Service) ImportCSV(ctx context.Context, rows []Row) (*ImportResult, error) {
	startTime := time.Now()
	log := logging.WithFields(ctx, "import_id", uuid.NewString(), "rows", len(rows))
	log.Info("import started")

	result := &ImportResult{
		Transactions:  []Transaction{},
		InvalidRows:   []RowError{},
		DuplicateRows: []RowError{},
	}

	candidates := make([]candidate, 0, len(rows))
	for i, row := range rows {
		if i%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, &Error{Kind: KindUnavailable, Message: "import cancelled", Err: ctx.Err()}
		}

		c, reason := validateRow(row)
		if reason != "" {
			result.InvalidRows = append(result.InvalidRows, RowError{Line: row.Line, Reason: reason, Data: row.Fields})
			continue
		}
		candidates = append(candidates, c)
	}

	keys := make([]Key, 0, len(candidates))
	seenKeys := make(map[Key]struct{}, len(candidates))
	for i := range candidates {
		k := candidates[i].key()
		if _, ok := seenKeys[k]; !ok {
			seenKeys[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	var stored map[Key]struct{}
	if len(keys) > 0 {
		var err error
		stored, err = s.store.FindActiveKeys(ctx, keys)
		if err != nil {
			return nil, internal("Error processing CSV file", err)
		}
	}

	inBatch := make(map[Key]struct{}, len(candidates))
	pending := make([]*Transaction, 0, s.batchSize)
	hasNew := false

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.store.CreateBatch(ctx, pending); err != nil {
			// Earlier batches are already committed.
			attrs := []any{"created", len(result.Transactions), "failed_batch", len(pending), "error", err}
			if n := len(result.Transactions); n > 0 {
				attrs = append(attrs, "first_id", result.Transactions[0].ID, "last_id", result.Transactions[n-1].ID)
			}
			log.Error("import failed", attrs...)
			return storeError(err, "Error processing CSV file")
		}
		for _, t := range pending {
			result.Transactions = append(result.Transactions, *t)
		}
		log.Debug("batch written", "size", len(pending))
		pending = make([]*Transaction, 0, s.batchSize)
		return nil
	}

	for i := range candidates {
		c := &candidates[i]
		k := c.key()

		if _, ok := stored[k]; ok {
			result.DuplicateRows = append(result.DuplicateRows, RowError{
				Line:   c.row.Line,
				Reason: "transaction already exists",
				Data:   c.row.Fields,
			})
			continue
		}
		if _, ok := inBatch[k]; ok {
			result.DuplicateRows = append(result.DuplicateRows, RowError{
				Line:   c.row.Line,
				Reason: "duplicate row in file",
				Data:   c.row.Fields,
			})
			continue
		}

		inBatch[k] = struct{}{}
		hasNew = true
		pending = append(pending, &Transaction{
			Date:        c.date,
			Description: c.description,
			Amount:      c.amount,
			Currency:    c.currency,
		})

		if len(pending) >= s.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	log.Info("import finished",
		"created", len(result.Transactions),
		"invalid", len(result.InvalidRows),
		"duplicates", len(result.DuplicateRows),
		"duration", time.Since(startTime),
	)

	if !hasNew {
		result.Message = ErrNothingToImport.Message
		return result, ErrNothingToImport
	}

	result.Message = "CSV file processed successfully"
	return result, nil
}

// validateRow parses a decoded row. It returns a non-empty reason when the
// row is rejected.
func validateRow(row Row) (candidate, string) {
	if len(row.Fields) != csvFieldCount {
		return candidate{}, fmt.Sprintf("expected %d fields, got %d", csvFieldCount, len(row.Fields))
	}

	dateCell := CleanCell(row.Fields[0])
	description := CleanCell(row.Fields[1])
	amountCell := CleanCell(row.Fields[2])
	currency := CleanCell(row.Fields[3])

	date, err := ParseCSVDate(dateCell)
	if err != nil {
		return candidate{}, fmt.Sprintf("invalid date %q, expected DD-MM-YYYY", dateCell)
	}
	if description == "" {
		return candidate{}, "description is required"
	}
	amount, err := ParseAmount(amountCell)
	if errors.Is(err, ErrAmountOutOfRange) {
		return candidate{}, fmt.Sprintf("amount %q exceeds 12 integer digits or 2 decimal places", amountCell)
	}
	if err != nil {
		return candidate{}, fmt.Sprintf("invalid amount %q", amountCell)
	}
	if !amount.IsPositive() {
		return candidate{}, "amount must be greater than zero"
	}
	if strings.TrimSpace(currency) == "" {
		return candidate{}, "currency is required"
	}

	return candidate{
		row:         row,
		date:        date,
		description: description,
		amount:      amount,
		currency:    currency,
	}, ""
}
