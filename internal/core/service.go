package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/ledger/internal/logging"
)

// DefaultBatchSize is the number of staged records written per batch insert.
const DefaultBatchSize = 100

// Service implements the ledger operations over a Store.
type Service struct {
	store     Store
	batchSize int
	limiter   *ImportLimiter
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize sets the import flush size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithImportLimiter bounds concurrent ImportReader calls.
func WithImportLimiter(l *ImportLimiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// NewService creates a service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportLimiter returns the limiter bounding imports, or nil.
func (s *Service) ImportLimiter() *ImportLimiter {
	return s.limiter
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return &Error{Kind: KindUnavailable, Message: "database unavailable", Err: err}
	}
	return nil
}

// NewTransaction is the input to Add. Fields hold raw user input.
type NewTransaction struct {
	Date        string
	Description string
	Amount      string
	Currency    string

	// DeletedSupplied is set when the caller sent a deleted field at all.
	// New records always start active, so that is rejected.
	DeletedSupplied bool
}

// TransactionPatch is the input to Update. Nil fields are left unchanged.
type TransactionPatch struct {
	Date        *string
	Description *string
	Amount      *string
	Currency    *string
}

// Page is one page of active records.
type Page struct {
	Transactions []Transaction `json:"transactions"`
	TotalPages   int           `json:"totalPages"`
	TotalCount   int64         `json:"totalCount"`
}

// List returns active records, newest first.
func (s *Service) List(ctx context.Context, page, limit int) (*Page, error) {
	if page < 1 {
		return nil, validationf("page must be a positive integer")
	}
	if limit < 1 {
		return nil, validationf("limit must be a positive integer")
	}

	records, total, err := s.store.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, internal("Database error", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &Page{
		Transactions: records,
		TotalPages:   totalPages,
		TotalCount:   total,
	}, nil
}

// Get returns a record by id, including deleted ones.
func (s *Service) Get(ctx context.Context, id uint) (*Transaction, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err, "Error fetching transaction")
	}
	return t, nil
}

// Add validates and stores a new record.
func (s *Service) Add(ctx context.Context, in NewTransaction) (*Transaction, error) {
	if in.DeletedSupplied {
		return nil, ErrDeletedNotAllowed
	}

	description := strings.TrimSpace(in.Description)
	currency := strings.TrimSpace(in.Currency)
	if strings.TrimSpace(in.Date) == "" || description == "" || strings.TrimSpace(in.Amount) == "" || currency == "" {
		return nil, ErrMissingFields
	}

	date, err := ParseInputDate(in.Date)
	if err != nil {
		return nil, validationf("Invalid date: %q", in.Date)
	}
	amount, err := parseAmountField(in.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.checkDuplicate(ctx, date, description, 0); err != nil {
		return nil, err
	}

	t := &Transaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		Currency:    currency,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, storeError(err, "Error adding transaction")
	}

	logging.FromContext(ctx).Info("transaction created", "id", t.ID)
	return t, nil
}

// Update applies patch to an active record.
func (s *Service) Update(ctx context.Context, id uint, patch TransactionPatch) (*Transaction, error) {
	t, err := s.store.GetActive(ctx, id)
	if err != nil {
		return nil, storeError(err, "Error updating transaction")
	}
	before := t.Key()

	if patch.Date != nil {
		date, err := ParseInputDate(*patch.Date)
		if err != nil {
			return nil, validationf("Invalid date: %q", *patch.Date)
		}
		t.Date = date
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		if d == "" {
			return nil, validationf("description must not be empty")
		}
		t.Description = d
	}
	if patch.Amount != nil {
		amount, err := parseAmountField(*patch.Amount)
		if err != nil {
			return nil, err
		}
		t.Amount = amount
	}
	if patch.Currency != nil {
		c := strings.TrimSpace(*patch.Currency)
		if c == "" {
			return nil, validationf("currency must not be empty")
		}
		t.Currency = c
	}

	if t.Key() != before {
		if err := s.checkDuplicate(ctx, t.Date, t.Description, t.ID); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return nil, &Error{Kind: KindConflict, Message: "Transaction already exists with the same data"}
			}
			return nil, err
		}
	}

	if err := s.store.Save(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, &Error{Kind: KindConflict, Message: "Transaction already exists with the same data", Err: err}
		}
		return nil, storeError(err, "Error updating transaction")
	}

	logging.FromContext(ctx).Info("transaction updated", "id", t.ID)
	return t, nil
}

// SoftDelete marks an active record as deleted. Deleting a record twice
// fails with ErrNotFound the second time.
func (s *Service) SoftDelete(ctx context.Context, id uint) (*Transaction, error) {
	t, err := s.store.GetActive(ctx, id)
	if err != nil {
		return nil, storeError(err, "Error deleting transaction")
	}

	if err := s.store.MarkDeleted(ctx, []uint{t.ID}); err != nil {
		return nil, storeError(err, "Error deleting transaction")
	}
	t.Deleted = true

	logging.FromContext(ctx).Info("transaction deleted", "id", t.ID)
	return t, nil
}

// SoftDeleteMany marks every active record among ids as deleted and returns
// them. Ids that match nothing are skipped; if none match, ErrNotFound.
func (s *Service) SoftDeleteMany(ctx context.Context, ids []uint) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, ErrNoIDs
	}

	seen := make(map[uint]struct{}, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, ErrNoIDs
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found, err := s.store.FindActiveByIDs(ctx, unique)
	if err != nil {
		return nil, internal("An error occurred while deleting transactions.", err)
	}
	if len(found) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "No transactions found for the given IDs"}
	}

	matched := make([]uint, len(found))
	for i := range found {
		matched[i] = found[i].ID
	}
	if err := s.store.MarkDeleted(ctx, matched); err != nil {
		return nil, internal("An error occurred while deleting transactions.", err)
	}
	for i := range found {
		found[i].Deleted = true
	}

	logging.FromContext(ctx).Info("transactions deleted",
		"requested", len(unique),
		"deleted", len(found),
	)
	return found, nil
}

// checkDuplicate fails with ErrDuplicate if an active record other than
// excludeID has the given date and description.
func (s *Service) checkDuplicate(ctx context.Context, date time.Time, description string, excludeID uint) error {
	_, err := s.store.FindActiveDuplicate(ctx, date, description, excludeID)
	switch {
	case err == nil:
		return ErrDuplicate
	case KindOf(err) == KindNotFound:
		return nil
	default:
		return internal("Database error", err)
	}
}

func parseAmountField(raw string) (d decimal.Decimal, err error) {
	d, err = ParsePositiveAmount(raw)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, ErrAmountNotPositive):
		return d, ErrAmountNotPositive
	case errors.Is(err, ErrAmountOutOfRange):
		return d, ErrAmountOutOfRange
	default:
		return d, validationf("Invalid amount: %q", raw)
	}
}

// storeError keeps kinded store errors and wraps the rest as internal.
func storeError(err error, msg string) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal(msg, fmt.Errorf("store: %w", err))
}
