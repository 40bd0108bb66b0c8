package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, opts ...Option) (*Service, *GormStore) {
	t.Helper()
	store := newTestStore(t)
	return NewService(store, opts...), store
}

func validInput() NewTransaction {
	return NewTransaction{
		Date:        "2024-01-15",
		Description: "Groceries",
		Amount:      "42.10",
		Currency:    "USD",
	}
}

func TestService_Add(t *testing.T) {
	svc, _ := newTestService(t)

	tx, err := svc.Add(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assert.False(t, tx.Deleted)
	assert.Equal(t, "2024-01-15", tx.Date.Format(DateLayout))
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("42.10")))
}

func TestService_AddDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Amount = "1"
	_, err = svc.Add(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestService_AddValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NewTransaction)
		wantErr error
		wantMsg string
	}{
		{"deleted supplied", func(in *NewTransaction) { in.DeletedSupplied = true }, ErrDeletedNotAllowed, ""},
		{"missing date", func(in *NewTransaction) { in.Date = "" }, ErrMissingFields, ""},
		{"blank description", func(in *NewTransaction) { in.Description = "   " }, ErrMissingFields, ""},
		{"missing amount", func(in *NewTransaction) { in.Amount = "" }, ErrMissingFields, ""},
		{"missing currency", func(in *NewTransaction) { in.Currency = "" }, ErrMissingFields, ""},
		{"zero amount", func(in *NewTransaction) { in.Amount = "0" }, ErrAmountNotPositive, ""},
		{"negative amount", func(in *NewTransaction) { in.Amount = "-5" }, ErrAmountNotPositive, ""},
		{"non-numeric amount", func(in *NewTransaction) { in.Amount = "ten" }, nil, "Invalid amount"},
		{"three decimals", func(in *NewTransaction) { in.Amount = "0.001" }, ErrAmountOutOfRange, ""},
		{"rounds to zero", func(in *NewTransaction) { in.Amount = "0.004" }, ErrAmountOutOfRange, ""},
		{"too many digits", func(in *NewTransaction) { in.Amount = "123456789012345678" }, ErrAmountOutOfRange, ""},
		{"bad date", func(in *NewTransaction) { in.Date = "yesterday" }, nil, "Invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Add(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, PublicMessage(err), tt.wantMsg)
			}
		})
	}
}

func TestService_AddAcceptsDateFormats(t *testing.T) {
	for _, in := range []string{"2024-01-15", "2024-01-15T10:30:00Z", "15-01-2024", "15-1-2024"} {
		t.Run(in, func(t *testing.T) {
			svc, _ := newTestService(t)
			nt := validInput()
			nt.Date = in
			tx, err := svc.Add(context.Background(), nt)
			require.NoError(t, err)
			assert.Equal(t, "2024-01-15", tx.Date.Format(DateLayout))
		})
	}
}

func TestService_Get(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, created.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err, "deleted records are still readable by id")
	assert.True(t, got.Deleted)

	_, err = svc.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListPagination(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	batch := make([]*Transaction, 0, 120)
	base := day("2023-01-01")
	for i := 0; i < 120; i++ {
		batch = append(batch, &Transaction{
			Date:        base.AddDate(0, 0, i),
			Description: fmt.Sprintf("item %d", i),
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Currency:    "USD",
		})
	}
	require.NoError(t, store.CreateBatch(ctx, batch))

	page, err := svc.List(ctx, 1, 50)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 50)
	assert.EqualValues(t, 120, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, "item 119", page.Transactions[0].Description, "newest date first")

	last, err := svc.List(ctx, 3, 50)
	require.NoError(t, err)
	assert.Len(t, last.Transactions, 20)

	beyond, err := svc.List(ctx, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, beyond.Transactions)
	assert.NotNil(t, beyond.Transactions)
}

func TestService_ListInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	for _, tc := range [][2]int{{0, 10}, {1, 0}, {-1, 5}} {
		_, err := svc.List(context.Background(), tc[0], tc[1])
		assert.Equal(t, KindValidation, KindOf(err), "page=%d limit=%d", tc[0], tc[1])
	}
}

func TestService_ListEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	page, err := svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
	assert.Zero(t, page.TotalPages)
}

func TestService_UpdatePreservesUnsetFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, TransactionPatch{Amount: strPtr("99.99")})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("99.99")))
	assert.Equal(t, "Groceries", updated.Description)
	assert.Equal(t, "USD", updated.Currency)
	assert.Equal(t, "2024-01-15", updated.Date.Format(DateLayout))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("99.99")))
}

func TestService_UpdateSameKeyIsNotConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, TransactionPatch{
		Date:        strPtr("2024-01-15"),
		Description: strPtr("Groceries"),
		Currency:    strPtr("EUR"),
	})
	require.NoError(t, err)
}

func TestService_UpdateConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	other := validInput()
	other.Description = "Rent"
	second, err := svc.Add(ctx, other)
	require.NoError(t, err)

	_, err = svc.Update(ctx, second.ID, TransactionPatch{Description: strPtr("Groceries")})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestService_UpdateErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	tests := []struct {
		name  string
		id    uint
		patch TransactionPatch
		kind  Kind
	}{
		{"missing id", 9999, TransactionPatch{}, KindNotFound},
		{"zero amount", created.ID, TransactionPatch{Amount: strPtr("0")}, KindValidation},
		{"bad amount", created.ID, TransactionPatch{Amount: strPtr("abc")}, KindValidation},
		{"empty description", created.ID, TransactionPatch{Description: strPtr("")}, KindValidation},
		{"empty currency", created.ID, TransactionPatch{Currency: strPtr(" ")}, KindValidation},
		{"bad date", created.ID, TransactionPatch{Date: strPtr("31-31-2024")}, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.id, tt.patch)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	_, err = svc.SoftDelete(ctx, created.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, TransactionPatch{Amount: strPtr("5")})
	assert.ErrorIs(t, err, ErrNotFound, "deleted records cannot be updated")
}

func TestService_SoftDeleteTwice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)

	deleted, err := svc.SoftDelete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	_, err = svc.SoftDelete(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_SoftDeleteFreesKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Add(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.Add(ctx, validInput())
	assert.NoError(t, err)
}

func TestService_SoftDeleteMany(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []uint
	for _, d := range []string{"A", "B", "C"} {
		in := validInput()
		in.Description = d
		tx, err := svc.Add(ctx, in)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	deleted, err := svc.SoftDeleteMany(ctx, []uint{ids[0], ids[1], ids[1], 9999})
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	for _, tx := range deleted {
		assert.True(t, tx.Deleted)
	}

	page, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, ids[2], page.Transactions[0].ID)

	_, err = svc.SoftDeleteMany(ctx, []uint{ids[0], ids[1]})
	assert.Equal(t, KindNotFound, KindOf(err), "already deleted ids do not match")
}

func TestService_SoftDeleteManyValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SoftDeleteMany(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoIDs)

	_, err = svc.SoftDeleteMany(context.Background(), []uint{1, 0})
	assert.ErrorIs(t, err, ErrNoIDs)
}

func TestService_StoreFailureIsInternal(t *testing.T) {
	store := &failingStore{Store: newTestStore(t), err: errors.New("connection reset")}
	svc := NewService(store)

	_, err := svc.List(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.NotContains(t, PublicMessage(err), "connection reset")
}

func TestService_PingUnavailable(t *testing.T) {
	store := &failingStore{Store: newTestStore(t), err: errors.New("down")}
	err := NewService(store).Ping(context.Background())
	assert.Equal(t, KindUnavailable, KindOf(err))
}

// failingStore fails List and Ping with err.
type failingStore struct {
	Store
	err error
}

func (f *failingStore) List(context.Context, int, int) ([]Transaction, int64, error) {
	return nil, 0, f.err
}

func (f *failingStore) Ping(context.Context) error {
	return f.err
}
