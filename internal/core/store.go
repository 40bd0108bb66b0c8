package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// keyChunkSize caps the pairs per duplicate lookup query. Each pair binds
// two parameters, which keeps a query well inside driver limits.
const keyChunkSize = 500

// Store persists transactions. All lookups named Active ignore
// soft-deleted records.
type Store interface {
	// List returns a page of active records, newest date first, and the
	// total active count.
	List(ctx context.Context, offset, limit int) ([]Transaction, int64, error)

	// Get returns a record by id whether or not it is deleted.
	Get(ctx context.Context, id uint) (*Transaction, error)

	// GetActive returns an active record by id.
	GetActive(ctx context.Context, id uint) (*Transaction, error)

	// FindActiveDuplicate returns an active record with the given key,
	// ignoring the record excludeID (0 excludes nothing).
	FindActiveDuplicate(ctx context.Context, date time.Time, description string, excludeID uint) (*Transaction, error)

	// FindActiveByIDs returns the active records among ids.
	FindActiveByIDs(ctx context.Context, ids []uint) ([]Transaction, error)

	// FindActiveKeys returns which of keys belong to active records.
	FindActiveKeys(ctx context.Context, keys []Key) (map[Key]struct{}, error)

	Create(ctx context.Context, t *Transaction) error
	Save(ctx context.Context, t *Transaction) error
	CreateBatch(ctx context.Context, batch []*Transaction) error

	// MarkDeleted flags the given records as deleted.
	MarkDeleted(ctx context.Context, ids []uint) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// GormStore is the Store backed by a GORM connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The connection should be opened with
// TranslateError enabled so unique violations surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the transactions table and its indexes.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Transaction{}); err != nil {
		return fmt.Errorf("migrate transactions: %w", err)
	}
	return nil
}

func (s *GormStore) active(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Transaction{}).Where("deleted = ?", false)
}

func (s *GormStore) List(ctx context.Context, offset, limit int) ([]Transaction, int64, error) {
	var total int64
	if err := s.active(ctx).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	records := []Transaction{}
	err := s.active(ctx).
		Order("date DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	return records, total, nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (*Transaction, error) {
	var t Transaction
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err, "get transaction")
	}
	return &t, nil
}

func (s *GormStore) GetActive(ctx context.Context, id uint) (*Transaction, error) {
	var t Transaction
	if err := s.active(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err, "get active transaction")
	}
	return &t, nil
}

func (s *GormStore) FindActiveDuplicate(ctx context.Context, date time.Time, description string, excludeID uint) (*Transaction, error) {
	q := s.active(ctx).Where("date = ? AND description = ?", date, description)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var t Transaction
	if err := q.First(&t).Error; err != nil {
		return nil, translate(err, "find duplicate")
	}
	return &t, nil
}

func (s *GormStore) FindActiveByIDs(ctx context.Context, ids []uint) ([]Transaction, error) {
	records := []Transaction{}
	if len(ids) == 0 {
		return records, nil
	}
	if err := s.active(ctx).Where("id IN ?", ids).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find transactions by id: %w", err)
	}
	return records, nil
}

// FindActiveKeys matches keys in chunks of (date = ? AND description = ?)
// predicates joined by OR. Row-value IN lists are not portable to SQLite.
func (s *GormStore) FindActiveKeys(ctx context.Context, keys []Key) (map[Key]struct{}, error) {
	found := make(map[Key]struct{})

	for start := 0; start < len(keys); start += keyChunkSize {
		end := min(start+keyChunkSize, len(keys))

		preds := make([]clause.Expression, 0, end-start)
		for _, k := range keys[start:end] {
			date, err := time.Parse(DateLayout, k.Date)
			if err != nil {
				return nil, fmt.Errorf("find existing keys: bad key date %q: %w", k.Date, err)
			}
			preds = append(preds, clause.And(
				clause.Eq{Column: clause.Column{Name: "date"}, Value: date},
				clause.Eq{Column: clause.Column{Name: "description"}, Value: k.Description},
			))
		}

		var matches []Transaction
		err := s.active(ctx).
			Select("date", "description").
			Where(clause.Or(preds...)).
			Find(&matches).Error
		if err != nil {
			return nil, fmt.Errorf("find existing keys: %w", err)
		}

		for i := range matches {
			found[matches[i].Key()] = struct{}{}
		}
	}

	return found, nil
}

func (s *GormStore) Create(ctx context.Context, t *Transaction) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return translate(err, "create transaction")
	}
	return nil
}

func (s *GormStore) Save(ctx context.Context, t *Transaction) error {
	if err := s.db.WithContext(ctx).Save(t).Error; err != nil {
		return translate(err, "save transaction")
	}
	return nil
}

func (s *GormStore) CreateBatch(ctx context.Context, batch []*Transaction) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return translate(err, "create transaction batch")
	}
	return nil
}

func (s *GormStore) MarkDeleted(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.active(ctx).
		Where("id IN ?", ids).
		Updates(map[string]any{"deleted": true, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("mark transactions deleted: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// translate maps GORM sentinel errors onto the service's error kinds.
func translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: ErrNotFound.Message, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: ErrDuplicate.Message, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
