// Package storage persists the business entities the agent researches,
// companies and persons, through gorm. Every write stamps the acting user
// taken from the request context.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bgunyel/ragnar/internal/database"
	"github.com/bgunyel/ragnar/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	writeRetries     = 3
)

// record is implemented by the entity models.
type record interface {
	stamp() *Stamp
	key() uint
	name() string
	columns() map[string]any
}

// Store is the storage collaborator. It is safe for concurrent use.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Store on pool.
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "storage")),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// AutoMigrate creates the tables from the models. Deployments use the
// versioned migrations instead; this serves sqlite development databases
// and tests.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&Company{}, &Person{})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// Companies
// =============================================================================

// CreateCompany inserts c and sets its ID and stamp.
func (s *Store) CreateCompany(ctx context.Context, c *Company) error {
	return create(ctx, s, "company", c)
}

// UpdateCompany overwrites the company with c.ID.
func (s *Store) UpdateCompany(ctx context.Context, c *Company) error {
	return update[Company](ctx, s, "company", c)
}

// CompanyByID fetches one company.
func (s *Store) CompanyByID(ctx context.Context, id uint) (*Company, error) {
	return byID[Company](ctx, s, "company", id)
}

// CompaniesByName returns the companies whose name matches, ignoring case.
func (s *Store) CompaniesByName(ctx context.Context, name string) ([]Company, error) {
	return byName[Company](ctx, s, name)
}

// ListCompanies pages through companies in ID order.
func (s *Store) ListCompanies(ctx context.Context, limit, offset int) ([]Company, error) {
	return list[Company](ctx, s, limit, offset)
}

// =============================================================================
// Persons
// =============================================================================

// CreatePerson inserts p and sets its ID and stamp.
func (s *Store) CreatePerson(ctx context.Context, p *Person) error {
	return create(ctx, s, "person", p)
}

// UpdatePerson overwrites the person with p.ID.
func (s *Store) UpdatePerson(ctx context.Context, p *Person) error {
	return update[Person](ctx, s, "person", p)
}

// PersonByID fetches one person.
func (s *Store) PersonByID(ctx context.Context, id uint) (*Person, error) {
	return byID[Person](ctx, s, "person", id)
}

// PersonsByName returns the persons whose name matches, ignoring case.
func (s *Store) PersonsByName(ctx context.Context, name string) ([]Person, error) {
	return byName[Person](ctx, s, name)
}

// ListPersons pages through persons in ID order.
func (s *Store) ListPersons(ctx context.Context, limit, offset int) ([]Person, error) {
	return list[Person](ctx, s, limit, offset)
}

// =============================================================================
// Generic operations
// =============================================================================

func create(ctx context.Context, s *Store, kind string, rec record) error {
	if strings.TrimSpace(rec.name()) == "" {
		return invalid(kind + " name is required")
	}
	actor := types.ActorID(ctx)
	now := s.now()
	*rec.stamp() = Stamp{CreatedAt: now, UpdatedAt: now, CreatedByID: actor, UpdatedByID: actor}

	err := s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if err != nil {
		return internal("create "+kind, err)
	}
	s.logger.Debug("entity created", zap.String("kind", kind), zap.Uint("id", rec.key()), zap.Uint("actor_id", actor))
	return nil
}

func update[T any](ctx context.Context, s *Store, kind string, rec record) error {
	if rec.key() == 0 {
		return invalid(kind + " id is required for update")
	}
	if strings.TrimSpace(rec.name()) == "" {
		return invalid(kind + " name is required")
	}
	actor := types.ActorID(ctx)
	now := s.now()
	cols := rec.columns()
	cols["updated_at"] = now
	cols["updated_by_id"] = actor

	var rows int64
	err := s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		res := tx.Model(new(T)).Where("id = ?", rec.key()).Updates(cols)
		rows = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return internal("update "+kind, err)
	}
	if rows == 0 {
		return notFound(kind, rec.key())
	}

	// Reload so the caller sees the creation stamp it did not send.
	fresh, err := byID[T](ctx, s, kind, rec.key())
	if err != nil {
		return err
	}
	*rec.stamp() = *any(fresh).(record).stamp()
	return nil
}

func byID[T any](ctx context.Context, s *Store, kind string, id uint) (*T, error) {
	out := new(T)
	err := s.pool.DB().WithContext(ctx).First(out, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(kind, id)
	}
	if err != nil {
		return nil, internal("fetch "+kind, err)
	}
	return out, nil
}

func byName[T any](ctx context.Context, s *Store, name string) ([]T, error) {
	var out []T
	err := s.pool.DB().WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, internal("fetch by name", err)
	}
	return out, nil
}

func list[T any](ctx context.Context, s *Store, limit, offset int) ([]T, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset = max(offset, 0)

	var out []T
	err := s.pool.DB().WithContext(ctx).Order("id").Limit(limit).Offset(offset).Find(&out).Error
	if err != nil {
		return nil, internal("list", err)
	}
	return out, nil
}

func notFound(kind string, id uint) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("%s %d not found", kind, id)).
		WithHTTPStatus(http.StatusNotFound)
}

func invalid(msg string) error {
	return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(http.StatusBadRequest)
}

func internal(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewError(types.ErrInternalError, op+" failed").
		WithHTTPStatus(http.StatusInternalServerError).
		WithRetryable(true).
		WithCause(err)
}
