package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sampletrack/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring Store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store is a relational persistent store. Each RunInTransaction maps onto a
// single database transaction; rules are evaluated against the open
// transaction before COMMIT.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
	nowFn   func() time.Time
}

// New wraps an opened and migrated database handle.
func New(db *sql.DB, dialect Dialect, engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine returns the engine evaluated before each commit.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// DB exposes the underlying handle for integration tests and the CLI.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside a database transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.Isolation})
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	tx := &transaction{
		reader: reader{ctx: ctx, q: sqlTx, d: s.dialect, lock: s.dialect.LockClause},
		now:    s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	res, err = domain.EvaluateCommit(ctx, s.engine, tx, tx.changes)
	if err != nil {
		return res, err
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// View executes fn against a consistent read transaction that is always
// rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.Reader) error) error {
	opts := &sql.TxOptions{Isolation: s.dialect.Isolation, ReadOnly: s.dialect.ReadOnlyViews}
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(reader{ctx: ctx, q: sqlTx, d: s.dialect})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	ctx  context.Context
	q    querier
	d    Dialect
	lock string
}

func (r reader) queryRow(query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(r.ctx, r.d.Rebind(query), args...)
}

func (r reader) query(query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(r.ctx, r.d.Rebind(query), args...)
}

func (r reader) count(query string, args ...any) (int, error) {
	var n int
	if err := r.queryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r reader) exists(query string, args ...any) (bool, error) {
	var one int
	err := r.queryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type transaction struct {
	reader
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) exec(query string, args ...any) (sql.Result, error) {
	return tx.q.ExecContext(tx.ctx, tx.d.Rebind(query), args...)
}

// execOne runs a statement that must affect exactly one row.
func (tx *transaction) execOne(entity domain.EntityType, id, query string, args ...any) error {
	res, err := tx.exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", entity, id, err)
	}
	if n == 0 {
		return domain.ErrNotFound{Entity: entity, ID: id}
	}
	return nil
}

func (tx *transaction) insert(entity domain.EntityType, field, value, query string, args ...any) error {
	if _, err := tx.exec(query, args...); err != nil {
		if IsUniqueViolation(err) {
			return domain.ConflictError{Entity: entity, Field: field, Value: value}
		}
		return fmt.Errorf("insert %s: %w", entity, err)
	}
	return nil
}

func newID() string { return uuid.NewString() }

func notFound(err error, entity domain.EntityType, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound{Entity: entity, ID: id}
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
