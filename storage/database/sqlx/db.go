// Package sqlxrepos implements every repository on PostgreSQL with sqlx.
// Queries are written with `?` placeholders and rebound for the driver.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
)

const uniqueViolation = "23505"

// Store owns the connection pool and runs transactions.
// The transaction travels in the context so that repositories join it transparently.
type Store struct {
	db *sqlx.DB
}

var _ core.Transactor = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

type txKey struct{}

// executor is what both *sqlx.DB and *sqlx.Tx provide.
type executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func txFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (s *Store) exec(ctx context.Context) executor {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.db
}

// forUpdate locks the selected rows when running inside a transaction.
func forUpdate(ctx context.Context) string {
	if _, ok := txFrom(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ex := s.exec(ctx)
	return ex.GetContext(ctx, dest, ex.Rebind(query), args...)
}

func (s *Store) selectx(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ex := s.exec(ctx)
	return ex.SelectContext(ctx, dest, ex.Rebind(query), args...)
}

func (s *Store) execx(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ex := s.exec(ctx)
	res, err := ex.ExecContext(ctx, ex.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// named runs an insert/update written with :named parameters bound to arg's db tags.
func (s *Store) named(ctx context.Context, query string, arg interface{}) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, s.exec(ctx), query, arg)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DB exposes the pool to maintenance code (migrations, health checks).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// advisoryLock takes a transaction-scoped lock on key; it is released on commit or rollback.
func advisoryLock(ctx context.Context, s *Store, key string) error {
	if _, ok := txFrom(ctx); !ok {
		return errors.New("advisory lock outside of a transaction")
	}
	_, err := s.execx(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, key)
	return errors.Wrap(err, "taking advisory lock")
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// mustAffect returns notFound when no row was touched.
func mustAffect(n int64, err error, notFound error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// filter accumulates WHERE conditions and their arguments.
type filter struct {
	conds []string
	args  []interface{}
}

func (f *filter) and(cond string, args ...interface{}) {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// page appends the LIMIT/OFFSET clause of p.
func (f *filter) page(p core.Page) string {
	p.Clean()
	f.args = append(f.args, p.Limit(), p.Offset())
	return " LIMIT ? OFFSET ?"
}

func like(s string) string {
	return "%" + s + "%"
}

// orderBy builds an ORDER BY clause from orderings mapped to SQL expressions, ending with fallback.
func orderBy(orderings []core.DBOrdering, columns map[string]string, fallback string) string {
	parts := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if fallback != "" {
		parts = append(parts, fallback)
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(" ORDER BY %s", strings.Join(parts, ", "))
}

// validID reports whether id can be compared against a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

// utc returns the zero time for NULL values.
func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
