package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"

	ongoingIndex = "cards_one_ongoing"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	// ErrOngoingTaken is returned by card writes rejected by the single-Ongoing index.
	ErrOngoingTaken = errors.New("ongoing card already exists")
)

// Session is the transactional view of the entity store used by Service.
// Reads observe the writes made earlier in the same session.
type Session interface {
	UserByID(ctx context.Context, id int64) (User, error)
	CardByID(ctx context.Context, id int64) (Card, error)
	ListCards(ctx context.Context) ([]Card, error)
	CountCardsWithStatus(ctx context.Context, status string, excludeID int64) (int64, error)
	InsertCard(ctx context.Context, c Card) (int64, error)
	UpdateCard(ctx context.Context, c Card) error
	DeleteCard(ctx context.Context, id int64) error
	CommentsByCards(ctx context.Context, cardIDs ...int64) ([]Comment, error)
	CommentByID(ctx context.Context, id int64) (Comment, error)
	InsertComment(ctx context.Context, c Comment) (int64, error)
	UpdateCommentMessage(ctx context.Context, id int64, message string) error
	DeleteComment(ctx context.Context, id int64) error
}

// TxRunner runs fn inside one transaction, committing when fn returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Session) error) error
}

type Store struct {
	db        *sqlx.DB
	driver    string
	dialect   goqu.DialectWrapper
	isolation sql.IsolationLevel
	retry     retryPolicy
}

type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	jitter      float64
}

type StoreOption func(*Store)

func WithTxRetry(maxAttempts int, baseDelay time.Duration) StoreOption {
	return func(s *Store) {
		if maxAttempts > 0 {
			s.retry.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.retry.baseDelay = baseDelay
		}
	}
}

// OpenStore connects to Postgres (driver "pgx") or SQLite (driver "sqlite").
func OpenStore(ctx context.Context, driver, dsn string, opts ...StoreOption) (*Store, error) {
	if driver != driverPostgres && driver != driverSQLite {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == driverSQLite {
		// one writer; transactions queue on the single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return NewStore(db, driver, opts...), nil
}

func NewStore(db *sqlx.DB, driver string, opts ...StoreOption) *Store {
	s := &Store{
		db:        db,
		driver:    driver,
		dialect:   goqu.Dialect("postgres"),
		isolation: sql.LevelSerializable,
		retry:     retryPolicy{maxAttempts: 5, baseDelay: 10 * time.Millisecond, jitter: 0.3},
	}
	if driver == driverSQLite {
		// SQLite transactions are already serializable
		s.dialect = goqu.Dialect("sqlite3")
		s.isolation = sql.LevelDefault
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
	ddl := postgresSchema
	if s.driver == driverSQLite {
		ddl = sqliteSchema
	}
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// InTx retries the whole transaction on serialization failures and lock
// contention with exponential backoff. Other errors are returned as is.
func (s *Store) InTx(ctx context.Context, fn func(Session) error) error {
	var err error
	for attempt := 0; attempt < s.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retry.baseDelay * time.Duration(1<<(attempt-1))
			if s.retry.jitter > 0 && delay > 0 {
				delay += time.Duration(rand.Float64() * s.retry.jitter * float64(delay))
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", s.retry.maxAttempts, err)
}

func (s *Store) runTx(ctx context.Context, fn func(Session) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Tx{tx: tx, d: s.dialect, returning: s.driver == driverPostgres}); err != nil {
		return err
	}
	return tx.Commit()
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// uniqueViolation reports a unique constraint failure. index narrows the
// match to one index: the Postgres constraint name or the SQLite column list.
func uniqueViolation(err error, pgIndex, liteColumns string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (pgIndex == "" || pgErr.ConstraintName == pgIndex)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
			(liteColumns == "" || strings.Contains(liteErr.Error(), liteColumns))
	}
	return false
}

// Users

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string, isAdmin bool) (User, error) {
	q, args, err := s.dialect.Insert("users").Prepared(true).Rows(goqu.Record{
		"email":         email,
		"password_hash": passwordHash,
		"name":          name,
		"is_admin":      isAdmin,
		"created_at":    time.Now().UTC(),
	}).ToSQL()
	if err != nil {
		return User{}, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if uniqueViolation(err, "", "users.email") {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return s.UserByEmail(ctx, email)
}

func (s *Store) userSelect() *goqu.SelectDataset {
	return s.dialect.From("users").Prepared(true).
		Select("id", "email", "name", "is_admin", "created_at")
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	q, args, err := s.userSelect().Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return User{}, err
	}
	var u User
	if err := s.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	q, args, err := s.userSelect().
		Where(goqu.Func("lower", goqu.C("email")).Eq(strings.ToLower(email))).ToSQL()
	if err != nil {
		return User{}, err
	}
	var u User
	if err := s.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// get user creds by email, including password hash
func (s *Store) userCredsByEmail(ctx context.Context, email string) (User, string, error) {
	q, args, err := s.dialect.From("users").Prepared(true).
		Select("id", "email", "name", "is_admin", "created_at", "password_hash").
		Where(goqu.Func("lower", goqu.C("email")).Eq(strings.ToLower(email))).ToSQL()
	if err != nil {
		return User{}, "", err
	}
	var row struct {
		User
		PasswordHash string `db:"password_hash"`
	}
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	return row.User, row.PasswordHash, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	q, args, err := s.userSelect().Order(goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, err
	}
	var out []User
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Authenticate verifies the password and returns the user.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, hash, err := s.userCredsByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}
