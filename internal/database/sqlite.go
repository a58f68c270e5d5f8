package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"otpkeep/internal/account"
	"otpkeep/internal/database/migrations"
	"otpkeep/internal/keeper"
	"otpkeep/internal/otp"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const accountColumns = "id, issuer, account_name, algorithm, digits, period, created_at, last_used_at"

// SQLiteDatabase implements keeper.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path.
// path can be a file path or ":memory:" for an in-memory database.
// The schema is not applied; call Migrate.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection.
// An in-memory database lives as long as its connection, so the pool is
// pinned to a single connection in that case.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Account operations

func (s *SQLiteDatabase) CreateAccount(a *account.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, issuer, account_name, algorithm, digits, period, position, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM accounts), ?, ?)`,
		a.ID, a.Issuer, a.AccountName, a.Algorithm.String(), a.Digits, a.Period,
		a.CreatedAt.UTC(), nullTime(a.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindAccount(id string) (*account.Account, error) {
	row := s.db.QueryRow("SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListAccounts() ([]*account.Account, error) {
	rows, err := s.db.Query("SELECT " + accountColumns + " FROM accounts ORDER BY position, created_at")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteDatabase) UpdateAccount(a *account.Account) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET issuer = ?, account_name = ?, algorithm = ?, digits = ?, period = ?
		WHERE id = ?`,
		a.Issuer, a.AccountName, a.Algorithm.String(), a.Digits, a.Period, a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return expectOneRow(res, a.ID)
}

func (s *SQLiteDatabase) TouchAccount(id string, t time.Time) error {
	res, err := s.db.Exec("UPDATE accounts SET last_used_at = ? WHERE id = ?", t.UTC(), id)
	if err != nil {
		return fmt.Errorf("touching account: %w", err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteDatabase) DeleteAccount(id string) error {
	if _, err := s.db.Exec("DELETE FROM accounts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies any pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.Up(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a        account.Account
		alg      string
		lastUsed sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Issuer, &a.AccountName, &alg, &a.Digits, &a.Period, &a.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	a.Algorithm = otp.ParseAlgorithm(alg)
	if lastUsed.Valid {
		t := lastUsed.Time
		a.LastUsedAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, keeper.ErrAccountNotFound)
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements keeper.Database
var _ keeper.Database = (*SQLiteDatabase)(nil)
