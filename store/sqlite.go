package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/models"
	"github.com/Goofygiraffe06/blaze/internal/utils"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements UserStore and CodeStore on a single SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ UserStore = (*SQLiteStore)(nil)
	_ CodeStore = (*SQLiteStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE CHECK(email <> ''),
	password_hash TEXT NOT NULL CHECK(password_hash <> ''),
	is_verified INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS otps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	code TEXT NOT NULL CHECK(code <> ''),
	verified INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_otps_user_code ON otps(user_id, code);`

// NewSQLiteStore opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection: writes serialize anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// CreateUser inserts user, assigning an id when empty. The UNIQUE constraint on
// email is the final arbiter between concurrent registrations.
func (s *SQLiteStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, is_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.IsVerified, user.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			logging.DebugLog("store.CreateUser duplicate email [%s]", utils.HashEmail(user.Email))
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return user, nil
}

// FindUserByEmail returns ErrNotFound when no user has email.
func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var (
		user      models.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, is_verified, created_at
		FROM users
		WHERE email = ?`, email).
		Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.IsVerified, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		logging.ErrorLog("store.FindUserByEmail error: %v", err)
		return models.User{}, err
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	return user, nil
}

// MarkUserVerified flags the user with email as verified.
func (s *SQLiteStore) MarkUserVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_verified = 1 WHERE email = ?`, email)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// CreateCode stores an unverified code.
func (s *SQLiteStore) CreateCode(ctx context.Context, code models.OneTimeCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otps (user_id, code, verified, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		code.UserID, code.Code, code.Verified, code.ExpiresAt.UnixMilli(), code.CreatedAt.UnixMilli())
	return err
}

// FindUnverifiedCode returns the newest unexpired, unverified row for (code, userID).
func (s *SQLiteStore) FindUnverifiedCode(ctx context.Context, code, userID string) (models.OneTimeCode, error) {
	var (
		otp                  models.OneTimeCode
		expiresAt, createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, code, verified, expires_at, created_at
		FROM otps
		WHERE code = ? AND user_id = ? AND verified = 0 AND expires_at > ?
		ORDER BY id DESC
		LIMIT 1`, code, userID, s.now().UnixMilli()).
		Scan(&otp.UserID, &otp.Code, &otp.Verified, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OneTimeCode{}, ErrNotFound
		}
		return models.OneTimeCode{}, err
	}
	otp.ExpiresAt = time.UnixMilli(expiresAt)
	otp.CreatedAt = time.UnixMilli(createdAt)
	return otp, nil
}

// MarkCodeVerified flags every unverified row for (code, userID).
func (s *SQLiteStore) MarkCodeVerified(ctx context.Context, code, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE otps SET verified = 1 WHERE code = ? AND user_id = ? AND verified = 0`, code, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
