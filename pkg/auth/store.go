package auth

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrUserNotFound is returned when no matching user exists
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email is already taken
	// within the account
	ErrDuplicateEmail = errors.New("email already registered")
)

// uniqueViolation is the Postgres error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresStore implements user and role persistence using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `u.id, u.account_id, u.email, u.password_hash, u.name, r.name,
	       u.is_active, u.is_deleted, u.tokens_invalid_before,
	       u.last_login_at, u.last_login_ip, u.created_at, u.updated_at`

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var lastLoginIP sql.NullString
	err := row.Scan(
		&user.ID, &user.AccountID, &user.Email, &user.PasswordHash, &user.Name,
		&user.Role, &user.IsActive, &user.IsDeleted, &user.TokensInvalidBefore,
		&user.LastLoginAt, &lastLoginIP, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if lastLoginIP.Valid {
		user.LastLoginIP = lastLoginIP.String
	}
	return user, nil
}

// CreateUser inserts a user. The role row for (account, role-name) is created
// lazily if absent and shared by all users with that role in the account.
func (s *PostgresStore) CreateUser(user *User) error {
	roleID, err := s.EnsureRole(user.AccountID, user.Role)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (account_id, email, password_hash, name, role_id,
		                   is_active, is_deleted, tokens_invalid_before)
		VALUES ($1, $2, $3, $4, $5, true, false, NOW())
		RETURNING id, is_active, is_deleted, tokens_invalid_before, created_at, updated_at
	`
	err = s.db.QueryRow(query, user.AccountID, user.Email, user.PasswordHash,
		user.Name, roleID).
		Scan(&user.ID, &user.IsActive, &user.IsDeleted, &user.TokensInvalidBefore,
			&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user with their role name attached
func (s *PostgresStore) GetUserByID(id int64) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON u.role_id = r.id
		WHERE u.id = $1
	`
	return s.scanUser(s.db.QueryRow(query, id))
}

// GetUserByEmail retrieves a user by email for login
func (s *PostgresStore) GetUserByEmail(email string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON u.role_id = r.id
		WHERE u.email = $1 AND u.is_deleted = false
		ORDER BY u.created_at ASC
		LIMIT 1
	`
	return s.scanUser(s.db.QueryRow(query, email))
}

// EnsureRole finds or creates the role row for (account, name)
func (s *PostgresStore) EnsureRole(accountID int64, name RoleName) (int64, error) {
	var id int64
	query := `
		INSERT INTO roles (account_id, name)
		VALUES ($1, $2)
		ON CONFLICT (account_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	if err := s.db.QueryRow(query, accountID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to ensure role: %w", err)
	}
	return id, nil
}

// UpdatePassword replaces the password hash and bumps the token watermark,
// revoking every previously issued token
func (s *PostgresStore) UpdatePassword(userID int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, tokens_invalid_before = NOW(), updated_at = NOW()
		WHERE id = $2 AND is_deleted = false
	`
	result, err := s.db.Exec(query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// InvalidateTokens bumps the token watermark without changing the password
// (used by logout)
func (s *PostgresStore) InvalidateTokens(userID int64) error {
	query := `
		UPDATE users SET tokens_invalid_before = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_deleted = false
	`
	result, err := s.db.Exec(query, userID)
	if err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps last-login metadata
func (s *PostgresStore) RecordLogin(userID int64, ip string) error {
	query := `
		UPDATE users SET last_login_at = NOW(), last_login_ip = $1, updated_at = NOW()
		WHERE id = $2
	`
	if _, err := s.db.Exec(query, ip, userID); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// DeactivateUser soft deactivates a user
func (s *PostgresStore) DeactivateUser(userID int64) error {
	query := `UPDATE users SET is_active = false, updated_at = NOW() WHERE id = $1`
	result, err := s.db.Exec(query, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
