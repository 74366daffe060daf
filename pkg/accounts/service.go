package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresService implements account persistence using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const accountColumns = `id, name, slug, plan, note_limit, note_count,
	       is_active, is_deleted, current_subscription_id, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID, &account.Name, &account.Slug, &account.Plan,
		&account.NoteLimit, &account.NoteCount, &account.IsActive,
		&account.IsDeleted, &account.CurrentSubscriptionID,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return account, nil
}

// CreateAccount creates an account on the free plan. The slug is derived
// from the name; on collision a numeric suffix is appended (acme, acme-1,
// acme-2, ...).
func (s *PostgresService) CreateAccount(account *Account) error {
	if account.Plan == "" {
		account.Plan = PlanFree
	}
	if account.NoteLimit == 0 {
		account.NoteLimit = FreePlanNoteLimit
	}

	base := account.Slug
	if base == "" {
		base = Slugify(account.Name)
	}

	query := `
		INSERT INTO accounts (name, slug, plan, note_limit, note_count, is_active, is_deleted)
		VALUES ($1, $2, $3, $4, 0, true, false)
		RETURNING id, note_count, is_active, is_deleted, created_at, updated_at
	`
	slug := base
	for attempt := 1; ; attempt++ {
		err := s.db.QueryRow(query, account.Name, slug, account.Plan, account.NoteLimit).
			Scan(&account.ID, &account.NoteCount, &account.IsActive,
				&account.IsDeleted, &account.CreatedAt, &account.UpdatedAt)
		if err == nil {
			account.Slug = slug
			return nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && attempt <= 25 {
			slug = fmt.Sprintf("%s-%d", base, attempt)
			continue
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
}

// GetAccount retrieves an account by ID
func (s *PostgresService) GetAccount(id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRow(query, id))
}

// GetAccountBySlug retrieves an account by slug
func (s *PostgresService) GetAccountBySlug(slug string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE slug = $1`
	return scanAccount(s.db.QueryRow(query, slug))
}

// DeleteAccount soft deletes an account. Accounts are never hard-deleted.
func (s *PostgresService) DeleteAccount(id int64) error {
	query := `UPDATE accounts SET is_deleted = true, is_active = false, updated_at = NOW() WHERE id = $1`
	result, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CheckNoteQuota is the quota gate invoked before note creation. Pro
// accounts always pass; free accounts fail with a QuotaExceededError
// carrying the upgrade hint once the cap is reached.
//
// The check and the subsequent increment are separate statements within one
// request, so two concurrent creates against the same account can both pass
// the gate. Matches the documented lost-update behavior.
func (s *PostgresService) CheckNoteQuota(accountID int64) error {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}
	if account.CanCreateNote() {
		return nil
	}
	return &QuotaExceededError{
		Plan:    account.Plan,
		Current: account.NoteCount,
		Limit:   account.NoteLimit,
	}
}

// IncrementNoteCount bumps the account note counter after a note create
func (s *PostgresService) IncrementNoteCount(accountID int64) error {
	query := `UPDATE accounts SET note_count = note_count + 1, updated_at = NOW() WHERE id = $1`
	result, err := s.db.Exec(query, accountID)
	if err != nil {
		return fmt.Errorf("failed to increment note count: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DecrementNoteCount lowers the note counter after a note delete,
// floor-clamped at zero
func (s *PostgresService) DecrementNoteCount(accountID int64) error {
	query := `UPDATE accounts SET note_count = GREATEST(note_count - 1, 0), updated_at = NOW() WHERE id = $1`
	if _, err := s.db.Exec(query, accountID); err != nil {
		return fmt.Errorf("failed to decrement note count: %w", err)
	}
	return nil
}

// CheckUpgradeEligibility verifies an account may start a pro upgrade
func (s *PostgresService) CheckUpgradeEligibility(accountID int64) (*Account, error) {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account.IsDeleted {
		return nil, ErrAccountDeleted
	}
	if !account.IsActive {
		return nil, ErrAccountSuspended
	}
	if account.Plan == PlanPro {
		return nil, ErrAlreadyPro
	}
	return account, nil
}

// UpgradeToPro switches the account to the pro plan with unlimited notes and
// records the backing subscription
func (s *PostgresService) UpgradeToPro(accountID, subscriptionID int64) error {
	query := `
		UPDATE accounts
		SET plan = $1, note_limit = $2, current_subscription_id = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := s.db.Exec(query, PlanPro, UnlimitedNotes, subscriptionID, accountID)
	if err != nil {
		return fmt.Errorf("failed to upgrade account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DowngradeToFree reverts the account to the free plan and quota immediately
func (s *PostgresService) DowngradeToFree(accountID int64) error {
	query := `
		UPDATE accounts
		SET plan = $1, note_limit = $2, current_subscription_id = NULL, updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.Exec(query, PlanFree, FreePlanNoteLimit, accountID)
	if err != nil {
		return fmt.Errorf("failed to downgrade account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
