package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(64) NOT NULL UNIQUE,
					plan VARCHAR(20) NOT NULL DEFAULT 'free',
					note_limit INT NOT NULL DEFAULT 10,
					note_count INT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					current_subscription_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_accounts_slug ON accounts(slug);
			`,
		},
		{
			Version:     2,
			Description: "Create roles and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					name VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, name)
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					tokens_invalid_before TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP,
					last_login_ip VARCHAR(45),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, email)
				);

				CREATE INDEX IF NOT EXISTS idx_users_account_id ON users(account_id);
				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     3,
			Description: "Create notes, tags, and note_tags tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS notes (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					title VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					search_vector TSVECTOR GENERATED ALWAYS AS (
						setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
						setweight(to_tsvector('english', coalesce(description, '')), 'B')
					) STORED,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notes_account_live ON notes(account_id, is_deleted);
				CREATE INDEX IF NOT EXISTS idx_notes_owner_id ON notes(owner_id);
				CREATE INDEX IF NOT EXISTS idx_notes_search_vector ON notes USING GIN(search_vector);

				CREATE TABLE IF NOT EXISTS tags (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					name VARCHAR(100) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, name)
				);

				CREATE TABLE IF NOT EXISTS note_tags (
					note_id BIGINT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
					tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
					PRIMARY KEY (note_id, tag_id)
				);

				CREATE INDEX IF NOT EXISTS idx_note_tags_tag_id ON note_tags(tag_id);
			`,
		},
		{
			Version:     4,
			Description: "Create subscriptions, payments, and invoices tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					plan VARCHAR(20) NOT NULL,
					status VARCHAR(20) NOT NULL,
					starts_at TIMESTAMP NOT NULL,
					ends_at TIMESTAMP NOT NULL,
					cancelled_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_subscriptions_account_status ON subscriptions(account_id, status);
				CREATE INDEX IF NOT EXISTS idx_subscriptions_ends_at ON subscriptions(ends_at);

				CREATE TABLE IF NOT EXISTS payments (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					subscription_id BIGINT REFERENCES subscriptions(id) ON DELETE SET NULL,
					gateway_order_id VARCHAR(255) NOT NULL,
					gateway_payment_id VARCHAR(255),
					amount_cents BIGINT NOT NULL,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					status VARCHAR(20) NOT NULL,
					method VARCHAR(50),
					failure_reason TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_payments_account_id ON payments(account_id);
				CREATE INDEX IF NOT EXISTS idx_payments_gateway_order_id ON payments(gateway_order_id);

				CREATE TABLE IF NOT EXISTS invoices (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					payment_id BIGINT NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
					number VARCHAR(50) NOT NULL UNIQUE,
					amount_cents BIGINT NOT NULL,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					status VARCHAR(20) NOT NULL,
					issued_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_invoices_account_id ON invoices(account_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quill_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM quill_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO quill_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
