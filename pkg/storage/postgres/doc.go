// Package postgres manages the PostgreSQL connection pool and the schema
// migrations that run at startup.
//
// Connect opens a pool with the configured limits and verifies it with a
// ping before returning. RunMigrations applies the versioned DDL in order,
// tracking applied versions in the quill_migrations table so restarts are
// idempotent.
//
// Example usage:
//
//	db, err := postgres.Connect(postgres.Config{
//		URL:      cfg.Storage.PostgresURL,
//		MaxConns: cfg.Storage.PostgresMaxConns,
//		MinConns: cfg.Storage.PostgresMinConns,
//		Timeout:  cfg.Storage.PostgresTimeout,
//	})
//	if err != nil {
//		return err
//	}
//	if err := postgres.RunMigrations(ctx, db); err != nil {
//		return err
//	}
package postgres
