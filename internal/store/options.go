package store

import "strings"

// Opts holds store configuration.
type Opts struct {
	// DSN is the database connection string. Postgres URLs and key=value
	// strings select the Postgres backend; anything else is treated as an
	// SQLite file path.
	DSN string
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithPostgresDSN sets a PostgreSQL DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets an SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// Key=value DSNs (host=... user=...) are also Postgres.
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}
