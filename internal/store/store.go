package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed schema_postgres.sql
var postgresSchemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - Initial sysarch schema
const currentSchemaVersion = 1

// Dialect identifies the SQL backend behind a Store.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Config selects and locates the backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// Path is the SQLite database file. ":memory:" opens a private in-memory database.
	Path string
	// DSN is the Postgres connection string.
	DSN string
}

// Store provides durable storage for systems, assemblies, parts, features,
// assembly items and connectors.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.SugaredLogger
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	return OpenWithConfig(context.Background(), Config{Driver: string(SQLite), Path: path}, nil)
}

// OpenWithConfig opens the backend named by cfg.Driver. A nil logger disables logging.
func OpenWithConfig(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch Dialect(strings.ToLower(cfg.Driver)) {
	case SQLite, "":
		return openSQLite(ctx, cfg.Path, log)
	case Postgres:
		return openPostgres(ctx, cfg.DSN, log)
	default:
		return nil, errors.WithHint(
			errors.Newf("unknown database driver %q", cfg.Driver),
			"use \"sqlite\" or \"postgres\"",
		)
	}
}

func openSQLite(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	log.Debugw("Opening database", "driver", sqliteDriverName, "path", path)

	db, err := sql.Open(sqliteDriverName, sqliteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// lives exactly as long as its single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply pragmas")
	}

	s := &Store{db: db, dialect: SQLite, log: log}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	log.Infow("Database opened successfully",
		"driver", sqliteDriverName,
		"path", path,
		"wal_mode", true,
		"foreign_keys", true,
	)
	return s, nil
}

func openPostgres(ctx context.Context, dsn string, log *zap.SugaredLogger) (*Store, error) {
	if dsn == "" {
		return nil, errors.WithHint(errors.New("postgres DSN is empty"), "set database.dsn or SYSARCH_DATABASE_DSN")
	}
	log.Debugw("Opening database", "driver", "pgx")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	s := &Store{db: db, dialect: Postgres, log: log}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	log.Infow("Database opened successfully", "driver", "pgx")
	return s, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Records when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports which backend the store is connected to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Records returns repository operations that run outside any transaction.
// Each call is its own statement; there is no cross-statement snapshot.
func (s *Store) Records() *Records {
	return &Records{q: s.db, dialect: s.dialect}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	schema := sqliteSchemaSQL
	if s.dialect == Postgres {
		schema = postgresSchemaSQL
	}

	for _, stmt := range splitStatements(schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to execute schema")
		}
	}

	if err := s.runMigrations(ctx); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	return nil
}

// runMigrations applies incremental schema migrations based on the stored
// schema version (PRAGMA user_version on SQLite, schema_meta on Postgres).
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return errors.WithHint(
			errors.Newf("database schema version %d is newer than supported version %d", version, currentSchemaVersion),
			"upgrade sysarch before opening this database",
		)
	}

	// Version 1 is the baseline created by the embedded schema.
	// Later migrations go here, each guarded by `if version < N`.

	return s.setSchemaVersion(ctx, currentSchemaVersion)
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	var err error
	if s.dialect == Postgres {
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE((SELECT value FROM schema_meta WHERE key = 'version'), 0)`,
		).Scan(&version)
	} else {
		err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	}
	if err != nil {
		return 0, errors.Wrap(err, "get schema version")
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	var err error
	if s.dialect == Postgres {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO schema_meta (key, value) VALUES ('version', $1)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, version)
	} else {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	}
	if err != nil {
		return errors.Wrap(err, "set schema version")
	}
	return nil
}

// splitStatements breaks a schema file into individual statements.
// Semicolons inside $$-quoted bodies do not terminate a statement.
func splitStatements(schema string) []string {
	var (
		stmts   []string
		current strings.Builder
		inBody  bool
	)
	for _, line := range strings.Split(schema, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.Count(line, "$$")%2 == 1 {
			inBody = !inBody
		}
		if !inBody && strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return errors.Wrapf(err, "failed to query %s", name)
	}
	if value != expected {
		return errors.Newf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
