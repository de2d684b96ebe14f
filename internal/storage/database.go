package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"llmexperimenter/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DB is a *sql.DB that remembers its dialect so queries written with "?"
// placeholders can be rebound for postgres.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Rebind rewrites "?" placeholders into the dialect's native form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to the configured database and verifies it is reachable.
func Open(dbCfg config.DatabaseConfig) (*DB, error) {
	var (
		db      *sql.DB
		err     error
		dialect Dialect
	)

	switch strings.ToLower(dbCfg.Driver) {
	case "", "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		dialect = DialectSQLite
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if strings.Contains(dbCfg.DSN, ":memory:") {
			// every connection to :memory: is a separate database
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		dialect = DialectMySQL
		db, err = sql.Open("mysql", mysqlDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "postgres", "pgx":
		dialect = DialectPostgres
		db, err = sql.Open("pgx", postgresDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbCfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func mysqlDSN(dbCfg config.DatabaseConfig) string {
	if dbCfg.DSN != "" {
		return dbCfg.DSN
	}
	params := dbCfg.Params
	if !strings.Contains(params, "parseTime") {
		if params != "" {
			params += "&"
		}
		params += "parseTime=true"
	}
	port := dbCfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.Username,
		dbCfg.Password,
		dbCfg.Host,
		port,
		dbCfg.DBName,
		params,
	)
}

func postgresDSN(dbCfg config.DatabaseConfig) string {
	if dbCfg.DSN != "" {
		return dbCfg.DSN
	}
	port := dbCfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", dbCfg.Username, dbCfg.Password, dbCfg.Host, port, dbCfg.DBName)
	if dbCfg.Params != "" {
		dsn += "?" + dbCfg.Params
	}
	return dsn
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.Dialect {
	case DialectSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL,
				session_id TEXT NOT NULL,
				model TEXT NOT NULL,
				prompt TEXT NOT NULL,
				response TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_user_created ON history(username, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS user_configuration (
				email TEXT PRIMARY KEY,
				temperature REAL,
				max_tokens INTEGER,
				top_p REAL,
				presence_penalty REAL,
				frequency_penalty REAL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_sessions (
				token TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				session_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(username)`,
		}
	case DialectMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS history (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				username VARCHAR(255) NOT NULL,
				session_id VARCHAR(64) NOT NULL,
				model VARCHAR(255) NOT NULL,
				prompt MEDIUMTEXT NOT NULL,
				response MEDIUMTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_history_user_created (username, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_configuration (
				email VARCHAR(255) NOT NULL,
				temperature DOUBLE NULL,
				max_tokens INT NULL,
				top_p DOUBLE NULL,
				presence_penalty DOUBLE NULL,
				frequency_penalty DOUBLE NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (email)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_sessions (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				session_id VARCHAR(64) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				INDEX idx_user_sessions_user (username)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case DialectPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS history (
				id BIGSERIAL PRIMARY KEY,
				username TEXT NOT NULL,
				session_id TEXT NOT NULL,
				model TEXT NOT NULL,
				prompt TEXT NOT NULL,
				response TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_user_created ON history(username, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS user_configuration (
				email TEXT PRIMARY KEY,
				temperature DOUBLE PRECISION,
				max_tokens INTEGER,
				top_p DOUBLE PRECISION,
				presence_penalty DOUBLE PRECISION,
				frequency_penalty DOUBLE PRECISION,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_sessions (
				token TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				session_id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(username)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.Dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.Dialect, err)
		}
	}
	return nil
}
