package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver selects the database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Store struct {
	db     *sql.DB
	driver Driver
	now    func() time.Time
}

// New opens the database and ensures the schema exists. For sqlite, dsn is a
// file path or ":memory:".
func New(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		drvName = "sqlite"
		if dsn == "" {
			dsn = "certprep.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
			if !strings.Contains(dsn, ":memory:") {
				dsn += "&_pragma=journal_mode(WAL)"
			}
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/certprep?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection: an in-memory database is private to its connection,
		// and sqlite serializes writers anyway.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver reports which backend the store is using.
func (s *Store) Driver() Driver {
	return s.driver
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// placeholders returns "$from, $from+1, ..." for n arguments.
func placeholders(from, n int) string {
	var b strings.Builder
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", from+i)
	}
	return b.String()
}

func (s *Store) nowMilli() int64 {
	return s.now().UnixMilli()
}

// Tables carry a seq column for stable insertion ordering; rows are
// referenced by their text id.
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'student',
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	question TEXT NOT NULL,
	option1 TEXT NOT NULL,
	option2 TEXT NOT NULL,
	option3 TEXT NOT NULL,
	option4 TEXT NOT NULL,
	option5 TEXT,
	option6 TEXT,
	correct_answers TEXT NOT NULL,
	difficulty TEXT NOT NULL DEFAULT 'medium',
	topic TEXT NOT NULL DEFAULT '',
	explanation TEXT,
	keywords TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS study_sessions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	mode TEXT NOT NULL DEFAULT 'exam',
	total_questions INTEGER NOT NULL,
	correct_answers INTEGER NOT NULL,
	incorrect_answers INTEGER NOT NULL,
	time_spent INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_attempts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	session_id TEXT REFERENCES study_sessions(id) ON DELETE SET NULL,
	selected_answers TEXT NOT NULL,
	is_correct INTEGER NOT NULL,
	time_spent INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_user ON user_attempts(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON user_attempts(session_id);

CREATE TABLE IF NOT EXISTS progress_snapshots (
	user_id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'student',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	question TEXT NOT NULL,
	option1 TEXT NOT NULL,
	option2 TEXT NOT NULL,
	option3 TEXT NOT NULL,
	option4 TEXT NOT NULL,
	option5 TEXT,
	option6 TEXT,
	correct_answers TEXT NOT NULL,
	difficulty TEXT NOT NULL DEFAULT 'medium',
	topic TEXT NOT NULL DEFAULT '',
	explanation TEXT,
	keywords TEXT,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS study_sessions (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	mode TEXT NOT NULL DEFAULT 'exam',
	total_questions INTEGER NOT NULL,
	correct_answers INTEGER NOT NULL,
	incorrect_answers INTEGER NOT NULL,
	time_spent INTEGER NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_attempts (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	session_id TEXT REFERENCES study_sessions(id) ON DELETE SET NULL,
	selected_answers TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL,
	time_spent INTEGER NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_user ON user_attempts(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON user_attempts(session_id);

CREATE TABLE IF NOT EXISTS progress_snapshots (
	user_id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
