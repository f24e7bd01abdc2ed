// Package logstore implements the broker's append-only message log (spec
// §2 "process-wide log sink", §4.5 "Log writer"): every forwarded data
// message is inserted into a collection named after its output schema.
// Adapted from the teacher's internal/infra/sqlite/db.go (WAL mode,
// single-writer pool, migration-on-open), generalized from a fixed
// models/node_info schema to one table per collection, created on first
// insert, using modernc.org/sqlite (pure Go, no cgo) as the teacher does.
package logstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/incstep-network/incstep/internal/message"
)

// Store is the append-only sink every (collection, Message) pair from the
// log queue is inserted into.
type Store struct {
	db    *sql.DB
	known map[string]bool
}

// Open creates or opens the SQLite database at dir/log.db in WAL mode.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("logstore: create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "log.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("logstore: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("logstore: ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)

	return &Store{db: db, known: make(map[string]bool)}, nil
}

// Close cleanly shuts down the database.
func (s *Store) Close() error { return s.db.Close() }

var identifierPattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func tableName(collection string) string {
	return "msg_" + identifierPattern.ReplaceAllString(collection, "_")
}

func (s *Store) ensureTable(collection string) error {
	table := tableName(collection)
	if s.known[table] {
		return nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		source    TEXT NOT NULL,
		signal    TEXT NOT NULL,
		incstep   INTEGER NOT NULL,
		year      INTEGER NOT NULL,
		time      REAL NOT NULL,
		body      TEXT NOT NULL
	)`, table)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("logstore: create table %s: %w", table, err)
	}
	s.known[table] = true
	return nil
}

// Insert appends msg to the named collection's table, creating it on
// first use.
func (s *Store) Insert(collection string, msg message.Message) error {
	if err := s.ensureTable(collection); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("logstore: marshal message: %w", err)
	}
	table := tableName(collection)
	_, err = s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (source, signal, incstep, year, time, body) VALUES (?, ?, ?, ?, ?, ?)`, table),
		msg.Source, msg.Signal, msg.Incstep, msg.Year, msg.Time, string(body),
	)
	if err != nil {
		return fmt.Errorf("logstore: insert into %s: %w", table, err)
	}
	return nil
}
