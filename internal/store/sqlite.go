package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite transition store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it. The file is
// restricted to its owner since it records keystrokes.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (int, error) {
	return currentVersion(s.db)
}

// StartSession records the start of a daemon run under a fresh UUID.
func (s *Store) StartSession(at time.Time, configPath string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO sessions (uuid, started_at, config_path) VALUES (?, ?, ?)`,
		uuid.NewString(), at.UnixNano(), configPath)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// EndSession stamps the end of a run.
func (s *Store) EndSession(id int64, at time.Time) error {
	if _, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, at.UnixNano(), id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Sessions returns the most recent n sessions, newest first.
func (s *Store) Sessions(n int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, started_at, ended_at, config_path
		FROM sessions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&sess.ID, &sess.UUID, &started, &ended, &sess.ConfigPath); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.Unix(0, started)
		if ended.Valid {
			sess.EndedAt = time.Unix(0, ended.Int64)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// InsertTransitions writes a batch in one transaction.
func (s *Store) InsertTransitions(ts []Transition) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO transitions (session_id, ts, code, pressed, state_before, state_after, result, redispatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		var session any
		if t.SessionID != 0 {
			session = t.SessionID
		}
		if _, err := stmt.Exec(session, t.Time.UnixNano(), t.Code, t.Pressed,
			t.StateBefore, t.StateAfter, t.Result, t.Redispatched); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Recent returns the last n transitions, oldest first.
func (s *Store) Recent(n int) ([]Transition, error) {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(session_id, 0), ts, code, pressed, state_before, state_after, result, redispatched
		FROM (SELECT * FROM transitions ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var ts int64
		if err := rows.Scan(&t.ID, &t.SessionID, &ts, &t.Code, &t.Pressed,
			&t.StateBefore, &t.StateAfter, &t.Result, &t.Redispatched); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Time = time.Unix(0, ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes transitions older than before and returns how many went.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM transitions WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes the store.
func (s *Store) Stats() (Stats, error) {
	st := Stats{ByState: make(map[string]int64)}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRow(`SELECT COUNT(*), MIN(ts), MAX(ts) FROM transitions`).
		Scan(&st.Transitions, &oldest, &newest)
	if err != nil {
		return st, fmt.Errorf("count transitions: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
		st.Newest = time.Unix(0, newest.Int64)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions); err != nil {
		return st, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.db.Query(`SELECT state_after, COUNT(*) FROM transitions GROUP BY state_after`)
	if err != nil {
		return st, fmt.Errorf("group transitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return st, fmt.Errorf("scan state count: %w", err)
		}
		st.ByState[state] = n
	}
	return st, rows.Err()
}
