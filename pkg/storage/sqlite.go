package storage

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"wabot/pkg/state"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_seen DATETIME,
		last_seen DATETIME,
		message_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen DESC);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveUser upserts one user record
func (s *SQLiteStore) SaveUser(rec state.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (id, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = excluded.message_count`,
		rec.ID, rec.FirstSeen, rec.LastSeen, rec.MessageCount)
	return err
}

// SaveUsers upserts a batch of user records in one transaction
func (s *SQLiteStore) SaveUsers(recs []state.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if _, err := tx.Exec(`
			INSERT INTO users (id, first_seen, last_seen, message_count)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_seen = excluded.last_seen,
				message_count = excluded.message_count`,
			rec.ID, rec.FirstSeen, rec.LastSeen, rec.MessageCount); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetAllUsers returns all persisted user records
func (s *SQLiteStore) GetAllUsers() ([]state.UserRecord, error) {
	rows, err := s.db.Query(`SELECT id, first_seen, last_seen, message_count FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []state.UserRecord
	for rows.Next() {
		var rec state.UserRecord
		if err := rows.Scan(&rec.ID, &rec.FirstSeen, &rec.LastSeen, &rec.MessageCount); err != nil {
			return nil, err
		}
		users = append(users, rec)
	}
	return users, rows.Err()
}

// SaveTotalCommands persists the lifetime command counter
func (s *SQLiteStore) SaveTotalCommands(total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES ('total_commands', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, total)
	return err
}

// LoadTotalCommands returns the persisted lifetime command counter
func (s *SQLiteStore) LoadTotalCommands() (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = 'total_commands'`).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return total, err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
