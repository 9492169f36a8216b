package storage

import (
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"wabot/pkg/state"
)

// MySQLStore implements Store using a MySQL backend
type MySQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewMySQLStore creates a new MySQL-backed store from a DSN
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	store := &MySQLStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initDB() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(191) PRIMARY KEY,
			first_seen DATETIME,
			last_seen DATETIME,
			message_count BIGINT DEFAULT 0,
			INDEX idx_users_last_seen (last_seen)
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name VARCHAR(64) PRIMARY KEY,
			value BIGINT DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveUser upserts one user record
func (s *MySQLStore) SaveUser(rec state.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (id, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_seen = VALUES(last_seen),
			message_count = VALUES(message_count)`,
		rec.ID, rec.FirstSeen, rec.LastSeen, rec.MessageCount)
	return err
}

// SaveUsers upserts a batch of user records in one transaction
func (s *MySQLStore) SaveUsers(recs []state.UserRecord) error {
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
			ON DUPLICATE KEY UPDATE
				last_seen = VALUES(last_seen),
				message_count = VALUES(message_count)`,
			rec.ID, rec.FirstSeen, rec.LastSeen, rec.MessageCount); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetAllUsers returns all persisted user records
func (s *MySQLStore) GetAllUsers() ([]state.UserRecord, error) {
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
func (s *MySQLStore) SaveTotalCommands(total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES ('total_commands', ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`, total)
	return err
}

// LoadTotalCommands returns the persisted lifetime command counter
func (s *MySQLStore) LoadTotalCommands() (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = 'total_commands'`).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return total, err
}

// Close closes the database
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
