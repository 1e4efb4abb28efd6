package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	hid TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	profile_detailed TEXT
);
`

// User is one discovered user record. Data is the discovery-feed hit as
// received; Profile is filled in later by the backfill loop and is never
// cleared once set.
type User struct {
	Hid     string
	Data    json.RawMessage
	Profile json.RawMessage
}

// UserStore persists discovered users in sqlite. The single connection
// serializes writes from the two concurrently running loops.
type UserStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the user database at the given path.
// WAL mode plus a busy timeout lets another process read the database
// while a crawl is writing to it.
func Open(dbPath string) (*UserStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &UserStore{db: db}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database
func (s *UserStore) Close() error {
	return s.db.Close()
}

// SaveUser inserts a discovered user if the hid is new. First seen wins:
// a later discovery of the same hid is a no-op. Returns whether a row was
// actually inserted.
func (s *UserStore) SaveUser(ctx context.Context, hid string, data json.RawMessage) (bool, error) {
	if hid == "" {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (hid, data) VALUES (?, ?)`,
		hid, string(data),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save user %s: %w", hid, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveProfile writes profile detail onto an existing record. Returns
// whether a row was updated.
func (s *UserStore) SaveProfile(ctx context.Context, hid string, profile json.RawMessage) (bool, error) {
	if hid == "" || len(profile) == 0 {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET profile_detailed = ? WHERE hid = ?`,
		string(profile), hid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save profile for user %s: %w", hid, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UsersWithoutProfile returns up to limit records still lacking profile
// detail. This is the backfill loop's work queue.
func (s *UserStore) UsersWithoutProfile(ctx context.Context, limit int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hid, data FROM users WHERE profile_detailed IS NULL LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users without profile: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var data string
		if err := rows.Scan(&u.Hid, &data); err != nil {
			return nil, err
		}
		u.Data = json.RawMessage(data)
		users = append(users, u)
	}

	return users, rows.Err()
}

// AllUsers returns a page of records, profile included when present
func (s *UserStore) AllUsers(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hid, data, profile_detailed FROM users LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var data string
		var profile sql.NullString
		if err := rows.Scan(&u.Hid, &data, &profile); err != nil {
			return nil, err
		}
		u.Data = json.RawMessage(data)
		if profile.Valid {
			u.Profile = json.RawMessage(profile.String)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// CountUsers returns the number of discovered users
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountUsersWithProfile returns the number of fully backfilled users
func (s *UserStore) CountUsersWithProfile(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE profile_detailed IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users with profile: %w", err)
	}
	return count, nil
}
