package db

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// InsertSession creates a new capture session and returns its id.
func InsertSession(db *sql.DB, windowTitle *string, hostname string) (int64, error) {
	res, err := db.Exec(
		"INSERT INTO sessions (window_title, hostname) VALUES (?, ?)",
		toNullString(windowTitle), hostname,
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// DeleteSession removes a session. Tabs cascade via the foreign key, but the
// only caller deletes sessions that never had any.
func DeleteSession(db *sql.DB, id int64) error {
	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListSessions returns all sessions, newest first, with per-session tab and
// triaged counts.
func ListSessions(db *sql.DB) ([]tab.SessionSummary, error) {
	rows, err := db.Query(`
		SELECT s.id, s.window_title, s.hostname, s.captured_at,
		       COUNT(t.id) AS tab_count,
		       COALESCE(SUM(CASE WHEN t.triaged_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS triaged_count
		FROM sessions s LEFT JOIN tabs t ON t.session_id = s.id
		GROUP BY s.id ORDER BY s.captured_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	sessions := make([]tab.SessionSummary, 0)
	for rows.Next() {
		var (
			s           tab.SessionSummary
			windowTitle sql.NullString
		)
		if err := rows.Scan(&s.ID, &windowTitle, &s.Hostname, &s.CapturedAt, &s.TabCount, &s.TriagedCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.WindowTitle = fromNullString(windowTitle)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return sessions, nil
}

// CountSessions returns the number of sessions.
func CountSessions(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
