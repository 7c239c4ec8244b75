package db

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/errors"
)

// AddIgnoredDomain records a domain whose captures are dropped. Adding an
// already ignored domain is a no-op.
func AddIgnoredDomain(db *sql.DB, domain string) error {
	if _, err := db.Exec("INSERT OR IGNORE INTO ignored_domains (domain) VALUES (?)", domain); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RemoveIgnoredDomain removes a domain from the ignore list.
func RemoveIgnoredDomain(db *sql.DB, domain string) error {
	if _, err := db.Exec("DELETE FROM ignored_domains WHERE domain = ?", domain); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// IsIgnoredDomain reports whether a normalized domain is on the ignore list.
func IsIgnoredDomain(db *sql.DB, domain string) (bool, error) {
	var one int
	err := db.QueryRow("SELECT 1 FROM ignored_domains WHERE domain = ?", domain).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// ListIgnoredDomains returns all ignored domains, alphabetically.
func ListIgnoredDomains(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT domain FROM ignored_domains ORDER BY domain")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	domains := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, errors.NewInternal(err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return domains, nil
}
