package ops

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// IgnoreDomain adds a domain (or a URL, from which the domain is taken) to
// the ignore list and returns the normalized form. Future captures from it
// are dropped; already captured tabs stay.
func IgnoreDomain(database *sql.DB, raw string) (string, error) {
	domain := tab.NormalizeDomain(raw)
	if domain == "" {
		return "", errors.NewInvalidRequest("domain is required")
	}
	if err := db.AddIgnoredDomain(database, domain); err != nil {
		return "", err
	}
	return domain, nil
}

// UnignoreDomain removes a domain from the ignore list.
func UnignoreDomain(database *sql.DB, raw string) (string, error) {
	domain := tab.NormalizeDomain(raw)
	if domain == "" {
		return "", errors.NewInvalidRequest("domain is required")
	}
	if err := db.RemoveIgnoredDomain(database, domain); err != nil {
		return "", err
	}
	return domain, nil
}

// ListIgnoredDomains returns the ignore list, alphabetically.
func ListIgnoredDomains(database *sql.DB) ([]string, error) {
	return db.ListIgnoredDomains(database)
}
