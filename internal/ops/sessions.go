package ops

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// ListSessions returns all capture sessions, newest first, with tab and
// triage counts.
func ListSessions(database *sql.DB) ([]tab.SessionSummary, error) {
	return db.ListSessions(database)
}

// SessionTabs returns a session's tabs in capture order, content stripped;
// HasContent tells the client whether fetching the content is worthwhile.
func SessionTabs(database *sql.DB, sessionID int64) ([]tab.Tab, error) {
	tabs, err := db.TabsBySession(database, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range tabs {
		tabs[i].Content = nil
	}
	return tabs, nil
}

// TriageData bundles everything the triage page needs in one response.
type TriageData struct {
	Sessions       []SessionWithTabs `json:"sessions"`
	IgnoredDomains []string          `json:"ignored_domains"`
}

// SessionWithTabs pairs a session with its (content-stripped) tabs.
type SessionWithTabs struct {
	Session tab.SessionSummary `json:"session"`
	Tabs    []tab.Tab          `json:"tabs"`
}

// GetTriageData loads all sessions with their tabs plus the ignore list.
func GetTriageData(database *sql.DB) (*TriageData, error) {
	sessions, err := db.ListSessions(database)
	if err != nil {
		return nil, err
	}

	out := &TriageData{Sessions: make([]SessionWithTabs, 0, len(sessions))}
	for _, s := range sessions {
		tabs, err := SessionTabs(database, s.ID)
		if err != nil {
			return nil, err
		}
		out.Sessions = append(out.Sessions, SessionWithTabs{Session: s, Tabs: tabs})
	}

	out.IgnoredDomains, err = db.ListIgnoredDomains(database)
	if err != nil {
		return nil, err
	}
	return out, nil
}
