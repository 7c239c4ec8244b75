package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

const tabColumns = `id, session_id, url, title, content, favicon, og_image,
	og_description, media, behavior_data, summary, failure_reason,
	suggested_category, category, tags, cluster_id, cluster_label,
	project_id, user_note, starred, captured_at, triaged_at`

// NewTab carries the fields persisted at capture time.
type NewTab struct {
	SessionID     int64
	URL           string
	Title         string
	Content       *string
	Favicon       *string
	OGImage       *string
	OGDescription *string
	Media         json.RawMessage
	BehaviorData  json.RawMessage
}

// InsertTab stores a freshly captured tab and returns its id.
func InsertTab(db *sql.DB, t NewTab) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO tabs (session_id, url, title, content, favicon, og_image, og_description, media, behavior_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.URL, t.Title,
		toNullString(t.Content), toNullString(t.Favicon),
		toNullString(t.OGImage), toNullString(t.OGDescription),
		rawToNullString(t.Media), rawToNullString(t.BehaviorData),
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

// RecentURLExists reports whether a tab with this exact URL was captured
// within the last 24 hours, relative to the database clock.
func RecentURLExists(db *sql.DB, url string) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM tabs
		WHERE url = ? AND captured_at > datetime('now', '-1 day')
		ORDER BY id DESC LIMIT 1`, url,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// GetTab retrieves a tab by id, content included.
func GetTab(db *sql.DB, id int64) (*tab.Tab, error) {
	row := db.QueryRow("SELECT "+tabColumns+" FROM tabs WHERE id = ?", id)
	t, err := scanTab(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// TabsBySession returns all tabs of a session in capture (id) order.
func TabsBySession(db *sql.DB, sessionID int64) ([]tab.Tab, error) {
	rows, err := db.Query("SELECT "+tabColumns+" FROM tabs WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectTabs(rows)
}

// TabContent returns just the content column of a tab.
func TabContent(db *sql.DB, id int64) (*string, error) {
	var content sql.NullString
	err := db.QueryRow("SELECT content FROM tabs WHERE id = ?", id).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return fromNullString(content), nil
}

// TabURL returns the URL of a tab.
func TabURL(db *sql.DB, id int64) (string, error) {
	var url string
	err := db.QueryRow("SELECT url FROM tabs WHERE id = ?", id).Scan(&url)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound(fmt.Sprintf("tab %d", id))
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return url, nil
}

// SetStarred toggles the starred flag of a tab.
func SetStarred(db *sql.DB, id int64, starred bool) error {
	res, err := db.Exec("UPDATE tabs SET starred = ? WHERE id = ?", boolToInt(starred), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(res, id)
}

// ApplySummary persists a classifier result for one tab. When
// keepExistingTags is set (the initial enrichment pass), tags already on the
// tab win; otherwise new non-empty tags replace the stored set.
func ApplySummary(db *sql.DB, id int64, summary, category string, reason tab.FailureReason, tags []string, keepExistingTags bool) error {
	tagsJSON, err := tagsToNullString(tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	tagsExpr := "COALESCE(?, tags)"
	if keepExistingTags {
		tagsExpr = "COALESCE(tags, ?)"
	}

	res, err := db.Exec(
		"UPDATE tabs SET summary = ?, suggested_category = ?, failure_reason = ?, tags = "+tagsExpr+" WHERE id = ?",
		summary, category, nullableReason(reason), tagsJSON, id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(res, id)
}

// ApplyCluster writes a cluster assignment. The suggested project only fills
// a tab that has no project yet.
func ApplyCluster(db *sql.DB, id int64, clusterID, clusterLabel string, suggestedProjectID *string) error {
	_, err := db.Exec(
		"UPDATE tabs SET cluster_id = ?, cluster_label = ?, project_id = COALESCE(project_id, ?) WHERE id = ?",
		clusterID, clusterLabel, toNullString(suggestedProjectID), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// TriageUpdate carries the optional fields of a triage decision.
// Nil fields leave the stored values untouched.
type TriageUpdate struct {
	Category  *string
	ProjectID *string
	UserNote  *string
	Tags      *[]string
	Starred   *bool
}

// UpdateTriage applies a partial triage update. Setting a category also
// stamps triaged_at with the current time.
func UpdateTriage(db *sql.DB, id int64, u TriageUpdate) error {
	sets := make([]string, 0, 6)
	params := make([]any, 0, 7)

	if u.Category != nil {
		sets = append(sets, "category = ?")
		params = append(params, *u.Category)
	}
	if u.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		params = append(params, *u.ProjectID)
	}
	if u.UserNote != nil {
		sets = append(sets, "user_note = ?")
		params = append(params, *u.UserNote)
	}
	if u.Tags != nil {
		data, err := json.Marshal(*u.Tags)
		if err != nil {
			return errors.NewInternal(err)
		}
		sets = append(sets, "tags = ?")
		params = append(params, string(data))
	}
	if u.Starred != nil {
		sets = append(sets, "starred = ?")
		params = append(params, boolToInt(*u.Starred))
	}
	if u.Category != nil {
		sets = append(sets, "triaged_at = ?")
		params = append(params, nowStamp())
	}

	if len(sets) == 0 {
		return nil
	}

	params = append(params, id)
	res, err := db.Exec("UPDATE tabs SET "+joinSets(sets)+" WHERE id = ?", params...)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(res, id)
}

// RestoreTriage resets category, starred, and triaged_at to an earlier
// snapshot (the undo path).
func RestoreTriage(db *sql.DB, id int64, category *string, starred bool, triagedAt *string) error {
	_, err := db.Exec(
		"UPDATE tabs SET category = ?, starred = ?, triaged_at = ? WHERE id = ?",
		toNullString(category), boolToInt(starred), toNullString(triagedAt), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// UpdateContent replaces a tab's content; og fields only fill missing values.
func UpdateContent(db *sql.DB, id int64, content string, ogImage, ogDescription *string) error {
	res, err := db.Exec(`
		UPDATE tabs SET content = ?,
		  og_image = COALESCE(?, og_image),
		  og_description = COALESCE(?, og_description)
		WHERE id = ?`,
		content, toNullString(ogImage), toNullString(ogDescription), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(res, id)
}

// SummarizeRow holds the classifier inputs for one tab.
type SummarizeRow struct {
	ID      int64
	Title   string
	URL     string
	Content *string
}

// GetSummarizeRow fetches the classifier inputs for a tab.
func GetSummarizeRow(db *sql.DB, id int64) (*SummarizeRow, error) {
	var (
		r       SummarizeRow
		content sql.NullString
	)
	err := db.QueryRow("SELECT id, title, url, content FROM tabs WHERE id = ?", id).
		Scan(&r.ID, &r.Title, &r.URL, &content)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.Content = fromNullString(content)
	return &r, nil
}

// ClusterTab is one tab as presented to the clustering call.
type ClusterTab struct {
	ID      int64
	Title   string
	URL     string
	Summary *string
	Tags    []string
}

// SessionClusterTabs returns the clustering inputs for a session.
func SessionClusterTabs(db *sql.DB, sessionID int64) ([]ClusterTab, error) {
	rows, err := db.Query("SELECT id, title, url, summary, tags FROM tabs WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	tabs := make([]ClusterTab, 0)
	for rows.Next() {
		var (
			c        ClusterTab
			summary  sql.NullString
			tagsJSON sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.URL, &summary, &tagsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		c.Summary = fromNullString(summary)
		c.Tags = parseTags(tagsJSON)
		tabs = append(tabs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tabs, nil
}

// ReSummarizeCandidates selects untriaged tabs whose enrichment failed at the
// classifier (or never produced a summary) but that may still be summarized.
func ReSummarizeCandidates(db *sql.DB) ([]SummarizeRow, error) {
	rows, err := db.Query(`
		SELECT id, title, url, content FROM tabs
		WHERE (failure_reason IN (?, ?, ?) OR summary IS NULL)
		AND triaged_at IS NULL ORDER BY id`,
		string(tab.FailureCLIError), string(tab.FailureCLIMissing), string(tab.FailureTimeout),
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectSummarizeRows(rows)
}

// ReExtractCandidates selects untriaged tabs whose enrichment failed for lack
// of extractable content.
func ReExtractCandidates(db *sql.DB) ([]SummarizeRow, error) {
	rows, err := db.Query(`
		SELECT id, title, url, content FROM tabs
		WHERE failure_reason = ? AND triaged_at IS NULL ORDER BY id`,
		string(tab.FailureNoContent),
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectSummarizeRows(rows)
}

// AutoTriageRow is one tab eligible for auto-triage, with the pre-triage
// state needed for the undo snapshot.
type AutoTriageRow struct {
	ID                int64
	Title             string
	URL               string
	SuggestedCategory string
	Category          *string
	Starred           bool
	TriagedAt         *string
}

// UntriagedSuggested returns every tab with no human decision but a
// classifier suggestion, in id order.
func UntriagedSuggested(db *sql.DB) ([]AutoTriageRow, error) {
	rows, err := db.Query(`
		SELECT id, title, url, suggested_category, category, starred, triaged_at
		FROM tabs WHERE triaged_at IS NULL AND suggested_category IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make([]AutoTriageRow, 0)
	for rows.Next() {
		var (
			r         AutoTriageRow
			category  sql.NullString
			starred   int
			triagedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.URL, &r.SuggestedCategory, &category, &starred, &triagedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Category = fromNullString(category)
		r.Starred = starred != 0
		r.TriagedAt = fromNullString(triagedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// InsightTab is one tab as fed into the content analysis call.
type InsightTab struct {
	ID      int64
	Title   string
	URL     string
	Summary *string
	Content *string
	Tags    []string
}

// InsightTabs selects tabs for content analysis, optionally filtered by
// cluster and tag substring, newest first.
func InsightTabs(db *sql.DB, clusterID, tag *string, limit int) ([]InsightTab, error) {
	query := "SELECT id, title, url, summary, content, tags FROM tabs WHERE 1=1"
	params := make([]any, 0, 3)
	if clusterID != nil {
		query += " AND cluster_id = ?"
		params = append(params, *clusterID)
	}
	if tag != nil {
		query += " AND tags LIKE ?"
		params = append(params, "%"+*tag+"%")
	}
	query += " ORDER BY id DESC LIMIT ?"
	params = append(params, limit)

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make([]InsightTab, 0)
	for rows.Next() {
		var (
			t                InsightTab
			summary, content sql.NullString
			tagsJSON         sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.URL, &summary, &content, &tagsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		t.Summary = fromNullString(summary)
		t.Content = fromNullString(content)
		t.Tags = parseTags(tagsJSON)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// TopicRow carries the tag/cluster columns of one untriaged tab.
type TopicRow struct {
	Tags         []string
	ClusterID    *string
	ClusterLabel *string
}

// TopicRows returns tag and cluster assignments of all untriaged tabs.
func TopicRows(db *sql.DB) ([]TopicRow, error) {
	rows, err := db.Query("SELECT tags, cluster_id, cluster_label FROM tabs WHERE triaged_at IS NULL")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make([]TopicRow, 0)
	for rows.Next() {
		var (
			tagsJSON              sql.NullString
			clusterID, clusterLab sql.NullString
		)
		if err := rows.Scan(&tagsJSON, &clusterID, &clusterLab); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, TopicRow{
			Tags:         parseTags(tagsJSON),
			ClusterID:    fromNullString(clusterID),
			ClusterLabel: fromNullString(clusterLab),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanTab scans a single tab row.
func scanTab(row interface{ Scan(...any) error }) (*tab.Tab, error) {
	var (
		t                       tab.Tab
		content, favicon        sql.NullString
		ogImage, ogDescription  sql.NullString
		media, behavior         sql.NullString
		summary, failureReason  sql.NullString
		suggestedCat, category  sql.NullString
		tagsJSON                sql.NullString
		clusterID, clusterLabel sql.NullString
		projectID, userNote     sql.NullString
		starred                 int
		triagedAt               sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.SessionID, &t.URL, &t.Title, &content, &favicon,
		&ogImage, &ogDescription, &media, &behavior, &summary, &failureReason,
		&suggestedCat, &category, &tagsJSON, &clusterID, &clusterLabel,
		&projectID, &userNote, &starred, &t.CapturedAt, &triagedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Content = fromNullString(content)
	t.HasContent = content.Valid && content.String != ""
	t.Favicon = fromNullString(favicon)
	t.OGImage = fromNullString(ogImage)
	t.OGDescription = fromNullString(ogDescription)
	if media.Valid {
		t.Media = json.RawMessage(media.String)
	}
	if behavior.Valid {
		t.BehaviorData = json.RawMessage(behavior.String)
	}
	t.Summary = fromNullString(summary)
	if failureReason.Valid {
		t.FailureReason = tab.FailureReason(failureReason.String)
	}
	t.SuggestedCategory = fromNullString(suggestedCat)
	t.Category = fromNullString(category)
	t.Tags = parseTags(tagsJSON)
	t.ClusterID = fromNullString(clusterID)
	t.ClusterLabel = fromNullString(clusterLabel)
	t.ProjectID = fromNullString(projectID)
	t.UserNote = fromNullString(userNote)
	t.Starred = starred != 0
	t.TriagedAt = fromNullString(triagedAt)

	return &t, nil
}

func collectTabs(rows *sql.Rows) ([]tab.Tab, error) {
	tabs := make([]tab.Tab, 0)
	for rows.Next() {
		t, err := scanTab(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		tabs = append(tabs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tabs, nil
}

func collectSummarizeRows(rows *sql.Rows) ([]SummarizeRow, error) {
	out := make([]SummarizeRow, 0)
	for rows.Next() {
		var (
			r       SummarizeRow
			content sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.URL, &content); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Content = fromNullString(content)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// parseTags decodes the tags JSON column, returning nil on NULL or garbage.
func parseTags(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(ns.String), &tags); err != nil {
		return nil
	}
	return tags
}

// tagsToNullString encodes tags as JSON, NULL when empty.
func tagsToNullString(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableReason(r tab.FailureReason) sql.NullString {
	if r == tab.FailureNone {
		return sql.NullString{}
	}
	return sql.NullString{String: string(r), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nowStamp returns the current UTC time in the format used by SQLite's
// datetime('now').
func nowStamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(fmt.Sprintf("tab %d", id))
	}
	return nil
}
