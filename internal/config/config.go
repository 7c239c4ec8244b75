package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Host is the address the HTTP server binds to.
	Host string `json:"host"`

	// Port is the HTTP server port. Capture filtering also uses it to
	// recognize the tool's own triage page.
	Port int `json:"port"`

	// MaxContentChars caps the stored extracted content per tab.
	MaxContentChars int `json:"max_content_chars"`

	// SelfPageFragment identifies the tool's own triage page inside a URL so
	// captures of it are skipped.
	SelfPageFragment string `json:"self_page_fragment"`

	// ClassifierBin is the LLM CLI binary invoked for summarize/cluster calls.
	ClassifierBin string `json:"classifier_bin"`

	// ClassifierTimeoutSecs bounds one summarize/cluster/analyze invocation.
	ClassifierTimeoutSecs int `json:"classifier_timeout_secs"`

	// TitleOnlyTimeoutSecs bounds a title-only summarize fallback invocation.
	TitleOnlyTimeoutSecs int `json:"title_only_timeout_secs"`

	// ExtractTimeoutSecs bounds one server-side content fetch.
	ExtractTimeoutSecs int `json:"extract_timeout_secs"`

	// ReExtractFallbackSecs is how long the extension gets to deliver content
	// before the server-side extractor takes over.
	ReExtractFallbackSecs int `json:"re_extract_fallback_secs"`

	// ReExtractStaleSecs is the TTL of an unclaimed pending re-extract entry.
	ReExtractStaleSecs int `json:"re_extract_stale_secs"`

	// UndoTTLSecs is how long an auto-triage batch stays reversible.
	UndoTTLSecs int `json:"undo_ttl_secs"`

	// Notion database ids for the forwarding targets.
	NotionLinksDB   string `json:"notion_links_db,omitempty"`
	NotionBacklogDB string `json:"notion_backlog_db,omitempty"`
	NotionTasksDB   string `json:"notion_tasks_db,omitempty"`

	// NotionAPIKey is read from the NOTION_API_KEY environment variable
	// (optionally via baseDir/.env), never from config.json.
	NotionAPIKey string `json:"-"`

	// DBMaxOpenConns limits open database connections. If set to 1, all
	// database access is serialized. 0 means the sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections. 0 means default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:                  "127.0.0.1",
		Port:                  5111,
		MaxContentChars:       50000,
		SelfPageFragment:      "TabTriage/index.html",
		ClassifierBin:         "claude",
		ClassifierTimeoutSecs: 300,
		TitleOnlyTimeoutSecs:  120,
		ExtractTimeoutSecs:    15,
		ReExtractFallbackSecs: 15,
		ReExtractStaleSecs:    60,
		UndoTTLSecs:           300,
	}
}

// Load loads configuration from baseDir/config.json, merged over defaults.
// A missing file yields the defaults. Secrets are picked up from the process
// environment, after loading baseDir/.env if present.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tabtriage.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load(filepath.Join(baseDir, ".env"))
	cfg.NotionAPIKey = os.Getenv("NOTION_API_KEY")

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
func loadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs. Overlay values take precedence
// for non-zero scalars; arrays are taken from the overlay when present.
func Merge(base, overlay *Config) *Config {
	result := *overlay

	if result.Host == "" {
		result.Host = base.Host
	}
	if result.Port == 0 {
		result.Port = base.Port
	}
	if result.MaxContentChars == 0 {
		result.MaxContentChars = base.MaxContentChars
	}
	if result.SelfPageFragment == "" {
		result.SelfPageFragment = base.SelfPageFragment
	}
	if result.ClassifierBin == "" {
		result.ClassifierBin = base.ClassifierBin
	}
	if result.ClassifierTimeoutSecs == 0 {
		result.ClassifierTimeoutSecs = base.ClassifierTimeoutSecs
	}
	if result.TitleOnlyTimeoutSecs == 0 {
		result.TitleOnlyTimeoutSecs = base.TitleOnlyTimeoutSecs
	}
	if result.ExtractTimeoutSecs == 0 {
		result.ExtractTimeoutSecs = base.ExtractTimeoutSecs
	}
	if result.ReExtractFallbackSecs == 0 {
		result.ReExtractFallbackSecs = base.ReExtractFallbackSecs
	}
	if result.ReExtractStaleSecs == 0 {
		result.ReExtractStaleSecs = base.ReExtractStaleSecs
	}
	if result.UndoTTLSecs == 0 {
		result.UndoTTLSecs = base.UndoTTLSecs
	}
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}
	if len(result.DisabledTools) == 0 {
		result.DisabledTools = base.DisabledTools
	}

	return &result
}
