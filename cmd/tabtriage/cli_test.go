package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

// runApp runs the CLI against a temp base dir and captures stdout.
func runApp(t *testing.T, baseDir string, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	app := newCLIApp()
	full := append([]string{"tabtriage", "--base-dir", baseDir}, args...)
	runErr := app.Run(full)

	w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestIgnoreRoundTrip(t *testing.T) {
	baseDir := t.TempDir()

	out, err := runApp(t, baseDir, "ignore", "add", "https://www.Ads.Example/banner")
	if err != nil {
		t.Fatalf("ignore add: %v", err)
	}
	var added struct {
		Status string `json:"status"`
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal([]byte(out), &added); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if added.Status != "added" || added.Domain != "ads.example" {
		t.Errorf("added = %+v", added)
	}

	out, err = runApp(t, baseDir, "ignore", "list")
	if err != nil {
		t.Fatalf("ignore list: %v", err)
	}
	if !strings.Contains(out, "ads.example") {
		t.Errorf("list output = %q", out)
	}

	if _, err := runApp(t, baseDir, "ignore", "remove", "ads.example"); err != nil {
		t.Fatalf("ignore remove: %v", err)
	}
	out, err = runApp(t, baseDir, "ignore", "list")
	if err != nil {
		t.Fatalf("ignore list: %v", err)
	}
	if strings.Contains(out, "ads.example") {
		t.Errorf("domain still listed: %q", out)
	}
}

func TestIgnoreAddRejectsBlank(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "ignore", "add", "   ")
	if err == nil {
		t.Fatal("expected an error for a blank domain")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("err = %v", err)
	}
}

func TestSessionsEmpty(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	var parsed struct {
		Sessions []any `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(parsed.Sessions) != 0 {
		t.Errorf("sessions = %v", parsed.Sessions)
	}
}

func TestSearchEmpty(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "search", "anything")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if parsed.Count != 0 {
		t.Errorf("count = %d", parsed.Count)
	}
}
