package classify

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// maxPromptContentChars caps how much extracted content goes into a
// summarize prompt.
const maxPromptContentChars = 30000

// minContentChars is the threshold below which content is treated as absent
// and the title-only fallback is used instead.
const minContentChars = 100

// CLI runs classification through an external LLM command, prompt on stdin,
// plain text on stdout.
type CLI struct {
	bin              string
	timeout          time.Duration
	titleOnlyTimeout time.Duration
	log              *zap.Logger

	// run is swapped out in tests.
	run func(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// NewCLI builds a CLI classifier from config.
func NewCLI(cfg *config.Config, log *zap.Logger) *CLI {
	c := &CLI{
		bin:              cfg.ClassifierBin,
		timeout:          time.Duration(cfg.ClassifierTimeoutSecs) * time.Second,
		titleOnlyTimeout: time.Duration(cfg.TitleOnlyTimeoutSecs) * time.Second,
		log:              log,
	}
	c.run = c.exec
	return c
}

// clipToRune caps s at n bytes without splitting a UTF-8 sequence.
func clipToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Summarize classifies one tab. Content shorter than minContentChars falls
// back to a title-only prompt; any CLI failure degrades to a placeholder
// result carrying the failure reason.
func (c *CLI) Summarize(ctx context.Context, title, url string, content *string) Result {
	if content == nil || len(strings.TrimSpace(*content)) < minContentChars {
		return c.summarizeFromTitle(ctx, title, url)
	}

	text := clipToRune(*content, maxPromptContentChars)

	out, err := c.run(ctx, summarizePrompt(title, url, text), c.timeout)
	if err != nil {
		reason := classifyExecErr(err)
		c.log.Error("summarize failed",
			zap.String("title", title),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return Result{
			Summary:           failurePlaceholder(reason, title),
			SuggestedCategory: tab.CategoryReadLater,
			Failure:           reason,
		}
	}
	return parseSummary(out, title)
}

// summarizeFromTitle handles tabs without usable content. Failures here mean
// neither content nor a title-based guess exists, so the fallback category is
// archive and the reason is no_content.
func (c *CLI) summarizeFromTitle(ctx context.Context, title, url string) Result {
	out, err := c.run(ctx, titleOnlyPrompt(title, url), c.titleOnlyTimeout)
	if err != nil {
		c.log.Error("title-only summarize failed",
			zap.String("title", title),
			zap.Error(err))
		return Result{
			Summary:           "No content extracted for: " + title,
			SuggestedCategory: tab.CategoryArchive,
			Failure:           tab.FailureNoContent,
		}
	}
	return parseSummary(out, title)
}

// Cluster groups tabs by topic and suggests project assignments.
// Assignments referencing unknown tab ids are dropped.
func (c *CLI) Cluster(ctx context.Context, tabs []ClusterInput, projects []Project) ([]Assignment, error) {
	if len(tabs) == 0 {
		return nil, nil
	}

	out, err := c.run(ctx, clusterPrompt(tabs, projects), c.timeout)
	if err != nil {
		c.log.Error("clustering failed", zap.Int("tabs", len(tabs)), zap.Error(err))
		return nil, err
	}

	known := make(map[int64]bool, len(tabs))
	for _, t := range tabs {
		known[t.ID] = true
	}
	return parseClusters(out, known)
}

// Analyze runs a cross-tab content analysis.
func (c *CLI) Analyze(ctx context.Context, tabs []AnalyzeInput) (*Analysis, error) {
	if len(tabs) == 0 {
		return nil, errors.New("no tabs to analyze")
	}

	out, err := c.run(ctx, analyzePrompt(tabs), c.timeout)
	if err != nil {
		c.log.Error("analysis failed", zap.Int("tabs", len(tabs)), zap.Error(err))
		return nil, err
	}
	return parseAnalysis(out)
}

// exec invokes the classifier binary with the prompt on stdin.
func (c *CLI) exec(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, "-p", "--output-format", "text")
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = cleanEnv()

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", context.DeadlineExceeded
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// cleanEnv builds the subprocess environment. CLAUDECODE* is stripped
// because a nested session confuses the CLI; the config dir variables stay
// since the CLI needs them for auth. PATH is pinned.
func cleanEnv() []string {
	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "CLAUDECODE") || strings.HasPrefix(kv, "PATH=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
}

// classifyExecErr maps an exec failure to a failure reason.
func classifyExecErr(err error) tab.FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return tab.FailureTimeout
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return tab.FailureCLIMissing
	default:
		return tab.FailureCLIError
	}
}

// failurePlaceholder is the summary text stored for a failed classification.
func failurePlaceholder(reason tab.FailureReason, title string) string {
	switch reason {
	case tab.FailureCLIMissing:
		return "Summary unavailable (classifier CLI not found)"
	case tab.FailureTimeout:
		return "Summary unavailable (timeout): " + title
	default:
		return "Summary unavailable (CLI error): " + title
	}
}
