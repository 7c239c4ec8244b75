package classify

import (
	"fmt"
	"strings"

	"github.com/tabtriage/tabtriage/internal/tab"
)

const categoryLegend = `Categories:
- read-later: articles/videos worth reading or watching
- reference: documentation, tools, resources to look up later
- actionable: contains concrete tasks or something to act on
- archive: no longer relevant, already handled, or noise`

// difficultDomains maps domains that rarely yield extractable text to a hint
// for the title-only prompt.
var difficultDomains = map[string]string{
	"x.com":           "social media post (tweet/thread)",
	"twitter.com":     "social media post (tweet/thread)",
	"youtube.com":     "YouTube video",
	"youtu.be":        "YouTube video",
	"medium.com":      "Medium article (often paywalled)",
	"google.com":      "Google search result or Google service",
	"docs.google.com": "Google document",
	"linkedin.com":    "LinkedIn post or profile",
	"reddit.com":      "Reddit discussion",
	"github.com":      "GitHub repository or page",
}

func summarizePrompt(title, url, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze this browser tab and give a structured answer.

Title: %s
URL: %s

Content (excerpt):
%s

Answer EXACTLY in this format (no markdown formatting):
SUMMARY: [2-3 sentences on what the content covers and why it might matter]
CATEGORY: [exactly one of: read-later, reference, actionable, archive]
TAGS: [comma-separated topical tags, 3-6 of them, e.g.: AI, Law, Startup, Finance, Health, Tool, Tutorial, News]

%s

Tags should be topical and useful for filtering and search. Use established terms.`,
		title, url, content, categoryLegend)
	return b.String()
}

func titleOnlyPrompt(title, url string) string {
	domain := tab.NormalizeDomain(url)
	hint := ""
	for d, desc := range difficultDomains {
		if strings.Contains(domain, d) {
			hint = fmt.Sprintf("\nNote: this is a %s. The page yields no extractable text.", desc)
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Based on the title and URL alone, assess this browser tab.
No extracted page content is available. Use only the title and URL.

Title: %s
URL: %s%s

Answer EXACTLY in this format (no markdown formatting):
SUMMARY: [1-2 sentences: what the content likely covers, judging by title and URL]
CATEGORY: [exactly one of: read-later, reference, actionable, archive]
TAGS: [comma-separated topical tags, 2-4 of them]

%s`, title, url, hint, categoryLegend)
	return b.String()
}

// maxClusterProjects caps how many projects the clustering prompt lists.
const maxClusterProjects = 50

func clusterPrompt(tabs []ClusterInput, projects []Project) string {
	var b strings.Builder
	b.WriteString(`Analyze these browser tabs and group them by topic.
Assign them to matching projects where that makes sense.

TABS:
`)
	for _, t := range tabs {
		summary := ""
		if t.Summary != nil {
			summary = truncate(*t.Summary, 200)
		}
		fmt.Fprintf(&b, "- ID=%d: %q (%s) — %s", t.ID, t.Title, t.URL, summary)
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " [Tags: %s]", strings.Join(t.Tags, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nAVAILABLE PROJECTS (ID: name):\n")
	for i, p := range projects {
		if i >= maxClusterProjects {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", p.ID, p.Name)
	}

	b.WriteString(`
Create topical clusters and assign projects.
Answer ONLY as a JSON array (no other text):
[
  {"tab_id": 1, "cluster_id": "news", "cluster_label": "News & Current Events", "suggested_project_id": null},
  {"tab_id": 2, "cluster_id": "tools", "cluster_label": "AI Tools", "suggested_project_id": "abc-123"}
]

Rules:
- cluster_id: short slug (news, tools, finance, health, dev, learning, etc.)
- cluster_label: human-readable display name
- suggested_project_id: project id when fitting, otherwise null
- exactly one cluster per tab
- cluster aggressively: fewer clusters beat more`)
	return b.String()
}

// maxAnalyzeContentChars caps per-tab content in the analysis prompt.
const maxAnalyzeContentChars = 2000

func analyzePrompt(tabs []AnalyzeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this article collection. Produce a structured analysis.\n\nARTICLES (%d):\n", len(tabs))
	for _, t := range tabs {
		summary, content := "", ""
		if t.Summary != nil {
			summary = truncate(*t.Summary, 300)
		}
		if t.Content != nil {
			content = truncate(*t.Content, maxAnalyzeContentChars)
		}
		fmt.Fprintf(&b, "---\nTitle: %s\nURL: %s\nSummary: %s", t.Title, t.URL, summary)
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " [Tags: %s]", strings.Join(t.Tags, ", "))
		}
		fmt.Fprintf(&b, "\nContent: %s\n", content)
	}

	b.WriteString(`
Answer EXACTLY as JSON (no other text):
{
  "themes": ["main theme 1", "main theme 2", ...],
  "insights": ["insight 1", "insight 2", ...],
  "connections": ["connection/contradiction 1", ...],
  "recommendations": ["recommendation 1", ...],
  "summary": "One paragraph tying it all together."
}

Rules:
- 3-5 themes, 3-5 insights, 2-4 connections, 2-3 recommendations
- concrete and useful, no generic statements`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
