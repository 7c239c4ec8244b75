// Package extract fetches a page server-side and pulls out readable text
// plus OpenGraph metadata. It backs the re-extract repair flow when the
// extension never delivered content for a tab.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes limits how much HTML is read from a page.
const maxBodyBytes = 5 * 1024 * 1024

// minTextChars is the threshold below which an extraction counts as empty.
const minTextChars = 50

// Result is the extracted content of one page.
type Result struct {
	Text          string
	OGImage       *string
	OGDescription *string
}

// Extractor fetches pages over HTTP.
type Extractor struct {
	client *http.Client
}

// New builds an Extractor with the given per-fetch timeout.
func New(timeout time.Duration) *Extractor {
	return &Extractor{client: &http.Client{Timeout: timeout}}
}

// Extract fetches a URL and extracts its readable text and OpenGraph
// metadata. It returns (nil, nil) when the page yields no usable text;
// errors are reserved for fetch and parse failures.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	// PDFs, JSON APIs and the like have no text worth walking. A missing
	// header is given the benefit of the doubt.
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) < 100 {
		return nil, nil
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	text := extractText(doc)
	if len(strings.TrimSpace(text)) < minTextChars {
		return nil, nil
	}

	r := &Result{Text: text}
	r.OGImage, r.OGDescription = extractOG(doc)
	return r, nil
}

// skipTags are non-content elements whose subtrees are ignored.
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true,
}

// extractText walks the document and collects readable text.
func extractText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)

	return strings.TrimSpace(strings.Join(strings.Fields(sb.String()), " "))
}

// extractOG finds og:image and og:description meta tags.
func extractOG(doc *html.Node) (image, description *string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "property", "name":
					property = a.Val
				case "content":
					content = a.Val
				}
			}
			if content != "" {
				switch property {
				case "og:image":
					if image == nil {
						image = &content
					}
				case "og:description", "description":
					if description == nil {
						description = &content
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return image, description
}
