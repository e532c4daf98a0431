// Package webfetch implements orchestration.DownloadCollaborator: fetching a
// URL's page body and reducing it to plain text for summarization.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxBodyBytes bounds how much of a page is read, so one oversized page
// never stalls the enrichment pipeline.
const maxBodyBytes = 2 << 20 // 2 MiB

// Client fetches pages over plain HTTP and extracts their visible text.
type Client struct {
	http *http.Client
}

// New builds a Client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Fetch downloads url and returns its extracted visible text.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %q: %w", url, err)
	}
	req.Header.Set("User-Agent", "queryweave-orchestrator/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %q: status %d", url, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxBodyBytes)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		return extractText(limited)
	}

	body, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read body of %q: %w", url, err)
	}
	return string(body), nil
}

// extractText walks an HTML document and concatenates the text nodes found
// outside <script>/<style>, so downstream summarization sees prose instead
// of markup.
func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String()), nil
}
