package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 10
	ddgSearchEndpoint    = "https://html.duckduckgo.com/html/"
	searchUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

type searchHit struct {
	Title   string
	URL     string
	Snippet string
}

// NewWebSearchTool returns the web_search tool, backed by DuckDuckGo's
// HTML endpoint. Results are cached the same way web_fetch pages are.
func NewWebSearchTool() Tool {
	return newWebSearchTool(ddgSearchEndpoint)
}

func newWebSearchTool(endpoint string) Tool {
	cache := expirable.NewLRU[string, string](webCacheSize, nil, webFetchTTL)
	client := &http.Client{Timeout: 30 * time.Second}

	return Tool{
		Name:        "web_search",
		Description: "Search the web for current information. Returns titles, URLs, and snippets for the top results.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query."},
			"count": map[string]any{"type": "integer", "description": "Number of results to return (1-10, default 5)."},
		}, "query"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := StringArg(args, "query")
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query cannot be empty")
			}
			count := defaultSearchResults
			if n, ok := IntArg(args, "count"); ok && n >= 1 {
				count = n
				if count > maxSearchResults {
					count = maxSearchResults
				}
			}

			cacheKey := fmt.Sprintf("%s:%d", query, count)
			if cached, ok := cache.Get(cacheKey); ok {
				return "[cached]\n" + cached, nil
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				endpoint+"?q="+url.QueryEscape(query), nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", searchUserAgent)

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("search %q: %w", query, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("search %q: HTTP %d", query, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBody))
			if err != nil {
				return "", fmt.Errorf("read search results: %w", err)
			}

			hits := extractSearchHits(string(body), count)
			out := formatSearchHits(query, hits)
			cache.Add(cacheKey, out)
			return out, nil
		},
	}
}

// extractSearchHits pulls result links and snippets out of the DDG HTML
// page. DDG wraps result URLs in a redirect carrying the real target in
// the uddg parameter.
func extractSearchHits(html string, count int) []searchHit {
	linkMatches := ddgLinkRe.FindAllStringSubmatch(html, count+5)
	snippetMatches := ddgSnippetRe.FindAllStringSubmatch(html, count+5)

	var hits []searchHit
	for i := 0; i < len(linkMatches) && i < count; i++ {
		rawURL := linkMatches[i][1]
		title := strings.TrimSpace(htmlTagRe.ReplaceAllString(linkMatches[i][2], ""))

		if strings.Contains(rawURL, "uddg=") {
			if u, err := url.QueryUnescape(rawURL); err == nil {
				if idx := strings.Index(u, "uddg="); idx != -1 {
					target := u[idx+5:]
					if amp := strings.Index(target, "&"); amp != -1 {
						target = target[:amp]
					}
					rawURL = target
				}
			}
		}

		snippet := ""
		if i < len(snippetMatches) {
			snippet = strings.TrimSpace(htmlTagRe.ReplaceAllString(snippetMatches[i][1], ""))
		}

		hits = append(hits, searchHit{Title: title, URL: rawURL, Snippet: snippet})
	}
	return hits
}

func formatSearchHits(query string, hits []searchHit) string {
	if len(hits) == 0 {
		return "No results found for: " + query
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", h.Snippet)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
