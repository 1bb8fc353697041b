package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	webFetchMaxBody = 100 * 1024
	webFetchTTL     = 15 * time.Minute
	webCacheSize    = 64
)

type cachedPage struct {
	body string
}

// NewWebFetchTool returns the web_fetch tool. Responses are cached for
// fifteen minutes so repeated fetches of the same URL within a run do
// not hit the network again.
func NewWebFetchTool() Tool {
	cache := expirable.NewLRU[string, cachedPage](webCacheSize, nil, webFetchTTL)
	client := &http.Client{Timeout: 30 * time.Second}

	return Tool{
		Name:        "web_fetch",
		Description: "Fetch the content of a URL over HTTP GET. Returns the response body as text, capped at 100KB. Results are cached briefly.",
		Parameters: objectSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The http or https URL to fetch."},
		}, "url"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			rawURL, _ := StringArg(args, "url")
			parsed, err := url.Parse(rawURL)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return "", fmt.Errorf("invalid URL: %q (must be http or https)", rawURL)
			}

			if page, ok := cache.Get(rawURL); ok {
				return "[cached]\n" + page.body, nil
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", "cc-agent/1.0")

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch %s: %w", rawURL, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBody))
			if err != nil {
				return "", fmt.Errorf("read %s: %w", rawURL, err)
			}

			text := strings.ToValidUTF8(string(body), "")
			cache.Add(rawURL, cachedPage{body: text})
			return text, nil
		},
	}
}
