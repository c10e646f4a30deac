package page

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
)

// IsURL reports whether arg names an http(s) page rather than a file.
func IsURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// Load parses a rendered page from a file path or an http(s) URL.
func Load(ctx context.Context, arg string, hc *http.Client) (*dom.Document, error) {
	if !IsURL(arg) {
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		defer f.Close()
		return dom.Parse(f)
	}

	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arg, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: %s returned %s", arg, resp.Status)
	}
	logging.PageDebug("fetched %s (%s)", arg, resp.Header.Get("Content-Type"))
	return dom.Parse(resp.Body)
}
