// Package browser is the browser capability behind the browse commands.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotLaunched     = "NOT_LAUNCHED"
	ErrCodeLaunch          = "LAUNCH_ERROR"
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeScriptExecution = "SCRIPT_EXECUTION_ERROR"
	ErrCodeScreenshot      = "SCREENSHOT_ERROR"
)

// Error is a browser failure with a stable code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PageInfo describes the page after navigation
type PageInfo struct {
	URL   string
	Title string
}

// Browser drives one page of one browser instance
type Browser interface {
	Launch(ctx context.Context) error
	Navigate(ctx context.Context, rawURL string) (PageInfo, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	ExtractText(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
	Running() bool
}

// NormalizeURL adds https:// to bare hosts and rejects non-web schemes
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &Error{Code: ErrCodeValidation, Message: "url is required"}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("invalid url %q", raw)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s:// urls are not allowed", u.Scheme)}
	}
	if u.Host == "" {
		return "", &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("invalid url %q", raw)}
	}
	return u.String(), nil
}

// SearchURL builds a search results URL for query using engine, a URL
// prefix the escaped query is appended to.
func SearchURL(engine, query string) string {
	if engine == "" {
		engine = DefaultSearchEngine
	}
	return engine + url.QueryEscape(strings.TrimSpace(query))
}

// DefaultSearchEngine is the HTML-only DuckDuckGo endpoint
const DefaultSearchEngine = "https://html.duckduckgo.com/html/?q="
