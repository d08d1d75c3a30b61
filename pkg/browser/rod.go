package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Config holds browser launch settings
type Config struct {
	Headless bool
	Bin      string // chrome binary, auto-detected when empty
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Rod implements Browser with go-rod over the Chrome DevTools Protocol
type Rod struct {
	config   Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	mu       sync.Mutex
}

// NewRod creates an unlaunched browser
func NewRod(cfg Config) *Rod {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Rod{config: cfg}
}

// Running reports whether a browser is connected
func (r *Rod) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page != nil
}

// Launch starts chrome and opens a blank page. Launching twice is a no-op.
func (r *Rod) Launch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.page != nil {
		return nil
	}

	l := launcher.New().Context(ctx).Headless(r.config.Headless)
	if r.config.Bin != "" {
		l = l.Bin(r.config.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return &Error{Code: ErrCodeLaunch, Message: fmt.Sprintf("failed to launch chrome: %v", err)}
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return &Error{Code: ErrCodeLaunch, Message: fmt.Sprintf("failed to connect to chrome: %v", err)}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		l.Kill()
		return &Error{Code: ErrCodeLaunch, Message: fmt.Sprintf("failed to open page: %v", err)}
	}

	r.launcher = l
	r.browser = b
	r.page = page

	r.config.Logger.Info().Bool("headless", r.config.Headless).Msg("Browser launched")
	return nil
}

// Navigate loads rawURL and waits for the load event
func (r *Rod) Navigate(ctx context.Context, rawURL string) (PageInfo, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return PageInfo{}, err
	}

	page, err := r.current(ctx)
	if err != nil {
		return PageInfo{}, err
	}

	if err := page.Navigate(target); err != nil {
		return PageInfo{}, &Error{Code: ErrCodeNavigation, Message: fmt.Sprintf("failed to navigate to %s: %v", target, err)}
	}
	if err := page.WaitLoad(); err != nil {
		return PageInfo{}, &Error{Code: ErrCodeNavigation, Message: fmt.Sprintf("page load failed: %v", err)}
	}

	info, err := page.Info()
	if err != nil {
		return PageInfo{URL: target}, nil
	}
	return PageInfo{URL: info.URL, Title: info.Title}, nil
}

// Click clicks the first element matching selector
func (r *Rod) Click(ctx context.Context, selector string) error {
	elem, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &Error{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("failed to click %s: %v", selector, err)}
	}
	return nil
}

// Type enters text into the first element matching selector
func (r *Rod) Type(ctx context.Context, selector, text string) error {
	elem, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := elem.Input(text); err != nil {
		return &Error{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("failed to type into %s: %v", selector, err)}
	}
	return nil
}

// ExtractText returns the visible text of the page, or of selector when given
func (r *Rod) ExtractText(ctx context.Context, selector string) (string, error) {
	if selector != "" {
		elem, err := r.element(ctx, selector)
		if err != nil {
			return "", err
		}
		text, err := elem.Text()
		if err != nil {
			return "", &Error{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("failed to read %s: %v", selector, err)}
		}
		return text, nil
	}

	page, err := r.current(ctx)
	if err != nil {
		return "", err
	}
	res, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", &Error{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("failed to extract text: %v", err)}
	}
	return res.Value.String(), nil
}

// Screenshot captures the viewport as PNG
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, &Error{Code: ErrCodeScreenshot, Message: fmt.Sprintf("failed to capture screenshot: %v", err)}
	}
	return data, nil
}

// Close shuts the browser down and kills the chrome process
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}

	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
	}
	r.browser = nil
	r.page = nil
	r.launcher = nil

	r.config.Logger.Info().Msg("Browser closed")
	return err
}

func (r *Rod) current(ctx context.Context) (*rod.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.page == nil {
		return nil, &Error{Code: ErrCodeNotLaunched, Message: "browser is not running, use /browse first"}
	}
	return r.page.Context(ctx).Timeout(r.config.Timeout), nil
}

func (r *Rod) element(ctx context.Context, selector string) (*rod.Element, error) {
	if selector == "" {
		return nil, &Error{Code: ErrCodeValidation, Message: "selector is required"}
	}
	page, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	elem, err := page.Element(selector)
	if err != nil {
		return nil, &Error{Code: ErrCodeElementNotFound, Message: fmt.Sprintf("element not found: %s", selector)}
	}
	return elem, nil
}
