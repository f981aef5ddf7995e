package capture

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Default viewport for schedule previews.
const (
	DefaultWidth      = 1024
	DefaultHeight     = 1400
	DefaultTimeoutSec = 30
)

// Options defines one page screenshot.
type Options struct {
	// URL to capture, e.g. "file:///srv/schedlist/html/cs/index.html".
	URL string

	// OutputPath receives the PNG.
	OutputPath string

	// Width and Height are the viewport in pixels; zero means the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture; zero means DefaultTimeoutSec.
	Timeout time.Duration
}

// Capturer renders a page to PNG.
type Capturer interface {
	Capture(ctx context.Context, opts Options) error
}

// Chromium captures pages with a headless Chromium driven by chromedp.
// Zero dimensions in a call fall back to Width and Height.
type Chromium struct {
	Width   int
	Height  int
	Timeout time.Duration
}

// Capture implements Capturer.
func (c Chromium) Capture(ctx context.Context, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = c.Width
	}
	if opts.Height <= 0 {
		opts.Height = c.Height
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.Timeout
	}
	return CapturePagePNG(ctx, opts)
}

// FileURL turns a local path into a file:// URL Chromium can navigate to.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// CapturePagePNG starts a headless Chromium via chromedp, loads opts.URL,
// waits for the body to be visible and writes a full-page PNG screenshot.
// Generated pages are static, so no ready marker is required.
func CapturePagePNG(parentCtx context.Context, opts Options) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx,
		append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("allow-file-access-from-files", true))...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	return nil
}
