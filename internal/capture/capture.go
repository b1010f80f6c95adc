// Package capture screenshots the server-rendered day view with a
// headless Chromium via chromedp, producing the PNG preview.
package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultWidth      = 984
	DefaultHeight     = 1440
	DefaultTimeoutSec = 30
)

// Options defines parameters for a day-view screenshot.
type Options struct {
	// URL of the day view, e.g. "http://127.0.0.1:8080/day?date=2026-08-30".
	URL string

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. Zero means
	// the defaults, which should match the configured canvas.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// DayViewPNG navigates to opts.URL, waits until the page marks itself
// rendered with data-ready="true", and writes a PNG screenshot of the
// laid-out day to opts.OutputPath.
func DayViewPNG(parentCtx context.Context, opts Options) error {
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

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(200 * time.Millisecond),
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
