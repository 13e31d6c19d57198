package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/fileserver"
	"github.com/codalotl/docxcompat/internal/fsutil"
)

// readyExpression is true once the editor shell and a rendering canvas exist and the loading
// mask is gone or hidden.
const readyExpression = `(() => {
	if (document.querySelectorAll(".documenteditor").length === 0) return false;
	if (document.querySelectorAll("canvas").length === 0) return false;
	const mask = document.querySelector(".asc-loadmask-body");
	return !mask || mask.style.display === "none";
})()`

var errNotReady = errors.New("document not ready")

// Options configures a Driver.
type Options struct {
	ServerURL   string
	FileBaseURL string
	Language    string

	Width  int
	Height int

	ReadyTimeout      time.Duration
	SettleDelay       time.Duration
	PollInterval      time.Duration
	ScreenshotTimeout time.Duration

	BrowserPath string
	ExtraArgs   []string
	Headless    bool

	Logger *zap.Logger
}

// Driver owns one browser process with a single tab. Captures run sequentially on that tab.
type Driver struct {
	opts Options
	log  *zap.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Launch starts the browser and opens a tab sized to the configured viewport.
func Launch(ctx context.Context, opts Options) (*Driver, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", opts.Width, opts.Height)
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.ScreenshotTimeout <= 0 {
		opts.ScreenshotTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.BrowserPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.BrowserPath))
	}
	allocOpts = append(allocOpts, flagOptions(opts.ExtraArgs)...)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithErrorf(log.Sugar().Errorf))
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	log.Debug("browser launched", zap.Int("width", opts.Width), zap.Int("height", opts.Height))
	return &Driver{
		opts:        opts,
		log:         log,
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Capture opens file in the viewer, waits for it to render and writes a viewport screenshot
// to dest. A readiness timeout is logged and the screenshot is taken anyway.
func (d *Driver) Capture(ctx context.Context, file, dest string) error {
	tabCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	fileURL := fileserver.FileURL(d.opts.FileBaseURL, file)
	target := ViewerURL(d.opts.ServerURL, fileURL, file, DocumentKey(file), d.opts.Language)
	d.log.Debug("navigating", zap.String("file", file), zap.String("url", target))

	if err := d.navigate(tabCtx, target); err != nil {
		return err
	}
	if err := d.waitReady(tabCtx); err != nil {
		if !errors.Is(err, errNotReady) {
			return err
		}
		d.log.Warn("could not detect document ready; capturing anyway",
			zap.String("file", file), zap.Duration("timeout", d.opts.ReadyTimeout))
	}
	if err := sleep(tabCtx, d.opts.SettleDelay); err != nil {
		return err
	}

	buf, err := d.screenshot(tabCtx)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(dest, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// navigate loads target and returns once the new document fires DOMContentLoaded. Slow
// subresources do not hold it up.
func (d *Driver) navigate(ctx context.Context, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.opts.ReadyTimeout)
	defer cancel()

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(navCtx, func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})

	err := chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(target).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return errors.New(errText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	select {
	case <-loaded:
		return nil
	case <-navCtx.Done():
		return fmt.Errorf("navigate: waiting for DOM content: %w", navCtx.Err())
	}
}

// waitReady evaluates readyExpression every poll interval until it holds or ReadyTimeout
// elapses. Each evaluation shares the poll deadline, so a page whose script thread hangs
// still times out. Evaluation errors are treated as not ready yet, since the page may still
// be swapping documents.
func (d *Driver) waitReady(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, d.opts.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		var ready bool
		err := chromedp.Run(pollCtx, chromedp.Evaluate(readyExpression, &ready))
		if err == nil && ready {
			return nil
		}
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errNotReady
		case <-ticker.C:
		}
	}
}

func (d *Driver) screenshot(ctx context.Context) ([]byte, error) {
	shotCtx, cancel := context.WithTimeout(ctx, d.opts.ScreenshotTimeout)
	defer cancel()
	var buf []byte
	err := chromedp.Run(shotCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{
				X:      0,
				Y:      0,
				Width:  float64(d.opts.Width),
				Height: float64(d.opts.Height),
				Scale:  1,
			}).
			Do(ctx)
		return err
	}))
	return buf, err
}

// Close shuts down the tab and the browser process.
func (d *Driver) Close() error {
	err := chromedp.Cancel(d.ctx)
	d.cancelTab()
	d.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// flagOptions turns "--name" and "--name=value" arguments into allocator flags.
func flagOptions(args []string) []chromedp.ExecAllocatorOption {
	var out []chromedp.ExecAllocatorOption
	for _, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if k, v, ok := strings.Cut(name, "="); ok {
			out = append(out, chromedp.Flag(k, v))
			continue
		}
		out = append(out, chromedp.Flag(name, true))
	}
	return out
}
