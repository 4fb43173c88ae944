package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// infoScript is evaluated once the scene has loaded.
// The page must provide a #scene element and a getInfo() function.
const infoScript = `({
	width: document.querySelector('#scene').offsetWidth,
	height: document.querySelector('#scene').offsetHeight,
	...getInfo(),
})`

// NewChromeFactory returns a factory of headless Chrome sessions for cfg.
// Each session owns its own browser process.
func NewChromeFactory(cfg Config) Factory {
	return func(name string) Session {
		return New(name, func(ctx context.Context) (Driver, error) {
			return startChrome(ctx, cfg)
		})
	}
}

type chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	info        *Info
}

// allocatorOptions turns pass-through flags like "--no-sandbox" or
// "--window-size=800,600" into allocator options.
func allocatorOptions(args []string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, arg := range args {
		name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func startChrome(ctx context.Context, cfg Config) (Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg.Args)...)
	bctx, cancel := chromedp.NewContext(allocCtx)
	c := &chrome{
		ctx:         bctx,
		cancel:      cancel,
		cancelAlloc: cancelAlloc,
	}

	var raw map[string]any
	err := chromedp.Run(bctx,
		chromedp.Navigate(cfg.Url),
		chromedp.Evaluate(infoScript, &raw))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load %s: %w", cfg.Url, err)
	}

	info, err := InfoFromMap(raw)
	if err != nil {
		c.Close()
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		c.Close()
		return nil, fmt.Errorf("load %s: scene has no size (%dx%d)", cfg.Url, info.Width, info.Height)
	}
	c.info = info

	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(info.Width), int64(info.Height), chromedp.EmulateScale(scale)),
	}
	if cfg.Alpha {
		actions = append(actions, emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{}))
	}
	if err := chromedp.Run(bctx, actions...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	return c, nil
}

func (c *chrome) Info() *Info {
	return c.info
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (c *chrome) Render(frame int) ([]byte, error) {
	var buf []byte
	clip := &page.Viewport{
		X:      0,
		Y:      0,
		Width:  float64(c.info.Width),
		Height: float64(c.info.Height),
		Scale:  1,
	}
	err := chromedp.Run(c.ctx,
		chromedp.Evaluate(fmt.Sprintf("seekToFrame(%d)", frame), nil, awaitPromise),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(clip).
				Do(ctx)
			return err
		}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down and releases the allocator.
func (c *chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.cancelAlloc()
	return err
}
