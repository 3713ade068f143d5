// Package render turns generated HTML into PDF through a headless browser.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/JustJay7/case-archive/pkg/logger"
)

// ErrDisabled is returned when PDF rendering is switched off.
var ErrDisabled = errors.New("pdf rendering is disabled")

// PDFRenderer converts an HTML document to PDF bytes.
type PDFRenderer interface {
	PDF(ctx context.Context, html string) ([]byte, error)
	Close() error
}

type Config struct {
	BrowserPath string
	Debug       bool
}

// Browser renders with a single lazily launched headless Chromium. Each call
// gets its own page.
type Browser struct {
	cfg     Config
	logger  *logger.Logger
	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowser(cfg Config, log *logger.Logger) *Browser {
	return &Browser{cfg: cfg, logger: log}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Delete("enable-automation")

	if b.cfg.BrowserPath != "" {
		l = l.Bin(b.cfg.BrowserPath)
	}
	if b.cfg.Debug {
		l = l.Devtools(true)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.logger.Info("Headless browser started", "control_url", u)
	b.browser = browser
	return browser, nil
}

// PDF loads html into a fresh page and prints it on A4 paper.
func (b *Browser) PDF(ctx context.Context, html string) ([]byte, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Warn("Failed to close page", "error", err)
		}
	}()

	page = page.Context(ctx)
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		b.logger.Warn("Page load wait failed", "error", err)
	}

	width, height := 8.27, 11.69
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      &width,
		PaperHeight:     &height,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	b.logger.Debug("PDF rendered", "bytes", len(data))
	return data, nil
}

// Close shuts the browser down if it was started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// Disabled is used when PDF_RENDER_ENABLED is false.
type Disabled struct{}

func (Disabled) PDF(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

func (Disabled) Close() error { return nil }
