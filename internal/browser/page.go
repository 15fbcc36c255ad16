package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Page adapts a rod page to dom.Page.
type Page struct {
	page    *rod.Page
	browser *rod.Browser
	nav     time.Duration
	log     *zap.Logger
}

var _ dom.Page = (*Page)(nil)

// NewPage wraps page. browser is needed for downloads only.
func NewPage(page *rod.Page, browser *rod.Browser, log *zap.Logger) *Page {
	if log == nil {
		log = zap.NewNop()
	}
	return &Page{page: page, browser: browser, nav: 15 * time.Second, log: log.Named("browser")}
}

// sessionMarkers are error texts meaning the tab or connection is gone.
var sessionMarkers = []string{
	"websocket",
	"use of closed network connection",
	"target closed",
	"session closed",
	"no target with given id",
	"connection reset",
	"broken pipe",
}

// classify promotes connection-level failures to failure.ErrSession so the
// run stops instead of failing every remaining step the same way.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range sessionMarkers {
		if strings.Contains(msg, m) {
			return failure.Session(op, err)
		}
	}
	return err
}

func (p *Page) Find(ctx context.Context, xpath string) ([]dom.Element, error) {
	els, err := p.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, classify("browser.find", err)
	}
	return wrapAll(els), nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.nav)
	if err := pg.Navigate(url); err != nil {
		return classify("browser.navigate", err)
	}
	return classify("browser.navigate", pg.WaitLoad())
}

func (p *Page) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx).Timeout(p.nav)
	if err := pg.Reload(); err != nil {
		return classify("browser.reload", err)
	}
	return classify("browser.reload", pg.WaitLoad())
}

// WaitIdle waits for the network to go quiet. Running out of time is not
// an error; the page may simply never settle.
func (p *Page) WaitIdle(ctx context.Context, timeout time.Duration) error {
	err := p.page.Context(ctx).Timeout(timeout).WaitIdle(timeout)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		if serr := classify("browser.idle", err); failure.KindOf(serr) == failure.KindSession {
			return serr
		}
		p.log.Debug("wait idle", zap.Error(err))
	}
	return nil
}

func (p *Page) Press(ctx context.Context, key dom.Key) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return classify("browser.press", p.page.Context(ctx).Keyboard.Type(k))
}

func (p *Page) Type(ctx context.Context, text string) error {
	return classify("browser.type", p.page.Context(ctx).InsertText(text))
}

func (p *Page) Run(ctx context.Context, script dom.Script) error {
	js, ok := scripts[script]
	if !ok {
		return fmt.Errorf("unknown script %q", script)
	}
	_, err := p.page.Context(ctx).Eval(js)
	return classify("browser.script", err)
}

// AcceptDialogs answers every native alert, confirm and prompt with OK
// until stop is called.
func (p *Page) AcceptDialogs(ctx context.Context) (func(), error) {
	dctx, cancel := context.WithCancel(ctx)
	pg := p.page.Context(dctx)
	wait := pg.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		p.log.Info("accepting native dialog", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(pg)
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

// ChooseFile answers the file chooser trigger opens with path. A file
// input trigger gets its files set directly.
func (p *Page) ChooseFile(ctx context.Context, trigger dom.Element, path string) error {
	el, ok := trigger.(*Element)
	if !ok {
		return errors.New("browser: foreign element")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	snap, err := el.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Tag == "input" && snap.Type == "file" {
		return el.SetFiles(ctx, []string{path})
	}

	pg := p.page.Context(ctx)
	answer, err := pg.HandleFileDialog()
	if err != nil {
		return classify("browser.choose", err)
	}
	if err := el.Click(ctx); err != nil {
		if err := el.ClickJS(ctx); err != nil {
			return err
		}
	}
	return classify("browser.choose", answer([]string{path}))
}

// Download clicks trigger and waits for the browser to finish the file it
// starts. The browser names the file by its GUID; it is renamed to name.
func (p *Page) Download(ctx context.Context, trigger dom.Element, dir, name string, timeout time.Duration) (string, error) {
	if p.browser == nil {
		return "", errors.New("browser: downloads need the browser handle")
	}
	el, ok := trigger.(*Element)
	if !ok {
		return "", errors.New("browser: foreign element")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	listen := func(gctx context.Context) func() *proto.PageDownloadWillBegin {
		return p.browser.Context(gctx).WaitDownload(dir)
	}
	click := func(gctx context.Context) error {
		if err := el.Click(gctx); err != nil {
			return el.ClickJS(gctx)
		}
		return nil
	}
	info, err := awaitDownload(ctx, timeout, listen, click)
	if err != nil {
		return "", err
	}

	final := filepath.Join(dir, name)
	_ = os.Remove(final)
	if err := os.Rename(filepath.Join(dir, info.GUID), final); err != nil {
		return "", fmt.Errorf("store download %s: %w", info.SuggestedFilename, err)
	}
	p.log.Info("download stored", zap.String("suggested", info.SuggestedFilename), zap.String("path", final))
	return final, nil
}

// awaitDownload starts listening, then clicks. Both share one group context
// bounded by timeout, so a failed click stops the wait at once.
func awaitDownload(
	ctx context.Context,
	timeout time.Duration,
	listen func(context.Context) func() *proto.PageDownloadWillBegin,
	click func(context.Context) error,
) (*proto.PageDownloadWillBegin, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(dctx)
	wait := listen(gctx)

	var info *proto.PageDownloadWillBegin
	g.Go(func() error {
		info = wait()
		if info == nil || info.GUID == "" {
			if err := gctx.Err(); err != nil {
				return err
			}
			return failure.Timeout("browser.download", "no download within %s", timeout)
		}
		return nil
	})
	g.Go(func() error { return click(gctx) })

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, failure.Timeout("browser.download", "no download within %s", timeout)
		}
		return nil, classify("browser.download", err)
	}
	return info, nil
}

func keyFor(k dom.Key) (input.Key, error) {
	switch k {
	case dom.KeyEnter:
		return input.Enter, nil
	case dom.KeyTab:
		return input.Tab, nil
	case dom.KeyEscape:
		return input.Escape, nil
	default:
		return 0, fmt.Errorf("unsupported key %q", k)
	}
}
