package browser

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/dom"
)

const liveFixture = `<html><body>
<label for="name">Event Name</label><input id="name" type="text" data-field="event">
<select id="cur"><option>Gold</option><option>Gems</option></select>
<input type="checkbox" id="active">
<input type="file" id="upload">
<div style="display:none" id="hidden">secret</div>
</body></html>`

// TestLivePageAdapter drives the rod adapter against a real headless
// Chrome. It needs a Chrome binary and is skipped when SKIP_LIVE_TESTS is
// set or no browser can be launched.
func TestLivePageAdapter(t *testing.T) {
	if os.Getenv("SKIP_LIVE_TESTS") != "" {
		t.Skip("Skipping live browser tests (SKIP_LIVE_TESTS set)")
	}
	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		t.Skipf("chrome not available: %v", err)
	}
	defer l.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	manager := NewSessionManager(config.BrowserConfig{DebuggerURL: controlURL}, nil)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Shutdown(ctx)

	if _, err := manager.CreateSession(ctx, "data:text/html,"+url.PathEscape(liveFixture)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	page, err := manager.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	inputs, err := page.Find(ctx, ".//input[@id='name']")
	if err != nil || len(inputs) != 1 {
		t.Fatalf("find input: %v (%d matches)", err, len(inputs))
	}
	if err := inputs[0].Fill(ctx, "Spring Bash"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	snap, err := inputs[0].Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Tag != "input" || snap.Value != "Spring Bash" || !snap.Visible {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Attr("data-field") != "event" {
		t.Errorf("data attribute not captured: %v", snap.Attrs)
	}

	hidden, err := page.Find(ctx, ".//div[@id='hidden']")
	if err != nil || len(hidden) != 1 {
		t.Fatalf("find hidden: %v", err)
	}
	if hs, _ := hidden[0].Snapshot(ctx); hs.Visible {
		t.Error("display:none element reported visible")
	}

	sel, _ := page.Find(ctx, ".//select")
	if err := sel[0].SelectOption(ctx, "Gems"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s, _ := sel[0].Snapshot(ctx); s.Value != "Gems" {
		t.Errorf("select value = %q", s.Value)
	}

	box, _ := page.Find(ctx, ".//input[@id='active']")
	if ok, err := dom.EnsureChecked(ctx, box[0]); err != nil || !ok {
		t.Errorf("checkbox not checked: %v", err)
	}

	file := filepath.Join(t.TempDir(), "bags.csv")
	if err := os.WriteFile(file, []byte("ID\nGB1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	up, _ := page.Find(ctx, ".//input[@type='file']")
	if err := page.ChooseFile(ctx, up[0], file); err != nil {
		t.Errorf("choose file: %v", err)
	}

	if err := page.Run(ctx, dom.ScriptRemoveOverlays); err != nil {
		t.Errorf("remove overlays: %v", err)
	}
	if err := page.WaitIdle(ctx, time.Second); err != nil {
		t.Errorf("wait idle: %v", err)
	}
}
