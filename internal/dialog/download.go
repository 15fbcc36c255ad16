package dialog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

var exportWords = []string{"Export", "Download"}

// DownloadName is the file name a download is stored under: value when
// given, otherwise target with a .csv extension.
func DownloadName(target, value string) string {
	name := strings.TrimSpace(value)
	if name == "" {
		name = strings.TrimSpace(target)
		if name == "" {
			name = "export"
		}
		name = strings.Join(strings.Fields(name), "_") + ".csv"
	}
	return filepath.Base(name)
}

// FindDownloadTrigger returns the export control named target, or any
// Export/Download button. Controls that also read import or upload are
// skipped; enabled controls are preferred.
func (t *Tracker) FindDownloadTrigger(ctx context.Context, page dom.Page, target string) (dom.Element, error) {
	candidates, err := dom.CollectVisible(ctx, page, triggerXPath)
	if err != nil {
		return nil, err
	}
	candidates = dom.Filter(candidates, func(n dom.Node) bool {
		return !dom.ContainsAnyFold(n.Snap.Text, "import", "upload")
	})

	var matched []dom.Node
	if target != "" {
		matched = dom.Filter(candidates, func(n dom.Node) bool { return dom.ContainsFold(n.Snap.Text, target) })
	}
	if len(matched) == 0 {
		matched = dom.Filter(candidates, func(n dom.Node) bool {
			return n.Snap.Tag == "button" && dom.ContainsAnyFold(n.Snap.Text, exportWords...)
		})
	}
	if len(matched) == 0 {
		return nil, failure.NotFound("dialog.download", "No Export button")
	}
	for _, n := range matched {
		if !n.Snap.Disabled {
			return n.El, nil
		}
	}
	return matched[0].El, nil
}

// Download clicks the export trigger and stores the resulting file as
// dir/name. It returns the stored path.
func (t *Tracker) Download(ctx context.Context, page dom.Page, target, dir, name string) (string, error) {
	el, err := t.FindDownloadTrigger(ctx, page, target)
	if err != nil {
		return "", err
	}
	t.log.Info("downloading", zap.String("target", target), zap.String("file", name))
	path, err := page.Download(ctx, el, dir, name, t.timing.DownloadTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", failure.Timeout("dialog.download", "no download within %s", t.timing.DownloadTimeout)
		}
		return "", err
	}
	return path, nil
}
