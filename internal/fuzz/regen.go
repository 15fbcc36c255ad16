package fuzz

import (
	"strconv"
	"strings"
	"time"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
)

const autoTag = "Auto_"

// NewID builds a regenerated identifier: prefix, the Auto_ tag and the unix
// time. A prefix that already ends with the tag is not doubled.
func NewID(prefix string, now time.Time) string {
	if !strings.HasSuffix(prefix, autoTag) {
		prefix += autoTag
	}
	return prefix + strconv.FormatInt(now.Unix(), 10)
}

// Regenerate returns a one-row document holding a fresh, valid copy of the
// template row. Id and key columns get new identifiers unless they look
// like foreign keys, and the gated columns are cleared when the gating
// column is switched off.
func Regenerate(doc *csvdoc.Document, heur config.HeuristicsConfig, now time.Time) *csvdoc.Document {
	var row csvdoc.Row
	if len(doc.Rows) > 0 {
		row = doc.Rows[0].Clone()
	} else {
		row = make(csvdoc.Row, len(doc.Headers))
		for _, h := range doc.Headers {
			row[h] = "Auto_Data"
		}
	}

	for _, col := range doc.Headers {
		if heur.IsForeignKey(col) {
			continue
		}
		lower := strings.ToLower(col)
		if !strings.Contains(lower, "id") && !strings.Contains(lower, "key") {
			continue
		}
		if strings.TrimSpace(row[col]) == "" {
			continue
		}
		row[col] = NewID(heur.Prefix(col), now)
	}

	if gate, ok := doc.Column(heur.GatingColumn); ok && heur.GatingColumn != "" && switchedOff(row[gate]) {
		for _, dep := range heur.GatedColumns {
			if h, ok := doc.Column(dep); ok {
				row[h] = ""
			}
		}
	}

	out := csvdoc.New(doc.Headers...)
	out.Rows = []csvdoc.Row{row}
	return out
}

func switchedOff(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no":
		return true
	}
	return false
}
