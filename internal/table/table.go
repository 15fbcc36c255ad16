// Package table selects data-grid rows and triggers per-row edit and clone
// actions.
package table

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/memory"
	"panelqa-runner/internal/wait"
)

const (
	rowsXPath           = ".//tbody/tr[td]"
	rowCheckboxXPath    = ".//input[@type='checkbox']"
	headerCheckboxXPath = ".//thead//input[@type='checkbox']"

	// MaxAllRows caps the row-by-row fallback of the "all" selector.
	MaxAllRows = 20
)

// Timings are the operator's wait windows.
type Timings struct {
	TableWait    time.Duration
	PollInterval time.Duration
	FilterSettle time.Duration
}

// Operator works on the data table of the current page.
type Operator struct {
	clock  wait.Clock
	timing Timings
	rng    *rand.Rand
	log    *zap.Logger
}

// New creates an operator. rng drives random row sampling; pass a seeded
// source for reproducible runs.
func New(clock wait.Clock, timing Timings, rng *rand.Rand, log *zap.Logger) *Operator {
	if log == nil {
		log = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Operator{clock: clock, timing: timing, rng: rng, log: log.Named("table")}
}

// Mode is a row selection strategy.
type Mode int

const (
	ModeLiteral Mode = iota
	ModeRandom
	ModeAll
)

func (m Mode) String() string {
	switch m {
	case ModeRandom:
		return "random"
	case ModeAll:
		return "all"
	default:
		return "literal"
	}
}

// Selector is a parsed row selection request.
type Selector struct {
	Mode Mode
	N    int
	Text string
}

var randomRe = regexp.MustCompile(`(?i)random\D*(\d+)`)

// ParseSelector reads "random_N", "all" or a literal row text. value
// carries the mode; target is the literal used when value names none.
func ParseSelector(value, target string) Selector {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "random"):
		n := 1
		if m := randomRe.FindStringSubmatch(v); m != nil {
			if parsed, err := strconv.Atoi(m[1]); err == nil && parsed > 0 {
				n = parsed
			}
		}
		return Selector{Mode: ModeRandom, N: n}
	case v == "all" || strings.HasPrefix(v, "all ") || strings.Contains(v, "select all"):
		return Selector{Mode: ModeAll}
	}
	text := strings.TrimSpace(target)
	if text == "" {
		text = strings.TrimSpace(value)
	}
	return Selector{Mode: ModeLiteral, Text: text}
}

// Selection reports what a selection achieved.
type Selection struct {
	Mode      Mode
	Requested int
	IDs       []string
	Attempts  int
	// HeaderToggle is set when "all" used the header checkbox.
	HeaderToggle bool
}

// Partial reports whether fewer rows than requested were selected.
func (s Selection) Partial() bool {
	return s.Mode == ModeRandom && len(s.IDs) < s.Requested
}

func (s Selection) String() string {
	switch s.Mode {
	case ModeAll:
		if s.HeaderToggle {
			return "Select All"
		}
		return fmt.Sprintf("Select All (%d rows individually)", len(s.IDs))
	case ModeRandom:
		if s.Partial() {
			return fmt.Sprintf("Selected %d/%d after %d attempts: %v", len(s.IDs), s.Requested, s.Attempts, s.IDs)
		}
		return fmt.Sprintf("Selected: %v", s.IDs)
	default:
		return fmt.Sprintf("Selected: %v", s.IDs)
	}
}

// WaitForRows polls until the table has at least one body row.
func (o *Operator) WaitForRows(ctx context.Context, scope dom.Scope) (bool, error) {
	return wait.Poll(ctx, o.clock, o.timing.TableWait, o.timing.PollInterval, func(ctx context.Context) (bool, error) {
		rows, err := scope.Find(ctx, ".//tbody/tr")
		return len(rows) > 0, err
	})
}

// Select checks rows according to sel and records every individually
// checked row's identifier in mem.
func (o *Operator) Select(ctx context.Context, page dom.Page, mem *memory.Memory, sel Selector) (Selection, error) {
	ok, err := o.WaitForRows(ctx, page)
	if err != nil {
		return Selection{}, err
	}
	if !ok {
		return Selection{}, failure.Timeout("table.select", "Table Empty")
	}
	rows, err := dom.Collect(ctx, page, rowsXPath)
	if err != nil {
		return Selection{}, err
	}
	o.log.Debug("table rows", zap.Int("rows", len(rows)), zap.String("mode", sel.Mode.String()))

	switch sel.Mode {
	case ModeRandom:
		return o.selectRandom(ctx, rows, mem, sel.N)
	case ModeAll:
		return o.selectAll(ctx, page, rows, mem)
	default:
		return o.selectLiteral(ctx, rows, mem, sel.Text)
	}
}

// selectRandom samples distinct rows until n are checked or 3n attempts
// are spent. A row that refuses the check is replaced by a fresh draw.
func (o *Operator) selectRandom(ctx context.Context, rows []dom.Node, mem *memory.Memory, n int) (Selection, error) {
	if n > len(rows) {
		n = len(rows)
	}
	sel := Selection{Mode: ModeRandom, Requested: n}
	order := o.rng.Perm(len(rows))
	budget := 3 * n
	for _, idx := range order {
		if len(sel.IDs) >= n || sel.Attempts >= budget {
			break
		}
		sel.Attempts++
		id, ok, err := o.checkRow(ctx, rows[idx], mem)
		if err != nil {
			return sel, err
		}
		if !ok {
			o.log.Info("row refused selection, drawing another", zap.Int("row", idx+1))
			continue
		}
		sel.IDs = append(sel.IDs, id)
	}
	if sel.Partial() {
		o.log.Warn("random selection incomplete", zap.Int("selected", len(sel.IDs)), zap.Int("requested", n))
	}
	return sel, nil
}

func (o *Operator) selectAll(ctx context.Context, page dom.Page, rows []dom.Node, mem *memory.Memory) (Selection, error) {
	sel := Selection{Mode: ModeAll}
	header, ok, err := dom.FirstVisible(ctx, page, headerCheckboxXPath)
	if err != nil {
		return sel, err
	}
	if ok {
		sel.Attempts = 1
		if _, err := dom.EnsureChecked(ctx, header.El); err != nil {
			return sel, fmt.Errorf("check header: %w", err)
		}
		sel.HeaderToggle = true
		return sel, o.clock.Sleep(ctx, 2*o.timing.PollInterval)
	}

	if len(rows) > MaxAllRows {
		rows = rows[:MaxAllRows]
	}
	sel.Requested = len(rows)
	for _, row := range rows {
		sel.Attempts++
		id, ok, err := o.checkRow(ctx, row, mem)
		if err != nil {
			return sel, err
		}
		if ok {
			sel.IDs = append(sel.IDs, id)
		}
	}
	return sel, nil
}

func (o *Operator) selectLiteral(ctx context.Context, rows []dom.Node, mem *memory.Memory, text string) (Selection, error) {
	sel := Selection{Mode: ModeLiteral, Requested: 1}
	for _, row := range rows {
		if !dom.ContainsFold(row.Snap.Text, text) {
			continue
		}
		sel.Attempts = 1
		id, ok, err := o.checkRow(ctx, row, mem)
		if err != nil {
			return sel, err
		}
		if !ok {
			return sel, failure.NotFound("table.select", "row %q has no checkable box", text)
		}
		sel.IDs = append(sel.IDs, id)
		return sel, nil
	}
	return sel, failure.NotFound("table.select", "Not found: %s", text)
}

// checkRow checks the row's first checkbox and records its identifier.
func (o *Operator) checkRow(ctx context.Context, row dom.Node, mem *memory.Memory) (string, bool, error) {
	boxes, err := row.El.Find(ctx, rowCheckboxXPath)
	if err != nil {
		return "", false, err
	}
	if len(boxes) == 0 {
		return "", false, nil
	}
	checked, err := dom.EnsureChecked(ctx, boxes[0])
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		o.log.Debug("check failed", zap.Error(err))
		return "", false, nil
	}
	if !checked {
		return "", false, nil
	}
	id, err := RowID(ctx, row.El)
	if err != nil {
		return "", false, err
	}
	mem.RecordSelection(id)
	return id, true, nil
}

// RowID is a row's identifying text: the second cell, or the third when
// the second is blank.
func RowID(ctx context.Context, row dom.Element) (string, error) {
	cells, err := dom.Collect(ctx, row, "./td")
	if err != nil {
		return "", err
	}
	for _, i := range []int{1, 2} {
		if i < len(cells) {
			if t := dom.NormalizeText(cells[i].Snap.Text); t != "" {
				return t, nil
			}
		}
	}
	return "", nil
}
