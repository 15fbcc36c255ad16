// Package resolver maps semantic hints (label text, column header, id or
// class fragments, placeholders) to concrete interactive elements.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

// Affinity is the widget family a hint expects.
type Affinity int

const (
	AffinityAny Affinity = iota
	AffinityText
	AffinitySelect
	AffinityRadio
	AffinityTableCell
)

// Hint describes the field a caller is looking for.
type Hint struct {
	Raw      string
	Synonyms []string
	Affinity Affinity
	// Value is the value about to be written. Long identifier-like values
	// rule out radio and checkbox candidates.
	Value  string
	Strict bool
}

// Terms returns Raw followed by its synonyms, deduplicated.
func (h Hint) Terms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append([]string{h.Raw}, h.Synonyms...) {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategyExactID       Strategy = "exact-id"
	StrategyTableHeader   Strategy = "table-header"
	StrategyClassFragment Strategy = "class-fragment"
	StrategyLabel         Strategy = "label-proximity"
	StrategyAttribute     Strategy = "attribute"
	StrategyBlind         Strategy = "blind"
)

// Match is a resolved element.
type Match struct {
	dom.Node
	Strategy Strategy
	Term     string
}

// InTable reports whether the match came from a table column.
func (m Match) InTable() bool { return m.Strategy == StrategyTableHeader }

// Options carries the admin-panel lookup tables.
type Options struct {
	Synonyms     map[string][]string
	IDAliases    map[string]string
	QuantityKeys []string
}

// Resolver runs the field and clickable strategies.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

// New creates a resolver.
func New(opts Options, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{opts: opts, log: log.Named("resolver")}
}

var noiseWords = []string{"toggle", "input", "select", "edit", "tick", "check"}

// CleanKey strips widget words a planner tends to add to field names,
// e.g. "Active Toggle" becomes "Active".
func CleanKey(key string) string {
	var kept []string
	for _, w := range strings.Fields(key) {
		noise := false
		for _, n := range noiseWords {
			if strings.EqualFold(w, n) {
				noise = true
				break
			}
		}
		if !noise {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(key)
	}
	return strings.Join(kept, " ")
}

// HintFor builds a hint for a field-map entry.
func (r *Resolver) HintFor(key, value string, strict bool) Hint {
	cleaned := CleanKey(key)
	h := Hint{Raw: cleaned, Value: value, Strict: strict}
	if syn, ok := r.opts.Synonyms[strings.ToLower(cleaned)]; ok {
		h.Synonyms = append(h.Synonyms, syn...)
	}
	if cleaned != key {
		h.Synonyms = append(h.Synonyms, key)
	}
	return h
}

// Resolve finds the element for hint inside scope. Strategies run in order
// and each one tries every term before the next strategy; the first usable
// match wins. A miss is a failure.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, scope dom.Scope, hint Hint) (Match, error) {
	if alias, ok := r.opts.IDAliases[strings.ToLower(hint.Raw)]; ok {
		if m, ok, err := r.byID(ctx, scope, alias, hint); err != nil {
			return Match{}, err
		} else if ok {
			return m, nil
		}
	}

	type strategyFunc func(context.Context, dom.Scope, string, Hint) (Match, bool, error)
	strategies := []strategyFunc{r.byID, r.byTableHeader, r.byClassFragment, r.byLabel, r.byAttribute}

	terms := hint.Terms()
	for _, strategy := range strategies {
		for _, term := range terms {
			m, ok, err := strategy(ctx, scope, term, hint)
			if err != nil {
				return Match{}, err
			}
			if ok {
				r.log.Debug("field resolved",
					zap.String("field", hint.Raw),
					zap.String("term", term),
					zap.String("strategy", string(m.Strategy)))
				return m, nil
			}
		}
	}

	if !hint.Strict && r.quantityLike(hint.Raw) {
		m, ok, err := r.blind(ctx, scope, hint)
		if err != nil {
			return Match{}, err
		}
		if ok {
			r.log.Debug("field resolved by blind heuristic", zap.String("field", hint.Raw))
			return m, nil
		}
	}

	return Match{}, failure.NotFound("resolver.resolve", "field %q", hint.Raw)
}

func (r *Resolver) quantityLike(key string) bool {
	k := strings.ToLower(key)
	for _, q := range r.opts.QuantityKeys {
		if strings.Contains(k, strings.ToLower(q)) {
			return true
		}
	}
	return false
}

// usable accepts visible elements plus the hidden inputs behind styled
// widgets: select2's hidden <select> and CSS toggle checkboxes.
func usable(s dom.Snapshot) bool {
	if s.Visible {
		return true
	}
	class := strings.ToLower(s.Class)
	if dom.IsNativeSelect(s) && strings.Contains(class, "select2") {
		return true
	}
	return s.Type == "checkbox" && (strings.Contains(class, "tgl") || strings.Contains(class, "toggle"))
}

// allowedFor applies the value-shape rules: radios are skipped for long
// identifier-like values, checkboxes for anything that is not boolean.
func allowedFor(s dom.Snapshot, hint Hint) bool {
	switch s.Type {
	case "radio":
		if strings.Contains(strings.ToLower(hint.Raw), "value") {
			return false
		}
		return !identifierLike(hint.Value)
	case "checkbox":
		return hint.Value == "" || dom.IsBooleanWord(hint.Value)
	}
	return true
}

func identifierLike(v string) bool {
	v = strings.TrimSpace(v)
	return len(v) > 15 && !strings.Contains(v, " ")
}

const fieldXPath = ".//input[not(@type='hidden')] | .//select | .//textarea"

func (r *Resolver) byID(ctx context.Context, scope dom.Scope, term string, hint Hint) (Match, bool, error) {
	if strings.ContainsAny(term, " \t") {
		return Match{}, false, nil
	}
	ids := []string{term}
	if lower := strings.ToLower(term); lower != term {
		ids = append(ids, lower)
	}
	for _, id := range ids {
		xp := fmt.Sprintf(".//*[@id=%s][self::input or self::select or self::textarea]", dom.Literal(id))
		nodes, err := dom.Collect(ctx, scope, xp)
		if err != nil {
			return Match{}, false, err
		}
		for i := len(nodes) - 1; i >= 0; i-- {
			if usable(nodes[i].Snap) && allowedFor(nodes[i].Snap, hint) {
				return Match{Node: nodes[i], Strategy: StrategyExactID, Term: term}, true, nil
			}
		}
	}
	return Match{}, false, nil
}

func (r *Resolver) byTableHeader(ctx context.Context, scope dom.Scope, term string, hint Hint) (Match, bool, error) {
	headers, err := dom.Collect(ctx, scope, ".//thead//th")
	if err != nil || len(headers) == 0 {
		return Match{}, false, err
	}
	col := -1
	for i, h := range headers {
		if h.Snap.Visible && dom.ContainsFold(h.Snap.Text, term) {
			col = i
			break
		}
	}
	if col < 0 {
		return Match{}, false, nil
	}
	row, ok, err := dom.LastVisible(ctx, scope, ".//tbody/tr")
	if err != nil || !ok {
		return Match{}, false, err
	}
	cells, err := row.El.Find(ctx, "./td")
	if err != nil || col >= len(cells) {
		return Match{}, false, err
	}
	inputs, err := dom.Collect(ctx, cells[col], fieldXPath)
	if err != nil {
		return Match{}, false, err
	}
	for _, in := range inputs {
		if usable(in.Snap) {
			return Match{Node: in, Strategy: StrategyTableHeader, Term: term}, true, nil
		}
	}
	return Match{}, false, nil
}

func (r *Resolver) byClassFragment(ctx context.Context, scope dom.Scope, term string, hint Hint) (Match, bool, error) {
	if strings.ContainsAny(term, " \t") {
		return Match{}, false, nil
	}
	frag := dom.ClassContains(strings.ToLower(term))
	xp := fmt.Sprintf(".//input[%s] | .//select[%s] | .//textarea[%s]", frag, frag, frag)
	nodes, err := dom.Collect(ctx, scope, xp)
	if err != nil {
		return Match{}, false, err
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Snap.Visible && nodes[i].Snap.Type != "hidden" && allowedFor(nodes[i].Snap, hint) {
			return Match{Node: nodes[i], Strategy: StrategyClassFragment, Term: term}, true, nil
		}
	}
	return Match{}, false, nil
}

const labelXPath = ".//label | .//h4 | .//h5 | .//strong | .//span[not(contains(@class, 'select2'))]"

const followingXPath = "following::input[not(@type='hidden')] | following::select | following::textarea"

const groupXPath = "ancestor::*[contains(@class, 'control-group') or contains(@class, 'form-group')][1]"

func (r *Resolver) byLabel(ctx context.Context, scope dom.Scope, term string, hint Hint) (Match, bool, error) {
	labels, err := dom.CollectVisible(ctx, scope, labelXPath)
	if err != nil {
		return Match{}, false, err
	}
	re := dom.LooseMatcher(term)
	var exact, partial []dom.Node
	for _, l := range labels {
		text := dom.FirstLine(l.Snap.Text)
		switch {
		case dom.EqualFold(strings.TrimSuffix(text, ":"), term), dom.EqualFold(strings.TrimSuffix(text, "*"), term):
			exact = append(exact, l)
		case re.MatchString(text) && len(text) <= len(term)+40:
			partial = append(partial, l)
		}
	}

	for _, group := range [][]dom.Node{exact, partial} {
		for i := len(group) - 1; i >= 0; i-- {
			m, ok, err := r.nearLabel(ctx, scope, group[i], hint)
			if err != nil {
				return Match{}, false, err
			}
			if ok {
				m.Term = term
				return m, true, nil
			}
		}
	}
	return Match{}, false, nil
}

func (r *Resolver) nearLabel(ctx context.Context, scope dom.Scope, label dom.Node, hint Hint) (Match, bool, error) {
	if label.Snap.For != "" {
		nodes, err := dom.Collect(ctx, scope, fmt.Sprintf(".//*[@id=%s]", dom.Literal(label.Snap.For)))
		if err != nil {
			return Match{}, false, err
		}
		for _, n := range nodes {
			if usable(n.Snap) && allowedFor(n.Snap, hint) {
				return Match{Node: n, Strategy: StrategyLabel}, true, nil
			}
		}
	}

	groups, err := label.El.Find(ctx, groupXPath)
	if err != nil {
		return Match{}, false, err
	}
	if len(groups) > 0 {
		inputs, err := dom.Collect(ctx, groups[0], fieldXPath)
		if err != nil {
			return Match{}, false, err
		}
		for _, in := range inputs {
			if usable(in.Snap) && allowedFor(in.Snap, hint) {
				return Match{Node: in, Strategy: StrategyLabel}, true, nil
			}
		}
	}

	following, err := dom.Collect(ctx, label.El, followingXPath)
	if err != nil {
		return Match{}, false, err
	}
	if len(following) > 3 {
		following = following[:3]
	}
	for _, n := range following {
		if !usable(n.Snap) || !allowedFor(n.Snap, hint) {
			continue
		}
		return Match{Node: n, Strategy: StrategyLabel}, true, nil
	}
	return Match{}, false, nil
}

func squash(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(r.Replace(s))
}

func (r *Resolver) byAttribute(ctx context.Context, scope dom.Scope, term string, hint Hint) (Match, bool, error) {
	nodes, err := dom.Collect(ctx, scope, fieldXPath)
	if err != nil {
		return Match{}, false, err
	}
	want := squash(term)
	if want == "" {
		return Match{}, false, nil
	}
	var byName, byPlaceholder []dom.Node
	for _, n := range nodes {
		if !usable(n.Snap) || !allowedFor(n.Snap, hint) {
			continue
		}
		if strings.Contains(squash(n.Snap.Name), want) || strings.Contains(squash(n.Snap.ID), want) {
			byName = append(byName, n)
		} else if strings.Contains(squash(n.Snap.Placeholder), want) {
			byPlaceholder = append(byPlaceholder, n)
		}
	}
	if n, ok := dom.Last(byName); ok {
		return Match{Node: n, Strategy: StrategyAttribute, Term: term}, true, nil
	}
	if n, ok := dom.Last(byPlaceholder); ok {
		return Match{Node: n, Strategy: StrategyAttribute, Term: term}, true, nil
	}
	return Match{}, false, nil
}

func (r *Resolver) blind(ctx context.Context, scope dom.Scope, hint Hint) (Match, bool, error) {
	nodes, err := dom.CollectVisible(ctx, scope, ".//input[@type='number' or @type='text']")
	if err != nil {
		return Match{}, false, err
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		s := nodes[i].Snap
		class, id := strings.ToLower(s.Class), strings.ToLower(s.ID)
		if dom.ContainsAnyFold(class, "search", "chosen", "select2", "hidden") || dom.ContainsAnyFold(id, "search", "filter") {
			continue
		}
		return Match{Node: nodes[i], Strategy: StrategyBlind, Term: hint.Raw}, true, nil
	}
	return Match{}, false, nil
}
