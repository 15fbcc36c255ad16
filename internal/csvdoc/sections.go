package csvdoc

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"panelqa-runner/internal/plan"
)

// Well-known section names of event (RBE) files.
const (
	SectionConfig     = "RBE_CONFIGURATION"
	SectionTasks      = "TASKS"
	SectionMilestones = "MILESTONES"
)

// ErrNoSections is returned for a file without any [SECTION] line.
var ErrNoSections = errors.New("no [SECTIONS] found, check encoding or file format")

// Section is one named part of a multi-section file.
type Section struct {
	Name string
	Doc  *Document
}

// Sectioned is a file made of [NAME]-headed CSV blocks, kept in file
// order.
type Sectioned struct {
	Sections []Section
	// Warnings lists sections that could not be parsed and were skipped.
	Warnings []string
}

// ParseSections splits data on lines starting with '['. The section name
// is the first cell of that line without brackets. Blank sections are
// skipped and fully empty rows dropped.
func ParseSections(data []byte) (*Sectioned, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	lines := strings.SplitAfter(string(data), "\n")

	var starts []int
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil, ErrNoSections
	}
	starts = append(starts, len(lines))

	out := &Sectioned{}
	for i := 0; i < len(starts)-1; i++ {
		head := strings.TrimSpace(lines[starts[i]])
		name := strings.TrimSpace(strings.Trim(strings.SplitN(head, ",", 2)[0], "[]"))
		body := strings.Join(lines[starts[i]+1:starts[i+1]], "")
		if strings.TrimSpace(body) == "" {
			continue
		}
		doc, err := parseBytes([]byte(body))
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Error reading section %s: %v", name, err))
			continue
		}
		doc.Rows = dropEmptyRows(doc)
		out.Sections = append(out.Sections, Section{Name: name, Doc: doc})
	}
	return out, nil
}

func dropEmptyRows(doc *Document) []Row {
	kept := doc.Rows[:0:0]
	for _, r := range doc.Rows {
		for _, h := range doc.Headers {
			if strings.TrimSpace(r[h]) != "" {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

// Get returns the section named name, or else the first whose name starts
// with name (TASKS matches TASKS_EVT01).
func (s *Sectioned) Get(name string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	for _, sec := range s.Sections {
		if strings.HasPrefix(sec.Name, name) {
			return sec, true
		}
	}
	return Section{}, false
}

// With returns a deep copy in which the section resolved by name holds
// doc. It reports false when no section matches.
func (s *Sectioned) With(name string, doc *Document) (*Sectioned, bool) {
	target, ok := s.Get(name)
	if !ok {
		return nil, false
	}
	out := &Sectioned{}
	for _, sec := range s.Sections {
		d := sec.Doc.Clone()
		if sec.Name == target.Name {
			d = doc
		}
		out.Sections = append(out.Sections, Section{Name: sec.Name, Doc: d})
	}
	return out, true
}

// Bytes encodes every section as "[NAME]", its CSV block and a blank line.
func (s *Sectioned) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	for _, sec := range s.Sections {
		fmt.Fprintf(&buf, "[%s]\n", sec.Name)
		if err := sec.Doc.Encode(&buf); err != nil {
			return nil, err
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// LoadSections reads a multi-section file from the store.
func (s *Store) LoadSections(name string) (*Sectioned, error) {
	data, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return ParseSections(data)
}

// SaveSections writes a multi-section file.
func (s *Store) SaveSections(name string, sec *Sectioned) error {
	data, err := sec.Bytes()
	if err != nil {
		return err
	}
	return s.WriteAtomic(name, data)
}

// Check runs the structural checks of an event file: required sections,
// EventID agreement between configuration and task section name, and
// monotonic milestone points.
func (s *Sectioned) Check() []plan.LogEntry {
	var out []plan.LogEntry
	for _, w := range s.Warnings {
		out = append(out, plan.Warning("CSV Read", w))
	}

	var missing []string
	for _, name := range []string{SectionConfig, SectionTasks, SectionMilestones} {
		if _, ok := s.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		out = append(out, plan.Fail("Structure", fmt.Sprintf("Missing: %v", missing)))
	} else {
		out = append(out, plan.Pass("Structure", "Full 3 required sections found."))
	}

	if cfg, ok := s.Get(SectionConfig); ok && len(cfg.Doc.Rows) > 0 {
		if h, ok := cfg.Doc.Column("EventID"); ok {
			id := strings.TrimSpace(cfg.Doc.Rows[0][h])
			matched := false
			for _, sec := range s.Sections {
				if strings.HasPrefix(sec.Name, SectionTasks) && id != "" && strings.Contains(sec.Name, id) {
					matched = true
					break
				}
			}
			if matched {
				out = append(out, plan.Pass("EventID Sync", "ID matched: "+id))
			} else {
				out = append(out, plan.Fail("EventID Sync", "ConfigID mismatch"))
			}
		}
	}

	if ms, ok := s.Get(SectionMilestones); ok {
		if h, ok := ms.Doc.Column("Point"); ok {
			out = append(out, milestoneCheck(ms.Doc, h))
		}
	}
	return out
}

func milestoneCheck(doc *Document, col string) plan.LogEntry {
	var pts []float64
	for _, r := range doc.Rows {
		if v, err := strconv.ParseFloat(strings.TrimSpace(r[col]), 64); err == nil {
			pts = append(pts, v)
		}
	}
	if len(pts) == 0 {
		return plan.Warning("Milestone Logic", "No points found")
	}
	asc := sort.Float64sAreSorted(pts)
	desc := sort.SliceIsSorted(pts, func(i, j int) bool { return pts[i] > pts[j] })
	if asc || desc {
		return plan.Pass("Milestone Logic", "Points sorted correctly")
	}
	return plan.Fail("Milestone Logic", "Points not sorted")
}
