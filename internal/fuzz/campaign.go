package fuzz

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/plan"
)

// Mutation is one deliberately broken copy of a multi-section file.
type Mutation struct {
	Name string
	File *csvdoc.Sectioned
}

// SectionMutations derives the campaign variants of an event file. A
// variant whose section or column is absent is not generated.
func SectionMutations(base *csvdoc.Sectioned) []Mutation {
	var out []Mutation
	add := func(name, section string, edit func(doc *csvdoc.Document) (*csvdoc.Document, bool)) {
		sec, ok := base.Get(section)
		if !ok {
			return
		}
		doc, ok := edit(sec.Doc.Clone())
		if !ok {
			return
		}
		if f, ok := base.With(section, doc); ok {
			out = append(out, Mutation{Name: name, File: f})
		}
	}

	add("Invalid_Date_Range", csvdoc.SectionConfig, func(doc *csvdoc.Document) (*csvdoc.Document, bool) {
		if len(doc.Rows) == 0 {
			return nil, false
		}
		setColumn(doc, "StartTime", "2030-01-01 00:00")
		setColumn(doc, "EndTime", "2020-01-01 00:00")
		return doc, true
	})
	add("Missing_Column_EventID", csvdoc.SectionConfig, func(doc *csvdoc.Document) (*csvdoc.Document, bool) {
		h, ok := doc.Column("EventID")
		if !ok {
			return nil, false
		}
		return doc.DropColumn(h), true
	})
	add("Negative_Milestone_Point", csvdoc.SectionMilestones, firstRow("Point", "-100"))
	add("Invalid_Reward_Syntax", csvdoc.SectionMilestones, firstRow("MilestoneRewards", "InvalidItemNameNoQty"))
	add("Empty_Event_Name", csvdoc.SectionConfig, firstRow("EventName", ""))
	return out
}

// setColumn writes v into every row, adding the column when missing.
func setColumn(doc *csvdoc.Document, col, v string) {
	h, ok := doc.Column(col)
	if !ok {
		h = col
		doc.Headers = append(doc.Headers, h)
	}
	for _, row := range doc.Rows {
		row[h] = v
	}
}

func firstRow(col, v string) func(*csvdoc.Document) (*csvdoc.Document, bool) {
	return func(doc *csvdoc.Document) (*csvdoc.Document, bool) {
		h, ok := doc.Column(col)
		if !ok || len(doc.Rows) == 0 {
			return nil, false
		}
		doc.Rows[0][h] = v
		return doc, true
	}
}

// Campaign structure-checks a multi-section file, uploads each mutation
// once and finishes with a sanity upload of the untouched file. A rejected
// mutation scores PASS; an accepted one is a WARNING.
func (r *Runner) Campaign(ctx context.Context, page dom.Page, name string) ([]plan.LogEntry, error) {
	base, err := r.store.LoadSections(name)
	if err != nil {
		return []plan.LogEntry{plan.Fail("Pre-flight", err.Error())}, nil
	}
	checks := base.Check()
	for _, c := range checks {
		if c.Failed() {
			return append(checks, plan.Fail("Pre-flight", "Base file is invalid, campaign aborted")), nil
		}
	}
	logs := []plan.LogEntry{plan.Pass("Pre-flight", fmt.Sprintf("%d structural checks passed", len(checks)))}

	for _, m := range SectionMutations(base) {
		entry, err := r.attack(ctx, page, name, m)
		if err != nil {
			return logs, err
		}
		logs = append(logs, entry)
		if err := r.clock.Sleep(ctx, r.settle); err != nil {
			return logs, err
		}
	}

	out, err := r.up.UploadOnce(ctx, page, r.store.Path(name), CampaignTrigger)
	if err != nil && fatal(ctx, err) {
		return logs, err
	}
	if out.OK {
		return append(logs, plan.Pass("Sanity Check", "Healthy")), nil
	}
	return append(logs, plan.Warning("Sanity Check", "Check Failed: "+out.Message)), nil
}

func (r *Runner) attack(ctx context.Context, page dom.Page, name string, m Mutation) (plan.LogEntry, error) {
	step := "Fuzz: " + m.Name
	file := CampaignPrefix + m.Name + "_" + strings.TrimSuffix(name, ".csv") + ".csv"
	if err := r.store.SaveSections(file, m.File); err != nil {
		return plan.Crash(step, err.Error()), nil
	}
	defer func() {
		if err := r.store.Remove(file); err != nil {
			r.log.Warn("remove campaign file", zap.String("file", file), zap.Error(err))
		}
	}()

	out, err := r.up.UploadOnce(ctx, page, r.store.Path(file), CampaignTrigger)
	if err != nil && fatal(ctx, err) {
		return plan.LogEntry{}, err
	}
	if err := r.up.Cleanup(ctx, page); err != nil && fatal(ctx, err) {
		return plan.LogEntry{}, err
	}
	r.log.Info("campaign upload", zap.String("mutation", m.Name), zap.Bool("accepted", out.OK))
	if out.OK {
		return plan.Warning(step, "System accepted invalid data"), nil
	}
	return plan.Pass(step, "Blocked: "+out.Message), nil
}
