package fuzz

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/dialog"
	"panelqa-runner/internal/dom/domtest"
	"panelqa-runner/internal/memory"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/wait"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const importPage = `<html><body>
<button class="btn btn-success" id="exp">Export CSV</button>
<button class="btn btn-primary" id="imp">Import CSV</button>
</body></html>`

const (
	successPopup = `<div class="swal2-container"><div class="swal2-popup swal2-icon-success">
<h2 class="swal2-title">Import completed</h2> <button class="swal2-confirm">OK</button></div></div>`
	rejectPopup = `<div class="swal2-container"><div class="swal2-popup swal2-icon-error">
<h2 class="swal2-title">Import failed</h2> <div>Row 1: ID is required. Row 3: Cost must be a valid integer</div>
<button class="swal2-confirm">OK</button></div></div>`
)

const grabBags = "ID,Name,Cost\nGB1,Bag,100\n"

func sampleDoc(t *testing.T) *csvdoc.Document {
	t.Helper()
	doc, err := csvdoc.Parse(strings.NewReader(grabBags))
	require.NoError(t, err)
	return doc
}

type harness struct {
	dir    string
	store  *csvdoc.Store
	page   *domtest.Page
	clock  *wait.FakeClock
	runner *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := csvdoc.NewStore(afero.NewOsFs(), dir)
	require.NoError(t, err)
	clock := wait.NewFakeClock(epoch)
	tracker := dialog.New(clock, dialog.Timings{
		UploadWindow:    90 * time.Second,
		ConfirmWindow:   20 * time.Second,
		Attempts:        3,
		PollInterval:    500 * time.Millisecond,
		DownloadTimeout: 30 * time.Second,
	}, nil)
	return &harness{
		dir:    dir,
		store:  store,
		page:   domtest.New(importPage),
		clock:  clock,
		runner: NewRunner(store, tracker, NewGenerator(0, 1), config.DefaultHeuristics(), clock, 500*time.Millisecond, nil),
	}
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), []byte(content), 0o644))
}

func caseNames(cases []Case) []string {
	var out []string
	for _, c := range cases {
		out = append(out, c.Name)
	}
	return out
}

func TestGenerate(t *testing.T) {
	cases := NewGenerator(0, 1).Generate(sampleDoc(t))

	want := []string{
		"Empty 'ID'",
		"Empty 'Name'",
		"Text in numeric 'Cost'",
		"Negative 'Cost'",
		"Special characters in 'ID'",
		"Script tag in 'ID'",
	}
	assert.Equal(t, want, caseNames(cases))

	assert.Equal(t, "", cases[0].Row["ID"])
	assert.Equal(t, "Bag", cases[0].Row["Name"], "other columns keep the template values")
	assert.Equal(t, "ID is required", cases[0].Expected)
	assert.Equal(t, "NotANumber", cases[2].Row["Cost"])
	assert.Equal(t, KeywordInteger, cases[2].Expected)
	assert.Equal(t, "-9999", cases[3].Row["Cost"])
	assert.Equal(t, KeywordPositive, cases[3].Expected)
	assert.Equal(t, "<script>alert(1)</script>", cases[5].Row["ID"])
	assert.Equal(t, KeywordFormat, cases[5].Expected)
}

func TestGenerateSkipsEmptyRequiredColumns(t *testing.T) {
	doc, err := csvdoc.Parse(strings.NewReader("ID,Gate,Price\n,,5\n"))
	require.NoError(t, err)

	names := caseNames(NewGenerator(0, 1).Generate(doc))
	assert.NotContains(t, names, "Empty 'ID'")
	assert.NotContains(t, names, "Empty 'Gate'")
	assert.Contains(t, names, "Text in numeric 'Price'")
}

func TestGenerateEmptyDocumentUsesSampleRow(t *testing.T) {
	cases := NewGenerator(0, 1).Generate(csvdoc.New("ItemName", "Stock"))
	require.NotEmpty(t, cases)
	assert.Equal(t, "", cases[0].Row["ItemName"])
	for _, c := range cases[1:] {
		assert.Equal(t, "Sample", c.Row["ItemName"])
	}
}

func TestGenerateRandomPayloadsAreSeeded(t *testing.T) {
	doc := sampleDoc(t)
	a := NewGenerator(3, 42).Generate(doc)
	b := NewGenerator(3, 42).Generate(doc)
	require.Len(t, a, 9)
	assert.Empty(t, cmp.Diff(a, b))

	for _, c := range a[6:] {
		assert.True(t, strings.HasPrefix(c.Row["ID"], "ID_"), c.Row["ID"])
		assert.True(t, strings.HasSuffix(c.Row["ID"], "_%$#"), c.Row["ID"])
		assert.Equal(t, KeywordFormat, c.Expected)
	}
}

func TestFuzzDocumentEndsWithCleanRow(t *testing.T) {
	doc := sampleDoc(t)
	cases := NewGenerator(0, 1).Generate(doc)

	out := FuzzDocument(doc, cases)
	require.Len(t, out.Rows, len(cases)+1)
	assert.Equal(t, doc.Headers, out.Headers)
	assert.Equal(t, doc.Rows[0], out.Rows[len(out.Rows)-1])
	assert.Equal(t, "GB1", doc.Rows[0]["ID"], "template untouched")
}

func TestScore(t *testing.T) {
	cases := []Case{
		{Name: "Text in numeric 'Cost'", Expected: KeywordInteger},
		{Name: "Negative 'Cost'", Expected: KeywordPositive},
	}
	got := Score(cases, "Row 2: Cost must be a VALID INTEGER")
	want := []plan.LogEntry{
		plan.Pass("Test Case #1: Text in numeric 'Cost'", "Caught: 'valid integer'"),
		plan.Fail("Test Case #2: Negative 'Cost'", "Missed: 'must be positive'"),
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestNewID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "Grabbag_Auto_1700000000", NewID("Grabbag_", now))
	assert.Equal(t, "Auto_1700000000", NewID("Auto_", now))
}

func TestRegenerate(t *testing.T) {
	doc, err := csvdoc.Parse(strings.NewReader(
		"BagID,Tab_ID,Name,ShowInStore,OfferDisplayID,Key\nGB_1,T1,Bag,false,OD1,\n"))
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	out := Regenerate(doc, config.DefaultHeuristics(), now)
	require.Len(t, out.Rows, 1)
	want := csvdoc.Row{
		"BagID":          "Grabbag_Auto_1700000000",
		"Tab_ID":         "T1",
		"Name":           "Bag",
		"ShowInStore":    "false",
		"OfferDisplayID": "",
		"Key":            "",
	}
	assert.Empty(t, cmp.Diff(want, out.Rows[0]))
	assert.Equal(t, "GB_1", doc.Rows[0]["BagID"], "source untouched")
}

func TestRegenerateKeepsGatedColumnsWhenShown(t *testing.T) {
	doc, err := csvdoc.Parse(strings.NewReader("OfferID,ShowInStore,OfferDisplayID\nO1,true,OD1\n"))
	require.NoError(t, err)

	out := Regenerate(doc, config.DefaultHeuristics(), time.Unix(10, 0))
	assert.Equal(t, "Offer_Auto_10", out.Rows[0]["OfferID"])
	assert.Equal(t, "Offer_Auto_10", out.Rows[0]["OfferDisplayID"])
}

func TestCleanFileName(t *testing.T) {
	tests := map[string]string{
		"grab_bags.csv":             "grab_bags.csv",
		"Import CSV grab_bags.csv":  "grab_bags.csv",
		" grab_bags.csv Export CSV": "grab_bags.csv",
		"../etc/grab_bags.csv":      "grab_bags.csv",
		"Import CSV":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanFileName(in), in)
	}
}

func TestCycleScoresFuzzCasesAndRunsSanityCheck(t *testing.T) {
	h := newHarness(t)
	h.write(t, "grab_bags.csv", grabBags)
	var uploaded []string
	h.page.OnUpload(func(p *domtest.Page, path string) {
		uploaded = append(uploaded, filepath.Base(path))
		if strings.HasPrefix(filepath.Base(path), FuzzedPrefix) {
			p.Append("//body", rejectPopup)
			return
		}
		p.Append("//body", successPopup)
	})
	mem := memory.New()

	logs, err := h.runner.Cycle(context.Background(), h.page, mem, "grab_bags.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"fuzzed_grab_bags.csv", "valid_grab_bags.csv"}, uploaded)
	require.Len(t, logs, 8)
	assert.Equal(t, plan.StatusExecuted, logs[0].Status)
	assert.Equal(t, "Fuzzing", logs[0].Step)

	want := []plan.LogEntry{
		plan.Pass("Test Case #1: Empty 'ID'", "Caught: 'id is required'"),
		plan.Fail("Test Case #2: Empty 'Name'", "Missed: 'name is required'"),
		plan.Pass("Test Case #3: Text in numeric 'Cost'", "Caught: 'valid integer'"),
		plan.Fail("Test Case #4: Negative 'Cost'", "Missed: 'must be positive'"),
		plan.Fail("Test Case #5: Special characters in 'ID'", "Missed: 'invalid format'"),
		plan.Fail("Test Case #6: Script tag in 'ID'", "Missed: 'invalid format'"),
		plan.Pass("Final Sanity Check", "Successfully imported valid user data"),
	}
	assert.Empty(t, cmp.Diff(want, logs[1:]))

	last, ok := mem.Get(memory.LastFuzzedFile)
	require.True(t, ok)
	assert.Equal(t, "fuzzed_grab_bags.csv", last)

	fuzzed, err := h.store.Load("fuzzed_grab_bags.csv")
	require.NoError(t, err)
	assert.Len(t, fuzzed.Rows, 7)

	valid, err := h.store.Load("valid_grab_bags.csv")
	require.NoError(t, err)
	require.Len(t, valid.Rows, 1)
	assert.True(t, strings.HasPrefix(valid.Rows[0]["ID"], "Auto_"), valid.Rows[0]["ID"])
	assert.NotContains(t, valid.Rows[0]["ID"], "Auto_Auto_")
	assert.Equal(t, "Bag", valid.Rows[0]["Name"])
}

func TestCycleSanityCheckFailure(t *testing.T) {
	h := newHarness(t)
	h.write(t, "grab_bags.csv", grabBags)
	h.page.OnUpload(func(p *domtest.Page, path string) { p.Append("//body", rejectPopup) })

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "grab_bags.csv")
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, "Final Sanity Check", last.Step)
	assert.Equal(t, plan.StatusFail, last.Status)
	assert.True(t, strings.HasPrefix(last.Details, "Error: "), last.Details)
}

func TestCycleFallsBackToNewestFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "grab_bags.csv", grabBags)
	h.write(t, "fuzzed_old.csv", grabBags)
	later := epoch.Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(h.dir, "fuzzed_old.csv"), later, later))
	h.page.OnUpload(func(p *domtest.Page, path string) { p.Append("//body", successPopup) })

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "missing.csv")
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, plan.Warning("Smart Cycle", "missing.csv not found, using newest file grab_bags.csv"), logs[0])
}

func TestCycleMissingFile(t *testing.T) {
	h := newHarness(t)

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "missing.csv")
	require.NoError(t, err)
	assert.Equal(t, []plan.LogEntry{plan.Fail("Smart Cycle", "File not found: missing.csv")}, logs)
	assert.Empty(t, h.page.EventsOf("choose"))
}

func TestCycleMissingImportButton(t *testing.T) {
	h := newHarness(t)
	h.page = domtest.New(`<html><body><button>Export</button></body></html>`)
	h.write(t, "grab_bags.csv", grabBags)

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "grab_bags.csv")
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, plan.Fail("Fuzzing", "Button not found"), logs[0])
}

const rbeEvent = `[RBE_CONFIGURATION]
EventID,EventName,StartTime,EndTime
EVT01,Summer,2024-06-01 00:00,2024-06-30 00:00

[TASKS_EVT01]
TaskID,Goal
T1,5

[MILESTONES]
Point,MilestoneRewards
10,Gold:5
20,Gold:10
`

func TestSectionMutations(t *testing.T) {
	base, err := csvdoc.ParseSections([]byte(rbeEvent))
	require.NoError(t, err)

	muts := SectionMutations(base)
	var names []string
	for _, m := range muts {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"Invalid_Date_Range",
		"Missing_Column_EventID",
		"Negative_Milestone_Point",
		"Invalid_Reward_Syntax",
		"Empty_Event_Name",
	}, names)

	cfg, _ := muts[0].File.Get(csvdoc.SectionConfig)
	assert.Equal(t, "2030-01-01 00:00", cfg.Doc.Rows[0]["StartTime"])
	assert.Equal(t, "2020-01-01 00:00", cfg.Doc.Rows[0]["EndTime"])

	cfg, _ = muts[1].File.Get(csvdoc.SectionConfig)
	assert.NotContains(t, cfg.Doc.Headers, "EventID")

	ms, _ := muts[2].File.Get(csvdoc.SectionMilestones)
	assert.Equal(t, "-100", ms.Doc.Rows[0]["Point"])
	assert.Equal(t, "20", ms.Doc.Rows[1]["Point"])

	orig, _ := base.Get(csvdoc.SectionConfig)
	assert.Equal(t, "2024-06-01 00:00", orig.Doc.Rows[0]["StartTime"], "base untouched")
	assert.Contains(t, orig.Doc.Headers, "EventID")
}

func TestCampaign(t *testing.T) {
	h := newHarness(t)
	h.write(t, "event_rbe.csv", rbeEvent)
	uploaded := map[string]string{}
	h.page.OnUpload(func(p *domtest.Page, path string) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		name := filepath.Base(path)
		uploaded[name] = string(data)
		if strings.HasPrefix(name, CampaignPrefix) && !strings.Contains(name, "Empty_Event_Name") {
			p.Append("//body", rejectPopup)
			return
		}
		p.Append("//body", successPopup)
	})

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "event_rbe.csv")
	require.NoError(t, err)

	var got []string
	for _, e := range logs {
		got = append(got, e.Step+" "+string(e.Status))
	}
	assert.Equal(t, []string{
		"Pre-flight PASS",
		"Fuzz: Invalid_Date_Range PASS",
		"Fuzz: Missing_Column_EventID PASS",
		"Fuzz: Negative_Milestone_Point PASS",
		"Fuzz: Invalid_Reward_Syntax PASS",
		"Fuzz: Empty_Event_Name WARNING",
		"Sanity Check PASS",
	}, got)
	assert.True(t, strings.HasPrefix(logs[1].Details, "Blocked: Error: "), logs[1].Details)
	assert.Equal(t, "System accepted invalid data", logs[5].Details)
	assert.Equal(t, "Healthy", logs[6].Details)

	missing := uploaded["FUZZ_Missing_Column_EventID_event_rbe.csv"]
	require.NotEmpty(t, missing)
	assert.NotContains(t, missing, "EventID,")
	assert.Contains(t, missing, "[RBE_CONFIGURATION]")

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.Equal(t, []string{"event_rbe.csv"}, left, "mutation files removed")
}

func TestCampaignDetectsSectionMarker(t *testing.T) {
	h := newHarness(t)
	h.write(t, "event.csv", "\ufeff"+rbeEvent)
	h.page.OnUpload(func(p *domtest.Page, path string) { p.Append("//body", successPopup) })

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "event.csv")
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Pre-flight", logs[0].Step)
}

func TestCampaignAbortsOnInvalidBase(t *testing.T) {
	h := newHarness(t)
	h.write(t, "event_rbe.csv", strings.Replace(rbeEvent, "20,Gold:10", "20,Gold:10\n15,Gold:1", 1))

	logs, err := h.runner.Cycle(context.Background(), h.page, memory.New(), "event_rbe.csv")
	require.NoError(t, err)
	assert.Contains(t, logs, plan.Fail("Milestone Logic", "Points not sorted"))
	assert.Equal(t, plan.Fail("Pre-flight", "Base file is invalid, campaign aborted"), logs[len(logs)-1])
	assert.Empty(t, h.page.EventsOf("choose"))
}
