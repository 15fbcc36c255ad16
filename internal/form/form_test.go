package form

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelqa-runner/internal/dom/domtest"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/wait"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newFiller(clock wait.Clock, opts resolver.Options, attempts int, keywords ...string) *Filler {
	return New(resolver.New(opts, nil), clock, Timings{
		FieldRetry:    time.Second,
		FieldAttempts: attempts,
		TabSettle:     time.Second,
		PollInterval:  500 * time.Millisecond,
		SaveToast:     2 * time.Second,
		SaveBackdrop:  2 * time.Second,
	}, keywords, nil)
}

func fields(kv ...string) plan.Fields {
	var out plan.Fields
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, plan.Field{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestFillTextFieldsByLabelAndClass(t *testing.T) {
	p := domtest.New(`<html><body><form>
<label for="name">Event Name</label><input id="name" type="text">
<label>Price</label><input class="form-control cost" type="number">
</form></body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	res, err := f.Fill(context.Background(), p, p, fields("Event Name", "Spring Bash", "Cost", "250"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Event Name", "Cost"}, res.Filled)
	assert.True(t, res.Complete())
	assert.Equal(t, "Spring Bash", p.Value("//input[@id='name']"))
	assert.Equal(t, "250", p.Value("//input[contains(@class,'cost')]"))
	assert.Len(t, p.EventsOf("change"), 2)

	var tabs int
	for _, e := range p.EventsOf("press") {
		if e.Value == "Tab" {
			tabs++
		}
	}
	assert.Equal(t, 2, tabs, "each text field is left with Tab")
}

func TestFillToggleClicksStyledLabelOnce(t *testing.T) {
	p := domtest.New(`<html><body><div class="form-group">
<label>Active</label>
<input type="checkbox" id="active" class="tgl tgl-light" style="display:none">
<label class="tgl-btn" for="active"></label>
</div></body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)
	ctx := context.Background()

	res, err := f.Fill(ctx, p, p, fields("Active Toggle", "true"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())
	assert.True(t, p.Checked("//input[@id='active']"))
	assert.Len(t, p.EventsOf("click"), 1)
	assert.Empty(t, p.EventsOf("check"), "label click suffices, no script fallback")

	_, err = f.Fill(ctx, p, p, fields("Active Toggle", "on"), false)
	require.NoError(t, err)
	assert.Len(t, p.EventsOf("click"), 1, "matching state is not toggled again")

	_, err = f.Fill(ctx, p, p, fields("Active Toggle", "false"), false)
	require.NoError(t, err)
	assert.False(t, p.Checked("//input[@id='active']"))
}

func TestFillRadioByLabelText(t *testing.T) {
	p := domtest.New(`<html><body><div class="form-group">
<label>Currency</label>
<input type="radio" name="cur" id="c1" checked><label for="c1">Gems</label>
<input type="radio" name="cur" id="c2"><label for="c2">Coins</label>
</div></body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	res, err := f.Fill(context.Background(), p, p, fields("Currency", "Coins"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Currency"}, res.Filled)
	assert.True(t, p.Checked("//input[@id='c2']"))
	assert.False(t, p.Checked("//input[@id='c1']"))
}

func TestFillSearchableDropdown(t *testing.T) {
	p := domtest.New(`<html><body>
<label for="gate">Gate</label>
<select id="gate" class="select2-hidden-accessible"><option>None</option><option>VIP</option></select>
<span class="select2 select2-container" id="s2"><span class="select2-selection">None</span></span>
<span class="select2-container select2-container--open d-none" id="drop">
  <input class="select2-search__field">
  <ul><li class="select2-results__option" id="o1">None</li><li class="select2-results__option" id="o2">VIP</li></ul>
</span>
</body></html>`)
	p.OnClick("//span[@id='s2']", func(p *domtest.Page) { p.RemoveClass("//span[@id='drop']", "d-none") })
	p.OnClick("//li[@id='o2']", func(p *domtest.Page) {
		p.SetAttr("//select[@id='gate']/option[2]", "selected", "")
	})
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	res, err := f.Fill(context.Background(), p, p, fields("Gate", "VIP"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())
	assert.Equal(t, "VIP", p.Value("//select[@id='gate']"))

	fills := p.EventsOf("fill")
	require.Len(t, fills, 1)
	assert.Equal(t, "VIP", fills[0].Value, "the value is typed into the search box")
}

func TestFillNativeSelect(t *testing.T) {
	p := domtest.New(`<html><body>
<label for="kind">Kind</label><select id="kind"><option>Bag</option><option>Chest</option></select>
</body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	_, err := f.Fill(context.Background(), p, p, fields("Kind", "Chest"), false)
	require.NoError(t, err)
	assert.Equal(t, "Chest", p.Value("//select[@id='kind']"))
}

func TestFillStrictDisablesBlindFallback(t *testing.T) {
	fixture := `<html><body><input type="text" id="search-box" class="search"><input type="number" id="x1"></body></html>`
	opts := resolver.Options{QuantityKeys: []string{"quantity"}}
	ctx := context.Background()

	p := domtest.New(fixture)
	clock := wait.NewFakeClock(epoch)
	res, err := newFiller(clock, opts, 2).Fill(ctx, p, p, fields("Quantity", "3"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quantity"}, res.Missed)
	assert.Equal(t, time.Second, clock.Slept(), "one retry pause between two attempts")

	p = domtest.New(fixture)
	res, err = newFiller(wait.NewFakeClock(epoch), opts, 2).Fill(ctx, p, p, fields("Quantity", "3"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quantity"}, res.Filled)
	assert.Equal(t, "3", p.Value("//input[@id='x1']"))
}

func TestFillSwitchesTabFirst(t *testing.T) {
	p := domtest.New(`<html><body>
<ul class="nav">
<li><a id="t1" class="nav-link active" data-box="20,100,120,30">General</a></li>
<li><a id="t2" class="nav-link" data-box="20,140,120,30">Rewards</a></li>
</ul>
<div id="pane2" class="d-none"><label for="reward">Reward</label><input id="reward"></div>
</body></html>`)
	p.OnClick("//a[@id='t2']", func(p *domtest.Page) { p.RemoveClass("//div[@id='pane2']", "d-none") })
	clock := wait.NewFakeClock(epoch)
	f := newFiller(clock, resolver.Options{}, 1)

	res, err := f.Fill(context.Background(), p, p, fields(TabKey, "Rewards", "Reward", "Gold"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reward"}, res.Filled)
	assert.Equal(t, "Gold", p.Value("//input[@id='reward']"))
	assert.Equal(t, time.Second, clock.Slept())
}

func TestSwitchTabLeavesActiveTab(t *testing.T) {
	p := domtest.New(`<html><body><a class="nav-link active" data-box="20,100,120,30">General</a></body></html>`)
	err := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1).SwitchTab(context.Background(), p, "General")
	require.NoError(t, err)
	assert.Empty(t, p.EventsOf("click"))

	err = newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1).SwitchTab(context.Background(), p, "Odds")
	assert.True(t, failure.KindOf(err) == failure.KindNotFound)
}

func TestUpdateScopesToOpenModal(t *testing.T) {
	p := domtest.New(`<html><body>
<label for="n1">Name</label><input id="n1">
<div class="modal show"><div class="modal-content"><label for="n2">Name</label><input id="n2"></div></div>
</body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	_, err := f.Update(context.Background(), p, fields("Name", "Inside"))
	require.NoError(t, err)
	assert.Equal(t, "Inside", p.Value("//input[@id='n2']"))
	assert.Equal(t, "", p.Value("//input[@id='n1']"))
}

const saveFixture = `<html><body>
<div class="modal show"><div class="modal-content">
<button class="btn btn-primary" id="plain">Save</button>
<button class="btn btn-primary" id="cont" data-continue="1">Save &amp; Continue</button>
</div></div>
<div class="toast-success d-none" id="toast">Saved</div>
</body></html>`

func TestSavePrefersContinueMarker(t *testing.T) {
	p := domtest.New(saveFixture)
	p.OnClick("//button[@id='cont']", func(p *domtest.Page) { p.RemoveClass("//div[@id='toast']", "d-none") })
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	out, err := f.Save(context.Background(), p, SaveContinue)
	require.NoError(t, err)
	assert.Equal(t, SaveOutcome{Button: "Save & Continue", Rule: "continue-marker", Toast: true, Settled: true}, out)
	assert.Equal(t, 1, p.DialogsAccepted())
}

func TestSavePlainSkipsContinue(t *testing.T) {
	p := domtest.New(saveFixture)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	out, err := f.Save(context.Background(), p, ParseSaveMode("save"))
	require.NoError(t, err)
	assert.Equal(t, "Save", out.Button)
	assert.Equal(t, "save", out.Rule)
	assert.False(t, out.Toast)
}

func TestSaveGenericAndMissing(t *testing.T) {
	p := domtest.New(`<html><body><a class="btn">Cancel</a><button class="btn">Create</button></body></html>`)
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1)

	out, err := f.Save(context.Background(), p, SaveContinue)
	require.NoError(t, err)
	assert.Equal(t, "text:Create", out.Rule)

	p = domtest.New(`<html><body><p>read only</p></body></html>`)
	_, err = f.Save(context.Background(), p, SaveContinue)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestScanTabsEmptyDataDoesNothing(t *testing.T) {
	p := domtest.New(`<html><body><button data-continue="1">Save &amp; Continue</button></body></html>`)
	logs, err := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1).ScanTabs(context.Background(), p, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, plan.StatusWarning, logs[0].Status)
	assert.Empty(t, p.Events())
}

func TestScanTabsFillsAcrossSidebarTabs(t *testing.T) {
	p := domtest.New(`<html><body>
<div class="sidebar">
<a id="ti" class="active" data-box="10,120,200,30">Grabbag Info</a>
<a id="to" data-box="10,160,200,30">Odds</a>
</div>
<div id="info"><label for="name">Name</label><input id="name"><button id="b1" data-continue="1">Save &amp; Continue</button></div>
<div id="odds" class="d-none"><label for="weight">Weight</label><input id="weight"><button id="b2" data-continue="1">Save &amp; Continue</button></div>
</body></html>`)
	p.OnClick("//a[@id='to']", func(p *domtest.Page) {
		p.AddClass("//div[@id='info']", "d-none")
		p.RemoveClass("//div[@id='odds']", "d-none")
	})
	f := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1, "Grabbag Info", "Odds")

	logs, err := f.ScanTabs(context.Background(), p, fields("Name", "Bag", "Weight", "7"))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Scan Tabs [1] Grabbag Info", logs[0].Step)
	assert.Equal(t, plan.StatusPass, logs[0].Status)
	assert.Contains(t, logs[0].Details, "missed Weight")
	assert.Equal(t, "Scan Tabs [2] Odds", logs[1].Step)
	assert.Equal(t, plan.StatusPass, logs[1].Status)
	assert.Contains(t, logs[1].Details, "filled Weight")

	assert.Equal(t, "Bag", p.Value("//input[@id='name']"))
	assert.Equal(t, "7", p.Value("//input[@id='weight']"))

	var saves []string
	for _, e := range p.EventsOf("click") {
		if e.Target == `button#b1 "Save & Continue"` || e.Target == `button#b2 "Save & Continue"` {
			saves = append(saves, e.Target)
		}
	}
	assert.Equal(t, []string{`button#b1 "Save & Continue"`, `button#b2 "Save & Continue"`}, saves)
}

func TestScanTabsSavesOnceWhenCurrentViewSuffices(t *testing.T) {
	p := domtest.New(`<html><body>
<label for="name">Name</label><input id="name">
<button id="b1" data-continue="1">Save &amp; Continue</button>
</body></html>`)
	logs, err := newFiller(wait.NewFakeClock(epoch), resolver.Options{}, 1).ScanTabs(context.Background(), p, fields("Name", "Bag"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Scan Tabs", logs[0].Step)
	assert.Equal(t, plan.StatusPass, logs[0].Status)
	assert.Len(t, p.EventsOf("click"), 2, "field focus plus one save")
}
