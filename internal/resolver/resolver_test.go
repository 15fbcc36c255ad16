package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/dom/domtest"
	"panelqa-runner/internal/failure"
)

func newResolver() *Resolver {
	h := config.DefaultHeuristics()
	return New(Options{Synonyms: h.Synonyms, IDAliases: h.IDAliases, QuantityKeys: h.QuantityKeys}, nil)
}

func page(body string) *domtest.Page {
	return domtest.New("<html><body>" + body + "</body></html>")
}

func TestResolveExactID(t *testing.T) {
	p := page(`<div id="Price-wrap"><input id="price" type="text"></div>`)
	m, err := newResolver().Resolve(context.Background(), p, Hint{Raw: "Price"})
	require.NoError(t, err)
	assert.Equal(t, StrategyExactID, m.Strategy)
	assert.Equal(t, "price", m.Snap.ID)
}

func TestResolveIDAliasForHiddenSelect2(t *testing.T) {
	p := page(`<label>Gate</label><select id="gate" class="select2-hidden-accessible" style="display:none"><option>None</option></select>`)
	m, err := newResolver().Resolve(context.Background(), p, Hint{Raw: "gate"})
	require.NoError(t, err)
	assert.Equal(t, "gate", m.Snap.ID)
	assert.False(t, m.Snap.Visible)
}

const table = `<table>
<thead><tr><th>Select</th><th>ID</th><th>Cost</th></tr></thead>
<tbody>
<tr><td><input type="checkbox"></td><td>A</td><td><input type="text" name="c1"></td></tr>
<tr><td><input type="checkbox"></td><td>B</td><td><input type="text" name="c2"></td></tr>
</tbody></table>`

func TestResolveTableHeaderUsesLastRow(t *testing.T) {
	m, err := newResolver().Resolve(context.Background(), page(table), Hint{Raw: "Cost"})
	require.NoError(t, err)
	assert.Equal(t, StrategyTableHeader, m.Strategy)
	assert.True(t, m.InTable())
	assert.Equal(t, "c2", m.Snap.Name)
}

func TestResolveClassFragmentPrefersLast(t *testing.T) {
	p := page(`<input class="form-control weight" name="w1"><input class="form-control weight" name="w2">`)
	m, err := newResolver().Resolve(context.Background(), p, Hint{Raw: "Weight"})
	require.NoError(t, err)
	assert.Equal(t, StrategyClassFragment, m.Strategy)
	assert.Equal(t, "w2", m.Snap.Name)
}

func TestResolveLabelFor(t *testing.T) {
	p := page(`<label for="ev-name">Event Name</label><div><input id="ev-name" type="text"></div>`)
	m, err := newResolver().Resolve(context.Background(), p, Hint{Raw: "Event Name"})
	require.NoError(t, err)
	assert.Equal(t, StrategyLabel, m.Strategy)
	assert.Equal(t, "ev-name", m.Snap.ID)
}

func TestResolveLabelSkipsRadioForIdentifierValues(t *testing.T) {
	fixture := `<label>Reward Code</label><input type="radio" name="r" value="a"><input type="text" name="rc">`

	m, err := newResolver().Resolve(context.Background(), page(fixture), Hint{Raw: "Reward Code", Value: "REWARD_GOLD_2024_X"})
	require.NoError(t, err)
	assert.Equal(t, "text", m.Snap.Type)

	m, err = newResolver().Resolve(context.Background(), page(fixture), Hint{Raw: "Reward Code", Value: "Gold Tier"})
	require.NoError(t, err)
	assert.Equal(t, "radio", m.Snap.Type)
}

func TestResolveLabelSkipsCheckboxForNonBoolean(t *testing.T) {
	fixture := `<div class="form-group"><label>Active</label><input type="checkbox" name="on"><input type="text" name="note"></div>`
	m, err := newResolver().Resolve(context.Background(), page(fixture), Hint{Raw: "Active", Value: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "note", m.Snap.Name)

	m, err = newResolver().Resolve(context.Background(), page(fixture), Hint{Raw: "Active", Value: "on"})
	require.NoError(t, err)
	assert.Equal(t, "on", m.Snap.Name)
}

func TestResolveAttributeAndPlaceholder(t *testing.T) {
	p := page(`<input name="offer_section_id"><input placeholder="Enter display name">`)
	r := newResolver()

	m, err := r.Resolve(context.Background(), p, Hint{Raw: "Offer Section ID"})
	require.NoError(t, err)
	assert.Equal(t, StrategyAttribute, m.Strategy)
	assert.Equal(t, "offer_section_id", m.Snap.Name)

	m, err = r.Resolve(context.Background(), p, Hint{Raw: "Display Name"})
	require.NoError(t, err)
	assert.Equal(t, "Enter display name", m.Snap.Placeholder)
}

func TestResolveBlindOnlyWhenNotStrict(t *testing.T) {
	fixture := `<input type="text" class="search-box"><input type="number" id="q1"><input type="text" id="filter-x">`
	r := newResolver()

	m, err := r.Resolve(context.Background(), page(fixture), Hint{Raw: "Quantity"})
	require.NoError(t, err)
	assert.Equal(t, StrategyBlind, m.Strategy)
	assert.Equal(t, "q1", m.Snap.ID)

	_, err = r.Resolve(context.Background(), page(fixture), Hint{Raw: "Quantity", Strict: true})
	assert.True(t, errors.Is(err, failure.ErrNotFound))
}

func TestResolveNotFound(t *testing.T) {
	_, err := newResolver().Resolve(context.Background(), page(`<p>nothing</p>`), Hint{Raw: "Missing Field"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNotFound))
	assert.Equal(t, `field "Missing Field"`, failure.DetailOf(err))
}

func TestResolveUsesSynonyms(t *testing.T) {
	p := page(`<label>HC Cost</label><input type="number" name="hc">`)
	r := newResolver()
	hint := r.HintFor("Cost", "50", true)
	assert.Contains(t, hint.Terms(), "HC Cost")

	m, err := r.Resolve(context.Background(), p, hint)
	require.NoError(t, err)
	assert.Equal(t, "hc", m.Snap.Name)
}

func TestResolveExactIDSynonymBeatsClassFragment(t *testing.T) {
	p := page(`<input class="form-control grid-qty" type="number"><input id="ffID" type="text">`)
	r := newResolver()

	m, err := r.Resolve(context.Background(), p, r.HintFor("id", "EVT_1", true))
	require.NoError(t, err)
	assert.Equal(t, StrategyExactID, m.Strategy)
	assert.Equal(t, "ffID", m.Snap.ID)
}

func TestHintForCleansKey(t *testing.T) {
	h := newResolver().HintFor("ID Input", "X", false)
	assert.Equal(t, "ID", h.Raw)
	assert.Equal(t, []string{"ID", "ffID", "New Event ID", "New ID", "BagID", "Gacha ID", "ID Input"}, h.Terms())
	assert.Equal(t, "Active", CleanKey("Active Toggle"))
	assert.Equal(t, "Toggle", CleanKey("Toggle"))
}

func TestClickableExactBeatsPartial(t *testing.T) {
	p := page(`<nav><a class="nav-link">Data Configs Archive</a><a class="nav-link">Data Configs</a></nav>`)
	m, err := newResolver().Clickable(context.Background(), p, "Data Configs", PickFirst)
	require.NoError(t, err)
	assert.Equal(t, StrategyExactText, m.Strategy)
	assert.Equal(t, "Data Configs", m.Snap.Text)
}

func TestClickablePickFirstAndLast(t *testing.T) {
	p := page(`<a id="top">Events</a><div><a id="child">Events</a></div>`)
	r := newResolver()

	m, err := r.Clickable(context.Background(), p, "Events", PickFirst)
	require.NoError(t, err)
	assert.Equal(t, "top", m.Snap.ID)

	m, err = r.Clickable(context.Background(), p, "Events", PickLast)
	require.NoError(t, err)
	assert.Equal(t, "child", m.Snap.ID)
}

func TestClickablePartialShortestAndDeepScan(t *testing.T) {
	r := newResolver()
	p := page(`<button>Grab Bag Settings Advanced</button><button>Grab Bag Settings</button>`)
	m, err := r.Clickable(context.Background(), p, "grab bag", PickFirst)
	require.NoError(t, err)
	assert.Equal(t, StrategyPartialText, m.Strategy)
	assert.Equal(t, "Grab Bag Settings", m.Snap.Text)

	p = page(`<div class="card"><span class="title">Process Blueprints</span></div>`)
	m, err = r.Clickable(context.Background(), p, "Process Blueprints", PickLast)
	require.NoError(t, err)
	assert.Equal(t, StrategyDeepScan, m.Strategy)
	assert.Equal(t, "span", m.Snap.Tag)

	_, err = r.Clickable(context.Background(), p, "Nope", PickLast)
	assert.True(t, errors.Is(err, failure.ErrNotFound))
}
