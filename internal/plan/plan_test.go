package plan

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelqa-runner/internal/failure"
)

func TestParseTextStripsNoise(t *testing.T) {
	text := "```json\n[\n  // open the menu\n  {\"action\": \"navigate\", \"path\": [\"Data Configs\", \"Grab Bag\"]},\n  {\"action\": \"navigate\", \"path\": \"https://panel.example/items\"} // direct\n]\n```"
	p, err := ParseText(text)
	require.NoError(t, err)

	want := Plan{
		{Kind: KindNavigate, Path: []string{"Data Configs", "Grab Bag"}},
		{Kind: KindNavigate, Path: []string{"https://panel.example/items"}},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSingleObjectIsWrapped(t *testing.T) {
	p, err := ParseText(`{"action": "select", "target": "Grab Bag"}`)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, KindClick, p[0].Kind)
	assert.Equal(t, "Grab Bag", p[0].Target)
}

func TestParseScenarioObject(t *testing.T) {
	p, err := ParseText(`{"command": "edit bag", "plan": [{"action": "edit_row", "target": "LAST_SELECTED"}]}`)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, KindEditRow, p[0].Kind)
}

func TestParseKeepsFieldOrderAndScalars(t *testing.T) {
	p, err := Parse([]byte(`[{"action":"update_form","data":{"Tab":"Odds","Cost":99,"Active":true,"Name":"Gold"}}]`))
	require.NoError(t, err)
	want := Fields{{"Tab", "Odds"}, {"Cost", "99"}, {"Active", "true"}, {"Name", "Gold"}}
	assert.Equal(t, want, p[0].Data)

	out, err := want.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Tab":"Odds","Cost":"99","Active":"true","Name":"Gold"}`, string(out))
}

func TestParseStringData(t *testing.T) {
	p, err := Parse([]byte(`{"action":"manipulate_csv","target":"items.csv","operation":"ADD","data":"ID=A,B"}`))
	require.NoError(t, err)
	assert.Equal(t, "add", p[0].Operation)
	assert.Equal(t, "ID=A,B", p[0].Instruction)
	assert.Empty(t, p[0].Data)
}

func TestParseMalformed(t *testing.T) {
	for _, text := range []string{"", "not json", `[{"target":"x"}]`, `[1, 2]`, `"navigate"`,
		`[{"action":"wait"}] trailing`, `[{"action":"wait"}][{"action":"wait"}]`, `{"action":"wait"} }`} {
		_, err := ParseText(text)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, failure.ErrMalformedPlan), text)
	}
}

func TestParseAllowsTrailingWhitespace(t *testing.T) {
	p, err := Parse([]byte("[{\"action\":\"wait\"}]\n\t \n"))
	require.NoError(t, err)
	require.Len(t, p, 1)
}

func TestCleanKeepsURLsInsideStrings(t *testing.T) {
	assert.Equal(t, `{"path": "http://host/x"}`, Clean(`{"path": "http://host/x"} // trailing`))
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"Data Configs", "Grab Bag"}, SplitPath("['Data Configs', 'Grab Bag']"))
	assert.Equal(t, []string{"Data Configs", "Grab Bag"}, SplitPath("Data Configs > Grab Bag"))
	assert.Equal(t, []string{"Dashboard"}, SplitPath("Dashboard"))
	assert.Equal(t, []string{"/admin?a>b"}, SplitPath("/admin?a>b"))
	assert.Nil(t, SplitPath("  "))
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindUpdateForm, NormalizeKind("Fill_Popup"))
	assert.Equal(t, KindWait, NormalizeKind("wait_for_page_load"))
	assert.Equal(t, KindTestCycle, NormalizeKind("fuzz_test"))
	assert.Equal(t, Kind("mystery"), NormalizeKind("mystery"))
}

func TestLogEntryFailed(t *testing.T) {
	assert.True(t, Fail("x", "").Failed())
	assert.True(t, Crash("x", "").Failed())
	assert.False(t, Warning("x", "").Failed())
}
