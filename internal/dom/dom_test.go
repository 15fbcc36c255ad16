package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		inTable bool
		want    WidgetKind
	}{
		{"plain text", Snapshot{Tag: "input", Type: "text"}, false, WidgetText},
		{"number", Snapshot{Tag: "input", Type: "number", Class: "form-control cost"}, false, WidgetText},
		{"radio", Snapshot{Tag: "input", Type: "radio"}, false, WidgetRadio},
		{"checkbox", Snapshot{Tag: "input", Type: "checkbox"}, false, WidgetToggle},
		{"toggle class", Snapshot{Tag: "input", Class: "tgl tgl-light"}, false, WidgetToggle},
		{"select2 hidden select", Snapshot{Tag: "select", Class: "select2-hidden-accessible"}, false, WidgetDropdown},
		{"select2 container", Snapshot{Tag: "span", Class: "select2 select2-container"}, false, WidgetDropdown},
		{"native select", Snapshot{Tag: "select"}, false, WidgetDropdown},
		{"table cell input", Snapshot{Tag: "input", Type: "text"}, true, WidgetTableCell},
		{"table cell checkbox stays toggle", Snapshot{Tag: "input", Type: "checkbox"}, true, WidgetToggle},
		{"combobox role", Snapshot{Tag: "div", Role: "combobox"}, false, WidgetDropdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.snap, tt.inTable))
		})
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", Literal("plain"))
	assert.Equal(t, `"it's"`, Literal("it's"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, Literal(`a'b"c`))
}

func TestTextHelpers(t *testing.T) {
	assert.True(t, EqualFold("  Data   Configs ", "data configs"))
	assert.True(t, ContainsFold("Data Configs Archive", "configs"))
	assert.False(t, ContainsFold("Data", "Data Configs"))
	assert.Equal(t, "first", FirstLine("\n  first \nsecond"))

	re := LooseMatcher("Grab Bag")
	assert.True(t, re.MatchString("grab\n  bag"))
	assert.False(t, re.MatchString("grabbag"))

	assert.True(t, IsBooleanWord("Enable"))
	assert.False(t, IsBooleanWord("Gold"))
	assert.True(t, Truthy("YES"))
	assert.False(t, Truthy("off"))
}

func TestHasClassToken(t *testing.T) {
	assert.True(t, HasClassToken("btn btn-save", "btn-save"))
	assert.False(t, HasClassToken("btn-save-continue", "btn-save"))
}
