package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSelection(t *testing.T) {
	m := New()
	_, ok := m.LastSelected()
	assert.False(t, ok)

	m.RecordSelection("BAG_001")
	m.RecordSelection("BAG_007")

	last, ok := m.LastSelected()
	assert.True(t, ok)
	assert.Equal(t, "BAG_007", last)
	assert.Equal(t, []string{"BAG_001", "BAG_007"}, m.SelectedIDs())
}

func TestResolveSentinel(t *testing.T) {
	m := New()
	assert.Equal(t, "", m.Resolve(LastSelected))
	m.RecordSelection("row-9")
	assert.Equal(t, "row-9", m.Resolve(LastSelected))
	assert.Equal(t, "literal", m.Resolve("literal"))
}

func TestAuxValues(t *testing.T) {
	m := New()
	m.Set(LastFuzzedFile, "fuzzed_items.csv")
	v, ok := m.Get(LastFuzzedFile)
	assert.True(t, ok)
	assert.Equal(t, "fuzzed_items.csv", v)

	snap := m.Snapshot()
	assert.Equal(t, "fuzzed_items.csv", snap[LastFuzzedFile])
	assert.Equal(t, "", snap[LastSelected])
}

func TestSelectedIDsIsCopy(t *testing.T) {
	m := New()
	m.RecordSelection("a")
	ids := m.SelectedIDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a"}, m.SelectedIDs())
}
