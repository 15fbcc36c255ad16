// Package plan defines action plans, their defensive parser and the
// execution log returned to callers.
package plan

import (
	"bytes"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Kind identifies an action's handler.
type Kind string

const (
	KindNavigate          Kind = "navigate"
	KindCheckbox          Kind = "checkbox"
	KindClick             Kind = "click"
	KindWait              Kind = "wait"
	KindEditRow           Kind = "edit_row"
	KindCloneRow          Kind = "clone_row"
	KindUpdateForm        Kind = "update_form"
	KindSaveForm          Kind = "save_form"
	KindDownload          Kind = "download"
	KindUpload            Kind = "upload"
	KindManipulateCSV     Kind = "manipulate_csv"
	KindScanTabs          Kind = "scan_tabs"
	KindProcessDeployment Kind = "process_deployment"
	KindTestCycle         Kind = "smart_test_cycle"
	KindSectionFuzz       Kind = "fuzz_rbe"
)

var aliases = map[string]Kind{
	"select":             KindClick,
	"fill_popup":         KindUpdateForm,
	"wait_for_page_load": KindWait,
	"fuzz_test":          KindTestCycle,
}

// NormalizeKind lowercases k and resolves aliases.
func NormalizeKind(k string) Kind {
	k = strings.ToLower(strings.TrimSpace(k))
	if alias, ok := aliases[k]; ok {
		return alias
	}
	return Kind(k)
}

// Field is one entry of an ordered field map.
type Field struct {
	Name  string
	Value string
}

// Fields is a field-name to value map that keeps document order.
type Fields []Field

// Get returns the value of name.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Without returns a copy with name removed.
func (f Fields) Without(name string) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if field.Name != name {
			out = append(out, field)
		}
	}
	return out
}

// MarshalJSON writes the fields as an object in order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := jsoniter.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		v, err := jsoniter.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Action is one typed automation instruction.
type Action struct {
	Kind      Kind     `json:"action"`
	Target    string   `json:"target,omitempty"`
	Value     string   `json:"value,omitempty"`
	Path      []string `json:"path,omitempty"`
	Data      Fields   `json:"data,omitempty"`
	Operation string   `json:"operation,omitempty"`
	Options   []string `json:"options,omitempty"`
	// Mode selects the save_form button family: "continue" (default) or
	// "save".
	Mode string `json:"mode,omitempty"`
	// Instruction holds a textual data payload, as used by manipulate_csv.
	Instruction string `json:"instruction,omitempty"`
}

// Plan is an ordered action sequence.
type Plan []Action
