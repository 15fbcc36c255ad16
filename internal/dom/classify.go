package dom

import "strings"

// WidgetKind is the fill protocol an element needs.
type WidgetKind int

const (
	WidgetText WidgetKind = iota
	WidgetDropdown
	WidgetRadio
	WidgetToggle
	WidgetTableCell
)

func (k WidgetKind) String() string {
	switch k {
	case WidgetDropdown:
		return "dropdown"
	case WidgetRadio:
		return "radio"
	case WidgetToggle:
		return "toggle"
	case WidgetTableCell:
		return "table-cell"
	default:
		return "text"
	}
}

// Classify derives the widget kind from a snapshot. inTable is set when the
// element was resolved through a table column header.
func Classify(s Snapshot, inTable bool) WidgetKind {
	tag := strings.ToLower(s.Tag)
	typ := strings.ToLower(s.Type)
	class := strings.ToLower(s.Class)

	switch {
	case typ == "radio":
		return WidgetRadio
	case typ == "checkbox", strings.Contains(class, "tgl"), strings.Contains(class, "toggle"):
		return WidgetToggle
	case strings.Contains(class, "select2"), strings.Contains(class, "selection"), strings.Contains(class, "combobox"),
		s.Role == "combobox":
		return WidgetDropdown
	case inTable:
		return WidgetTableCell
	case tag == "select":
		return WidgetDropdown
	}
	return WidgetText
}

// IsNativeSelect reports whether s is a plain <select> element.
func IsNativeSelect(s Snapshot) bool {
	return strings.EqualFold(s.Tag, "select")
}
