package csvdoc

import (
	"errors"
	"fmt"
	"strings"
)

// Operation is a mutation verb.
type Operation string

const (
	OpAdd    Operation = "add"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Errors returned by Apply. Either one leaves the document untouched.
var (
	ErrSyntax        = errors.New("invalid instruction")
	ErrUnknownColumn = errors.New("column not found")
)

// ParseOperation normalizes an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OpAdd, OpEdit, OpDelete:
		return op, nil
	case "remove":
		return OpDelete, nil
	case "update":
		return OpEdit, nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrSyntax, s)
	}
}

// Result describes a successful mutation.
type Result struct {
	Op       Operation
	Affected int
	Message  string
}

// Apply runs one instruction against doc.
//
//	add:    Column=v1,v2,...     one new row per value, cloned from the template
//	edit:   ColA=match|ColB=new  set ColB on every row whose ColA equals match
//	delete: Column=value         drop every row whose Column equals value
//
// ':' is accepted in place of '='. Comparisons are exact after trimming.
// Any error leaves doc unchanged.
func Apply(doc *Document, op Operation, instruction string) (Result, error) {
	switch op {
	case OpAdd:
		return applyAdd(doc, instruction)
	case OpEdit:
		return applyEdit(doc, instruction)
	case OpDelete:
		return applyDelete(doc, instruction)
	default:
		return Result{}, fmt.Errorf("%w: unknown operation %q", ErrSyntax, op)
	}
}

func applyAdd(doc *Document, instruction string) (Result, error) {
	col, vals, ok := splitPair(instruction)
	if !ok {
		return Result{}, fmt.Errorf("%w: add expects Column=v1,v2", ErrSyntax)
	}
	h, err := column(doc, col)
	if err != nil {
		return Result{}, err
	}
	// Every comma-separated value adds a row, empty ones included.
	values := strings.Split(vals, ",")
	blank := true
	for i, v := range values {
		values[i] = cleanValue(v)
		blank = blank && values[i] == ""
	}
	if blank {
		return Result{}, fmt.Errorf("%w: add has no values", ErrSyntax)
	}
	tmpl := doc.template()
	for _, v := range values {
		row := tmpl.Clone()
		row[h] = v
		doc.Rows = append(doc.Rows, row)
	}
	return Result{Op: OpAdd, Affected: len(values), Message: fmt.Sprintf("Added %d rows", len(values))}, nil
}

func applyEdit(doc *Document, instruction string) (Result, error) {
	instr := instruction
	if strings.Count(instr, "|") > 1 && strings.Contains(instr, ",") {
		instr = strings.SplitN(instr, ",", 2)[0]
	}
	match, set, ok := strings.Cut(instr, "|")
	if !ok {
		return Result{}, fmt.Errorf("%w: edit expects ColA=match|ColB=value", ErrSyntax)
	}
	mc, mv, ok1 := splitPair(match)
	sc, sv, ok2 := splitPair(set)
	if !ok1 || !ok2 {
		return Result{}, fmt.Errorf("%w: edit expects ColA=match|ColB=value", ErrSyntax)
	}
	mh, err := column(doc, mc)
	if err != nil {
		return Result{}, err
	}
	sh, err := column(doc, sc)
	if err != nil {
		return Result{}, err
	}
	mv, sv = cleanValue(mv), cleanValue(sv)

	n := 0
	for _, row := range doc.Rows {
		if strings.TrimSpace(row[mh]) == mv {
			row[sh] = sv
			n++
		}
	}
	return Result{Op: OpEdit, Affected: n, Message: fmt.Sprintf("Edited %d rows (%s=%s)", n, sh, sv)}, nil
}

func applyDelete(doc *Document, instruction string) (Result, error) {
	col, val, ok := splitPair(instruction)
	if !ok {
		return Result{}, fmt.Errorf("%w: delete expects Column=value", ErrSyntax)
	}
	h, err := column(doc, col)
	if err != nil {
		return Result{}, err
	}
	val = cleanValue(val)
	kept := doc.Rows[:0:0]
	for _, row := range doc.Rows {
		if strings.TrimSpace(row[h]) != val {
			kept = append(kept, row)
		}
	}
	n := len(doc.Rows) - len(kept)
	doc.Rows = kept
	return Result{Op: OpDelete, Affected: n, Message: fmt.Sprintf("Deleted %d rows", n)}, nil
}

// splitPair splits on the first '=' or, failing that, the first ':'.
func splitPair(s string) (string, string, bool) {
	for _, sep := range []string{"=", ":"} {
		if k, v, ok := strings.Cut(s, sep); ok && strings.TrimSpace(k) != "" {
			return strings.TrimSpace(k), v, true
		}
	}
	return "", "", false
}

// cleanValue trims whitespace and stray commas from both ends.
func cleanValue(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), ","))
}

func column(doc *Document, name string) (string, error) {
	h, ok := doc.Column(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, strings.TrimSpace(name))
	}
	return h, nil
}

// Manipulate loads name from the store, applies the instruction and
// writes the whole file back. Nothing is written when Apply fails.
func (s *Store) Manipulate(name string, op Operation, instruction string) (Result, error) {
	doc, err := s.Load(name)
	if err != nil {
		return Result{}, err
	}
	res, err := Apply(doc, op, instruction)
	if err != nil {
		return Result{}, err
	}
	if err := s.Save(name, doc); err != nil {
		return Result{}, err
	}
	return res, nil
}
