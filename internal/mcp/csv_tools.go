package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/fuzz"
)

type ManipulateCSVTool struct {
	store *csvdoc.Store
}

func (t *ManipulateCSVTool) Name() string { return "manipulate-csv" }
func (t *ManipulateCSVTool) Description() string {
	return `Add, edit or delete rows of a CSV in the working directory.

INSTRUCTION SYNTAX:
- add:    Column=v1,v2,...      one new row per value, cloned from the first row
- edit:   ColA=match|ColB=new   set ColB on every row whose ColA equals match
- delete: Column=value          drop every row whose Column equals value

Pass "fields" (["ColA=match","ColB=new"]) instead of "instruction" to build
the pipe-joined form automatically. The file is rewritten in one rename; on
any error it is left untouched.

Returns: {file, operation, affected, message}`
}
func (t *ManipulateCSVTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file":        stringProp("CSV file name inside the working directory"),
			"operation":   stringProp("add | edit | delete"),
			"instruction": stringProp("Mutation instruction"),
			"fields": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Alternative to instruction: ordered Column=value pairs",
			},
		},
		"required": []string{"file", "operation"},
	}
}
func (t *ManipulateCSVTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	file := fuzz.CleanFileName(getStringArg(args, "file"))
	op, err := csvdoc.ParseOperation(getStringArg(args, "operation"))
	if err != nil {
		return nil, err
	}
	instruction := getStringArg(args, "instruction")
	if instruction == "" {
		instruction = strings.Join(getPairsArg(args, "fields"), "|")
	}
	if instruction == "" {
		return nil, fmt.Errorf("instruction or fields is required")
	}

	res, err := t.store.Manipulate(file, op, instruction)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"file":      file,
		"operation": res.Op,
		"affected":  res.Affected,
		"message":   res.Message,
	}, nil
}

type GenerateFuzzCasesTool struct {
	store *csvdoc.Store
	gen   *fuzz.Generator
	mu    sync.Mutex
}

type fuzzCase struct {
	Name     string     `json:"name"`
	Column   string     `json:"column"`
	Expected string     `json:"expected"`
	Row      csvdoc.Row `json:"row"`
}

func (t *GenerateFuzzCasesTool) Name() string { return "generate-fuzz-cases" }
func (t *GenerateFuzzCasesTool) Description() string {
	return `Derive invalid variants of a CSV's first row without uploading anything.

Cases cover emptied required columns, non-numeric and negative values in
numeric columns, and malformed or script payloads in id-like columns. Each
case carries the diagnostic keyword the panel is expected to show.

Set write=true to save the variants plus the clean row as fuzzed_<file>,
the same file smart_test_cycle uploads.

Returns: {file, count, cases:[{name,column,expected,row}], written}`
}
func (t *GenerateFuzzCasesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file": stringProp("CSV file name inside the working directory"),
			"write": map[string]interface{}{
				"type":        "boolean",
				"description": "Write the fuzzed file (default false)",
			},
		},
		"required": []string{"file"},
	}
}
func (t *GenerateFuzzCasesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	file := fuzz.CleanFileName(getStringArg(args, "file"))
	doc, err := t.store.Load(file)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	cases := t.gen.Generate(doc)
	t.mu.Unlock()

	out := make([]fuzzCase, 0, len(cases))
	for _, c := range cases {
		out = append(out, fuzzCase{Name: c.Name, Column: c.Column, Expected: c.Expected, Row: c.Row})
	}
	result := map[string]interface{}{
		"file":  file,
		"count": len(out),
		"cases": out,
	}
	if getBoolArg(args, "write", false) {
		name := fuzz.FuzzedPrefix + file
		if err := t.store.Save(name, fuzz.FuzzDocument(doc, cases)); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		result["written"] = name
	}
	return result, nil
}

type ListFilesTool struct {
	store *csvdoc.Store
}

func (t *ListFilesTool) Name() string { return "list-files" }
func (t *ListFilesTool) Description() string {
	return `List the working directory, newest first.

Downloads land here, and manipulate-csv, upload and the fuzz cycles address
files by these names.

Returns: {dir, files:[{name,size,modified}]}`
}
func (t *ListFilesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListFilesTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	files, err := t.store.List()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"dir": t.store.Dir(), "files": files}, nil
}
