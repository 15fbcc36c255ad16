package plan

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"panelqa-runner/internal/failure"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

var fenceRe = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// Clean strips markdown fences and // line comments outside of string
// literals.
func Clean(text string) string {
	text = fenceRe.ReplaceAllString(text, "")
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(text) && text[i+1] == '/' {
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return strings.TrimSpace(b.String())
}

// ParseText cleans and parses a textual plan. It accepts an action list, a
// single action object, or a stored scenario object carrying a "plan" or
// "steps" list.
func ParseText(text string) (Plan, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, failure.MalformedPlan("plan.parse", errors.New("empty plan document"))
	}
	return Parse([]byte(cleaned))
}

// Parse parses a JSON plan document.
func Parse(data []byte) (Plan, error) {
	it := jsoniter.ParseBytes(api, data)
	var p Plan
	var err error
	switch it.WhatIsNext() {
	case jsoniter.ArrayValue:
		p, err = parseList(it)
	case jsoniter.ObjectValue:
		p, err = parseObject(it.SkipAndReturnBytes())
	default:
		err = errors.New("plan must be a JSON array or object")
	}
	if err == nil && it.Error != nil && it.Error != io.EOF {
		err = it.Error
	}
	if err == nil && (it.WhatIsNext() != jsoniter.InvalidValue || it.Error != io.EOF) {
		err = errors.New("unexpected content after the plan")
	}
	if err != nil {
		return nil, failure.MalformedPlan("plan.parse", err)
	}
	return p, nil
}

func parseList(it *jsoniter.Iterator) (Plan, error) {
	var p Plan
	var err error
	it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		if it.WhatIsNext() != jsoniter.ObjectValue {
			err = fmt.Errorf("step %d is not an object", len(p)+1)
			return false
		}
		var a Action
		a, err = decodeAction(it.SkipAndReturnBytes())
		if err != nil {
			err = fmt.Errorf("step %d: %w", len(p)+1, err)
			return false
		}
		p = append(p, a)
		return true
	})
	if err == nil && it.Error != nil && it.Error != io.EOF {
		err = it.Error
	}
	return p, err
}

func parseObject(raw []byte) (Plan, error) {
	keys := make(map[string][]byte)
	it := jsoniter.ParseBytes(api, raw)
	it.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		keys[strings.ToLower(key)] = it.SkipAndReturnBytes()
		return true
	})
	if it.Error != nil && it.Error != io.EOF {
		return nil, it.Error
	}
	if _, ok := keys["action"]; !ok {
		for _, k := range []string{"plan", "steps"} {
			if list, ok := keys[k]; ok {
				inner := jsoniter.ParseBytes(api, list)
				if inner.WhatIsNext() != jsoniter.ArrayValue {
					return nil, fmt.Errorf("%q must be a list", k)
				}
				return parseList(inner)
			}
		}
	}
	a, err := decodeAction(raw)
	if err != nil {
		return nil, err
	}
	return Plan{a}, nil
}

func decodeAction(raw []byte) (Action, error) {
	var a Action
	it := jsoniter.ParseBytes(api, raw)
	it.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		switch strings.ToLower(key) {
		case "action", "kind", "type":
			a.Kind = NormalizeKind(readString(it))
		case "target":
			a.Target = readString(it)
		case "value":
			a.Value = readString(it)
		case "path":
			a.Path = readPath(it)
		case "data":
			if it.WhatIsNext() == jsoniter.ObjectValue {
				a.Data = readFields(it)
			} else {
				a.Instruction = readString(it)
			}
		case "operation":
			a.Operation = strings.ToLower(readString(it))
		case "options":
			a.Options = readStrings(it)
		case "mode":
			a.Mode = strings.ToLower(readString(it))
		default:
			it.Skip()
		}
		return true
	})
	if it.Error != nil && it.Error != io.EOF {
		return Action{}, it.Error
	}
	if a.Kind == "" {
		return Action{}, errors.New(`missing "action"`)
	}
	return a, nil
}

// readString reads any scalar as a string. Compound values are kept as
// their raw JSON text.
func readString(it *jsoniter.Iterator) string {
	switch it.WhatIsNext() {
	case jsoniter.StringValue:
		return it.ReadString()
	case jsoniter.NumberValue:
		return it.ReadNumber().String()
	case jsoniter.BoolValue:
		if it.ReadBool() {
			return "true"
		}
		return "false"
	case jsoniter.NilValue:
		it.ReadNil()
		return ""
	default:
		return string(it.SkipAndReturnBytes())
	}
}

func readStrings(it *jsoniter.Iterator) []string {
	if it.WhatIsNext() != jsoniter.ArrayValue {
		if s := readString(it); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		out = append(out, readString(it))
		return true
	})
	return out
}

func readFields(it *jsoniter.Iterator) Fields {
	var out Fields
	it.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		out = append(out, Field{Name: key, Value: readString(it)})
		return true
	})
	return out
}

func readPath(it *jsoniter.Iterator) []string {
	if it.WhatIsNext() == jsoniter.ArrayValue {
		return readStrings(it)
	}
	return SplitPath(readString(it))
}

// SplitPath interprets a textual navigation path: a list literal such as
// "['Data Configs', 'Grab Bag']", a "A > B" breadcrumb, or a single label.
func SplitPath(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var parts []string
		for _, part := range strings.Split(s[1:len(s)-1], ",") {
			part = strings.Trim(strings.TrimSpace(part), `'"`)
			if part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}
	if !LooksLikeURL(s) && strings.Contains(s, ">") {
		var parts []string
		for _, part := range strings.Split(s, ">") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}
	return []string{s}
}

// LooksLikeURL reports whether a navigation target is an address rather
// than a menu label.
func LooksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "/")
}
