// Package fuzz derives invalid variants of a CSV row, uploads them to the
// panel and scores whether the panel's validation caught each one.
package fuzz

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"unicode"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"

	"panelqa-runner/internal/csvdoc"
)

// Expected diagnostic keywords.
const (
	KeywordInteger  = "valid integer"
	KeywordPositive = "must be positive"
	KeywordFormat   = "invalid format"
)

// RequiredKeyword is the diagnostic expected when col is left empty.
func RequiredKeyword(col string) string { return col + " is required" }

var (
	requiredFragments = []string{"id", "name", "gate"}
	numericFragments  = []string{"cost", "price", "amount", "stock", "weight"}
)

// Case is one invalid variant of the template row.
type Case struct {
	Name     string
	Column   string
	Row      csvdoc.Row
	Expected string
}

// Generator builds fuzz cases.
type Generator struct {
	randomPayloads int
	rng            *rand.Rand
}

// NewGenerator creates a generator. randomPayloads adds that many seeded
// garbage values per id-like column on top of the fixed payloads.
func NewGenerator(randomPayloads int, seed int64) *Generator {
	return &Generator{randomPayloads: randomPayloads, rng: rand.New(rand.NewSource(seed))}
}

// BaseRow is the template the variants start from: the first row, or a
// row of "Sample" values for an empty document.
func BaseRow(doc *csvdoc.Document) csvdoc.Row {
	if len(doc.Rows) > 0 {
		return doc.Rows[0].Clone()
	}
	row := make(csvdoc.Row, len(doc.Headers))
	for _, h := range doc.Headers {
		row[h] = "Sample"
	}
	return row
}

// Generate derives, in order: emptied required-looking columns (only when
// the template has a value), non-numeric and negative values for numeric
// columns, and malformed or script payloads for id-like columns.
func (g *Generator) Generate(doc *csvdoc.Document) []Case {
	base := BaseRow(doc)
	var cases []Case
	add := func(col, name, value, expected string) {
		row := base.Clone()
		row[col] = value
		cases = append(cases, Case{Name: name, Column: col, Row: row, Expected: expected})
	}

	for _, col := range doc.Headers {
		v := strings.TrimSpace(base[col])
		if containsAny(col, requiredFragments) && v != "" && !strings.EqualFold(v, "nan") {
			add(col, fmt.Sprintf("Empty '%s'", col), "", RequiredKeyword(col))
		}
	}
	for _, col := range doc.Headers {
		if containsAny(col, numericFragments) {
			add(col, fmt.Sprintf("Text in numeric '%s'", col), "NotANumber", KeywordInteger)
			add(col, fmt.Sprintf("Negative '%s'", col), "-9999", KeywordPositive)
		}
	}
	for _, col := range doc.Headers {
		if !containsAny(col, []string{"id"}) {
			continue
		}
		add(col, fmt.Sprintf("Special characters in '%s'", col), "ID_@#$%^&*", KeywordFormat)
		add(col, fmt.Sprintf("Script tag in '%s'", col), "<script>alert(1)</script>", KeywordFormat)
		for i := 0; i < g.randomPayloads; i++ {
			add(col, fmt.Sprintf("Random payload %d in '%s'", i+1, col), g.garbage(), KeywordFormat)
		}
	}
	return cases
}

// garbage draws a printable junk string through a fuzz consumer fed with
// seeded random bytes, so a fixed seed yields the same payloads.
func (g *Generator) garbage() string {
	buf := make([]byte, 64)
	g.rng.Read(buf)
	s, err := fuzzheaders.NewConsumer(buf).GetString()
	if err == nil {
		s = strings.Map(func(r rune) rune {
			if unicode.IsPrint(r) && r != unicode.ReplacementChar {
				return r
			}
			return -1
		}, strings.ToValidUTF8(s, ""))
	}
	if strings.TrimSpace(s) == "" || err != nil {
		s = strconv.FormatInt(g.rng.Int63(), 36)
	}
	return "ID_" + s + "_%$#"
}

// FuzzDocument lays out the cases followed by the clean template row.
func FuzzDocument(doc *csvdoc.Document, cases []Case) *csvdoc.Document {
	out := csvdoc.New(doc.Headers...)
	for _, c := range cases {
		out.Rows = append(out.Rows, c.Row.Clone())
	}
	out.Rows = append(out.Rows, BaseRow(doc))
	return out
}

func containsAny(col string, fragments []string) bool {
	lower := strings.ToLower(col)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
