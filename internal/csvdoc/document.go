// Package csvdoc loads, mutates and writes the CSV files exchanged with the
// admin panel, including multi-section files whose parts are headed by
// [SECTION] lines.
package csvdoc

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row maps a header to its cell value.
type Row map[string]string

// Clone returns an independent copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Document is a CSV file held in memory. Headers are fixed for the
// document's lifetime.
type Document struct {
	Headers []string
	Rows    []Row
	// Template, when set, seeds rows added by the add instruction instead
	// of the first row.
	Template Row
}

// New creates an empty document with the given headers.
func New(headers ...string) *Document {
	return &Document{Headers: append([]string(nil), headers...)}
}

// Parse reads a document. A leading byte order mark is dropped, header
// names are trimmed and must be unique, and short rows are padded with
// empty cells.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseBytes(data)
}

func parseBytes(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv: empty document")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	doc := &Document{Headers: make([]string, 0, len(header))}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		h = strings.TrimSpace(h)
		if seen[h] {
			return nil, fmt.Errorf("csv: duplicate header %q", h)
		}
		seen[h] = true
		doc.Headers = append(doc.Headers, h)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		row := make(Row, len(doc.Headers))
		for i, h := range doc.Headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		doc.Rows = append(doc.Rows, row)
	}
	return doc, nil
}

// Encode writes the document with a header line.
func (d *Document) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Headers); err != nil {
		return err
	}
	rec := make([]string, len(d.Headers))
	for _, row := range d.Rows {
		for i, h := range d.Headers {
			rec[i] = row[h]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Bytes returns the encoded document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Column returns the header matching name case-insensitively after
// trimming.
func (d *Document) Column(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, h := range d.Headers {
		if strings.EqualFold(h, name) {
			return h, true
		}
	}
	return "", false
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	out := &Document{Headers: append([]string(nil), d.Headers...)}
	for _, r := range d.Rows {
		out.Rows = append(out.Rows, r.Clone())
	}
	if d.Template != nil {
		out.Template = d.Template.Clone()
	}
	return out
}

// BlankRow returns a row with every header empty.
func (d *Document) BlankRow() Row {
	row := make(Row, len(d.Headers))
	for _, h := range d.Headers {
		row[h] = ""
	}
	return row
}

// template is the row new rows are cloned from.
func (d *Document) template() Row {
	switch {
	case d.Template != nil:
		return d.Template.Clone()
	case len(d.Rows) > 0:
		return d.Rows[0].Clone()
	default:
		return d.BlankRow()
	}
}

// DropColumn returns a copy without header h. It is the one operation that
// changes the header set and is only used to build malformed test files.
func (d *Document) DropColumn(h string) *Document {
	out := d.Clone()
	out.Headers = out.Headers[:0]
	for _, name := range d.Headers {
		if name != h {
			out.Headers = append(out.Headers, name)
		}
	}
	for _, r := range out.Rows {
		delete(r, h)
	}
	return out
}
