package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter collects records and writes them on Close: a lone record as
// an object, several as an array.
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
	recs   []Record
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w), pretty: pretty, indent: indent}
}

func (w *JSONWriter) Write(rec Record) error {
	w.recs = append(w.recs, rec)
	return nil
}

func (w *JSONWriter) Close() error {
	if len(w.recs) == 0 {
		return nil
	}
	var v any = w.recs
	if len(w.recs) == 1 {
		v = w.recs[0]
	}

	enc := json.NewEncoder(w.w)
	if w.pretty {
		enc.SetIndent("", w.indent)
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	w.recs = nil
	return w.w.Flush()
}

// JSONLWriter writes one compact JSON record per line as records arrive.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

func (w *JSONLWriter) Write(rec Record) error {
	if err := json.NewEncoder(w.w).Encode(rec); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}
