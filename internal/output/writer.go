// Package output writes per-account scrape records as json, jsonl or yaml.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmylchreest/sessionkeeper/internal/scrape"
	"github.com/jmylchreest/sessionkeeper/internal/version"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts a format name case-insensitively ("yml" is yaml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Challenge summarizes one challenge met during a run.
type Challenge struct {
	ID      string `json:"id" yaml:"id"`
	URL     string `json:"url" yaml:"url"`
	State   string `json:"state" yaml:"state"`
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Record is the output for one account run.
type Record struct {
	CompanyID  string        `json:"companyId" yaml:"companyId"`
	StartedAt  time.Time     `json:"startedAt" yaml:"startedAt"`
	DurationMs int64         `json:"durationMs" yaml:"durationMs"`
	Result     scrape.Result `json:"result" yaml:"result"`
	Domains    []string      `json:"domains,omitempty" yaml:"domains,omitempty"`
	Challenges []Challenge   `json:"challenges,omitempty" yaml:"challenges,omitempty"`
	Tool       string        `json:"tool" yaml:"tool"`
}

// NewRecord stamps a record for companyID that started at start.
func NewRecord(companyID string, start time.Time, result scrape.Result) Record {
	return Record{
		CompanyID:  companyID,
		StartedAt:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Result:     result,
		Tool:       "sessionkeeper/" + version.String(),
	}
}

// Writer serializes records.
type Writer interface {
	// Write outputs one record. Buffered formats emit on Close.
	Write(rec Record) error

	// Close flushes pending output.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty bool
	indent string
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
