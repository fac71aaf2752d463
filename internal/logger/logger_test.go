package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// resetLogger resets the logger to default state for test isolation
func resetLogger() {
	Init(Options{})
}

// --- Init Tests ---

func TestInit_DefaultLevel_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	Info("test info")
	if !strings.Contains(buf.String(), "test info") {
		t.Error("Info message should be logged at default level")
	}

	buf.Reset()

	Debug("test debug")
	if strings.Contains(buf.String(), "test debug") {
		t.Error("Debug message should not be logged at default level")
	}
}

func TestInit_DebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	Debug("test debug message")
	if !strings.Contains(buf.String(), "test debug message") {
		t.Error("Debug message should be logged when Debug=true")
	}
}

func TestInit_QuietOverridesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Quiet: true, Output: buf})
	defer resetLogger()

	Debug("debug message")
	Warn("warn message")
	Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "warn message") {
		t.Errorf("only errors should be logged when Quiet=true, got %q", output)
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error should be logged when Quiet=true")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("test message")

	output := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("JSON format should produce JSON output, got %q", output)
	}
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("JSON output should contain the message, got %q", output)
	}
}

// --- Component Tests ---

func TestFor_TagsComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	For("browser").Info("Creating browser")

	output := buf.String()
	if !strings.Contains(output, "component=browser") {
		t.Errorf("expected component attribute, got %q", output)
	}
}

func TestWith_ReturnsLoggerWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	With("identity", "hapoalim").Info("test with attrs")

	if !strings.Contains(buf.String(), "identity=hapoalim") {
		t.Errorf("expected attributes in output, got %q", buf.String())
	}
}

func TestInfoContext(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	InfoContext(context.Background(), "info with context")

	if !strings.Contains(buf.String(), "info with context") {
		t.Error("InfoContext should log message")
	}
}

// --- Metadata Tests ---

func TestMetadata_DiscardedByDefault(t *testing.T) {
	resetLogger()
	// Must not panic with no sink configured.
	Metadata("Frame navigated: %s", "https://example.com")
}

func TestMetadata_WritesTimestampedLine(t *testing.T) {
	meta := &bytes.Buffer{}
	Init(Options{Output: &bytes.Buffer{}, MetadataOutput: meta})
	defer resetLogger()

	Metadata("Frame navigated: %s", "https://bank.example/login")
	Metadata("Cloudflare challenge detected")

	lines := strings.Split(strings.TrimSpace(meta.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), meta.String())
	}
	if !strings.HasSuffix(lines[0], "Frame navigated: https://bank.example/login") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "Cloudflare challenge detected") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestMetadata_FlattensNewlines(t *testing.T) {
	meta := &bytes.Buffer{}
	Init(Options{Output: &bytes.Buffer{}, MetadataOutput: meta})
	defer resetLogger()

	Metadata("Cloudflare challenge failed for %s", "a\nb")

	if strings.Count(meta.String(), "\n") != 1 {
		t.Errorf("expected a single line, got %q", meta.String())
	}
}
