package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCommandErrorWrapsCause(t *testing.T) {
	cause := errors.New("bind: address already in use")
	err := NewCommandError("serve", cause)

	if got := err.Error(); got != "command serve failed: bind: address already in use" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the wrapped cause")
	}
}

func TestFormatterText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, "42 requests"); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	if buf.String() != "42 requests\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"requests": 42}
	if err := NewFormatter(FormatJSON).FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	var back map[string]int
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if back["requests"] != 42 {
		t.Fatalf("round trip lost data: %v", back)
	}
}

func TestFormatterUnknownFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter("yaml").FormatTo(&buf, "x"); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	if buf.String() != "x\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestProgressReporterDrawsBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(10)
	p.Update(5)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "(5/10)") {
		t.Errorf("missing midpoint frame in %q", out)
	}
	if !strings.Contains(out, "100.0%") {
		t.Errorf("missing completion frame in %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestProgressReporterZeroTotalIsSilent(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(0)
	p.Update(3)
	if got := buf.Len(); got != 0 {
		t.Fatalf("expected no output for zero total, got %d bytes", got)
	}
}

func TestSetupSignalHandlerReturnsLiveContext(t *testing.T) {
	ctx := SetupSignalHandler()
	select {
	case <-ctx.Done():
		t.Fatal("context cancelled without a signal")
	default:
	}
}
