package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// Code that logs through logger.Slog() (or a slog.SetDefault of it)
// bypasses Logger's own Debug/Info/Warn/Error wrappers; redaction must
// still apply because it lives in the handler chain.
func TestLogger_Slog_RedactsAmbientUsage(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:      "info",
		Format:     "json",
		RedactPII:  true,
		BufferSize: 100,
		Writer:     buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Shutdown()

	ambient := logger.Slog().With("component", "engine")
	ambient.Info("upstream attempt failed",
		"authorization", "Bearer eyabc123xyz789",
		"password", "hunter2hunter2",
	)

	logger.Shutdown()
	output := buf.String()

	for _, v := range []string{"eyabc123xyz789", "hunter2hunter2"} {
		if strings.Contains(output, v) {
			t.Errorf("credential value %q leaked through ambient slog usage: %s", v, output)
		}
	}
	if !strings.Contains(output, "upstream attempt failed") {
		t.Errorf("expected message in output: %s", output)
	}
	if !strings.Contains(output, "component") {
		t.Errorf("expected With()-attached attrs to survive redaction: %s", output)
	}
}

func TestLogger_Slog_NoRedactionWhenDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:      "info",
		Format:     "json",
		RedactPII:  false,
		BufferSize: 100,
		Writer:     buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Shutdown()

	logger.Slog().Info("plain message", "password", "hunter2hunter2")

	logger.Shutdown()
	output := buf.String()
	if !strings.Contains(output, "hunter2hunter2") {
		t.Errorf("expected password to pass through unredacted when RedactPII is false: %s", output)
	}
}

func TestNewRedactingHandler_NilRedactorPassesThrough(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.NewJSONHandler(buf, nil)
	h := newRedactingHandler(base, nil)
	if h != slog.Handler(base) {
		t.Error("newRedactingHandler(base, nil) should return base unchanged")
	}
}
