package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func newBufLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cfg.Writer = buf
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return logger, buf
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewRejectsBadFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONOutput(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "info", Format: FormatJSON})
	logger.Info("mirror selected", "mirror_id", 3, "prefix", "ghcr")
	logger.Shutdown()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "mirror selected" || rec["prefix"] != "ghcr" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestTextOutput(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "info", Format: FormatText})
	logger.Info("probe sweep complete", "mirrors", 4)
	logger.Shutdown()

	if !strings.Contains(buf.String(), "probe sweep complete") {
		t.Fatalf("message missing from %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "warn", Format: FormatJSON})
	logger.Debug("noise")
	logger.Info("noise")
	logger.Warn("queue full")
	logger.Shutdown()

	out := buf.String()
	if strings.Contains(out, "noise") {
		t.Fatalf("below-level records leaked: %q", out)
	}
	if !strings.Contains(out, "queue full") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestRedactionThroughLoggerMethods(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "info", Format: FormatJSON, RedactPII: true})
	logger.Info("retrying with credentials",
		"authorization", "Basic YWxpY2U6czNjcjN0",
		"upstream", "harbor.example")
	logger.Shutdown()

	out := buf.String()
	if strings.Contains(out, "YWxpY2U6czNjcjN0") {
		t.Fatalf("basic credentials leaked: %q", out)
	}
	if !strings.Contains(out, "harbor.example") {
		t.Fatalf("non-sensitive field lost: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "info", Format: FormatJSON})
	logger.With("component", "prober").Info("sweep started")
	logger.Shutdown()

	if !strings.Contains(buf.String(), `"component":"prober"`) {
		t.Fatalf("With field missing: %q", buf.String())
	}
}

func TestWithContextPicksUpRequestFields(t *testing.T) {
	logger, buf := newBufLogger(t, Config{Level: "info", Format: FormatJSON})

	ctx := WithRequestID(context.Background(), "req-9")
	ctx = WithRepository(ctx, "library/nginx")
	logger.WithContext(ctx).Info("forwarding")
	logger.Shutdown()

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-9"`) || !strings.Contains(out, `"repository":"library/nginx"`) {
		t.Fatalf("context fields missing: %q", out)
	}
}

func TestDroppedCountsOverflow(t *testing.T) {
	// blockingWriter stalls the drain goroutine so the buffer fills.
	release := make(chan struct{})
	logger, err := New(Config{
		Level: "info", Format: FormatJSON, BufferSize: 1,
		Writer: writerFunc(func(p []byte) (int, error) {
			<-release
			return len(p), nil
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 50; i++ {
		logger.Info("flood", "i", i)
	}
	if logger.Dropped() == 0 {
		t.Error("expected drops with a stalled writer and buffer of 1")
	}
	close(release)
	logger.Shutdown()
}

func TestConcurrentLoggingIsSafe(t *testing.T) {
	logger, _ := newBufLogger(t, Config{Level: "info", Format: FormatJSON, BufferSize: 4096})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				logger.Info("concurrent", "j", j)
			}
		}()
	}
	wg.Wait()
	logger.Shutdown()
}

func TestShutdownIsIdempotent(t *testing.T) {
	logger, _ := newBufLogger(t, Config{Level: "info", Format: FormatJSON})
	logger.Shutdown()
	logger.Shutdown()
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
