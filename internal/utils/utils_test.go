package utils

import (
	"bytes"
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestAppErrorWraps(t *testing.T) {
	err := NewAppError("load model", "open document", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected wrapped error to match")
	}
	if !strings.Contains(err.Error(), "load model: open document") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if got := NewAppError("op", "msg", nil).Error(); got != "op: msg" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestNewLoggerToFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
