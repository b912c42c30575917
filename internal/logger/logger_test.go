package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_WithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	child := base.With("component", "janitor")
	child.Info("sweep done", "removed", 3)

	out := buf.String()
	assert.Contains(t, out, "component=janitor")
	assert.Contains(t, out, "removed=3")

	buf.Reset()
	base.Info("plain record")
	assert.NotContains(t, buf.String(), "component=janitor")
}
