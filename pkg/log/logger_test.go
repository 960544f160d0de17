package log

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithComponentAndSession(t *testing.T) {
	var buf bytes.Buffer
	ctx, cleanup := NewContextWithWriter(context.Background(), &buf, true)

	ctx = WithSession(WithComponent(ctx, "memory"), "s-1")
	FromCtx(ctx).Info().Msg("hello")

	cleanup()
	time.Sleep(20 * time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "s-1")
}

func TestGooseLoggerPrintfIsDebug(t *testing.T) {
	var buf bytes.Buffer
	ctx, cleanup := NewContextWithWriter(context.Background(), &buf, false)

	NewGooseLoggerFromCtx(ctx).Printf("OK   %s\n", "0001_init.sql")

	cleanup()
	time.Sleep(20 * time.Millisecond)

	assert.NotContains(t, buf.String(), "0001_init.sql")
}
