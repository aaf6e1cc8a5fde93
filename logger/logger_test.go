package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoContextAddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, "info") })

	ctx := WithPrincipalID(WithRequestID(context.Background(), "req-1"), 42)
	InfoContext(ctx, "booking created", "booking_id", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "booking created", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(42), entry["principal_id"])
	assert.Equal(t, float64(7), entry["booking_id"])
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, "info") })

	Debug("hidden")
	assert.Empty(t, buf.String())

	SetOutput(&buf, "debug")
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARNING").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}
