package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogBridge_WritesContextFields(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "explorer"}, &buf)
	log := NewSlog(&zl)

	ctx := WithSession(context.Background(), "abc")
	ctx = WithOperation(ctx, "filter")
	log.InfoContext(ctx, "query completed", "results", 2, "err", errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "query completed", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "explorer", line["component"])
	assert.Equal(t, "abc", line["session_id"])
	assert.Equal(t, "filter", line["operation"])
	assert.EqualValues(t, 2, line["results"])
	assert.Equal(t, "boom", line["err"])
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSessionFrom(t *testing.T) {
	assert.Empty(t, SessionFrom(context.Background()))
	assert.Equal(t, "s1", SessionFrom(WithSession(context.Background(), "s1")))
	assert.Empty(t, SessionFrom(WithSession(context.Background(), "")))
}
