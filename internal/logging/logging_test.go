package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json output at info", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "info", "json")
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("position published", slog.String("vehicle", "22/818"))

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, `"msg":"position published"`)
		assert.Contains(t, out, `"vehicle":"22/818"`)
	})

	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "debug", "text")
		require.NoError(t, err)
		logger.Debug("dropped", "reason", "stale_timestamp")
		assert.Contains(t, buf.String(), "reason=stale_timestamp")
	})

	t.Run("rejects unknown settings", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "loud", "json")
		assert.Error(t, err)
		_, err = New(&bytes.Buffer{}, "info", "xml")
		assert.Error(t, err)
	})
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)

	LogError(logger, "publish failed", errors.New("nats: timeout"), slog.String("subject", "gtfsrt.vp.22_818"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"error":"nats: timeout"`)
	assert.Contains(t, out, `"subject":"gtfsrt.vp.22_818"`)

	assert.NotPanics(t, func() { LogError(nil, "ignored", errors.New("x")) })
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("already closed") }

func TestSafeClose(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)

	SafeClose(failingCloser{}, logger, "database")
	assert.Contains(t, buf.String(), `"resource":"database"`)
}
