package logging

import (
	"bytes"
	stdlog "log"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "JSON", Output: &buf})
	require.NoError(t, err)

	Component(l, "pool").WithField("node", 3).Debug("worker started")

	out := buf.String()
	assert.Contains(t, out, `"component":"pool"`)
	assert.Contains(t, out, `"node":3`)
	assert.Contains(t, out, `"msg":"worker started"`)
	assert.Contains(t, out, `"level":"debug"`)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "xml")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRedirectStdLog(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	restore := RedirectStdLog(l)
	stdlog.Printf("http: accept error %d", 7)
	restore()

	out := buf.String()
	assert.Contains(t, out, `"msg":"http: accept error 7"`)
	assert.Contains(t, out, `"component":"stdlog"`)
}
