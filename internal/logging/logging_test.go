package logging

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func TestNew_Defaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_FileOutputRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.log")
	l, err := New(Config{Level: "debug", Format: "text", Output: path, MaxAgeDays: 3})
	require.NoError(t, err)

	w, ok := l.Out.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, path, w.Filename)
	assert.Equal(t, 100, w.MaxSize)
	assert.Equal(t, 3, w.MaxAge)
}

func TestComponent(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)

	e := Component(l, "engine")
	assert.Equal(t, "engine", e.Data["component"])

	assert.Same(t, e, OrDefault(e, "other"))
	assert.Equal(t, "other", OrDefault(nil, "other").Data["component"])
}
