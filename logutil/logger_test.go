package logutil

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetLogger_SameName(t *testing.T) {
	a := GetLogger("remset-test")
	b := GetLogger("remset-test")
	assert.Same(t, a, b)
	assert.NotSame(t, a, GetLogger("remset-test-other"))
}

func TestLogger_Format(t *testing.T) {
	l := GetLogger("remset-format")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithField("card", 3).Errorf("card %d is clean", 3)

	out := buf.String()
	assert.Contains(t, out, "remset-format[")
	assert.Contains(t, out, "<ERROR>: card 3 is clean")
	assert.Contains(t, out, "map[card:3]")
}

func TestSetLogLevel(t *testing.T) {
	l := GetLogger("remset-level")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	SetLogLevel(logrus.WarnLevel)
	defer SetLogLevel(logrus.InfoLevel)

	l.Infof("hidden")
	assert.Equal(t, 0, buf.Len())

	l.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}
