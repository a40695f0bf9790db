package logging

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStacktrace(t *testing.T) {
	logger, hook := test.NewNullLogger()

	err := errors.WithStack(errors.New("test error"))
	WithStacktrace(logrus.NewEntry(logger), err).Error("test message")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "test message", entry.Message)
	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	assert.Equal(t, err.(stackTracer).StackTrace(), entry.Data[Stacktrace])
}

func TestWithStacktrace_NoStack(t *testing.T) {
	logger, hook := test.NewNullLogger()

	err := plainError("no stack")
	WithStacktrace(logrus.NewEntry(logger), err).Warn("test message")

	require.Len(t, hook.Entries, 1)
	_, ok := hook.LastEntry().Data[Stacktrace]
	assert.False(t, ok)
}

func TestExtractStack_FollowsCause(t *testing.T) {
	inner := errors.New("inner")
	outer := errors.WithMessage(inner, "outer")

	assert.Equal(t, inner.(stackTracer).StackTrace(), ExtractStack(outer))
	assert.Nil(t, ExtractStack(plainError("x")))
	assert.Nil(t, ExtractStack(nil))
}

type plainError string

func (e plainError) Error() string { return string(e) }
