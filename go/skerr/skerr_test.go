package skerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilError_ReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(nil))
	require.NoError(t, Wrapf(nil, "context %d", 42))
}

func TestWrap_PlainError_AddsCallStack(t *testing.T) {
	err := Wrap(io.EOF)
	wrapped, ok := err.(*ErrorWithContext)
	require.True(t, ok)
	assert.Equal(t, io.EOF, wrapped.Wrapped)
	require.NotEmpty(t, wrapped.CallStack)
	assert.Equal(t, "skerr_test.go", wrapped.CallStack[0].File)
	assert.Contains(t, err.Error(), "EOF At skerr_test.go:")
}

func TestWrap_AlreadyWrapped_ReturnsSameError(t *testing.T) {
	inner := Wrap(io.EOF)
	assert.Same(t, inner, Wrap(inner))
}

func TestWrapf_PlainError_PrependsMessage(t *testing.T) {
	err := Wrapf(io.EOF, "reading job %d", 7)
	assert.Contains(t, err.Error(), "reading job 7: EOF")
}

func TestFmt_FormatsMessage(t *testing.T) {
	err := Fmt("expected %d claims", 3)
	assert.Contains(t, err.Error(), "expected 3 claims")
	require.NotEmpty(t, err.(*ErrorWithContext).CallStack)
}

func TestUnwrap_NestedWrapping_ReturnsOriginal(t *testing.T) {
	err := Wrapf(Wrapf(io.EOF, "inner"), "outer")
	assert.Equal(t, io.EOF, Unwrap(err))
	assert.Equal(t, io.EOF, Unwrap(io.EOF))
}

func TestErrorsIs_SeesThroughWrapping(t *testing.T) {
	sentinel := errors.New("no work")
	assert.True(t, errors.Is(Wrapf(sentinel, "claiming"), sentinel))
	assert.True(t, errors.Is(Wrap(fmt.Errorf("outer: %w", sentinel)), sentinel))
}
