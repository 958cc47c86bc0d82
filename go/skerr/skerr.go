// Package skerr provides helpers for wrapping errors with call stack
// context as they propagate up through a program.
package skerr

import (
	"fmt"
	"runtime"
	"strings"
)

const stackDepth = 6

// StackTrace identifies one frame of a call stack.
type StackTrace struct {
	File string
	Line int
}

func (st StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// ErrorWithContext is an error wrapped with a message and the call stack at
// the point of wrapping.
type ErrorWithContext struct {
	// Wrapped is the original error, possibly nil for errors created with Fmt.
	Wrapped error
	// CallStack is the stack at the point Wrap/Wrapf/Fmt was called, innermost
	// frame first.
	CallStack []StackTrace
	// Message is an optional context string prepended to the wrapped error.
	Message string
}

func (err *ErrorWithContext) Error() string {
	var sb strings.Builder
	if err.Message != "" {
		sb.WriteString(err.Message)
	}
	if err.Wrapped != nil {
		if err.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(err.Wrapped.Error())
	}
	if len(err.CallStack) > 0 {
		sb.WriteString(" At")
		for _, st := range err.CallStack {
			sb.WriteString(" ")
			sb.WriteString(st.String())
		}
	}
	return sb.String()
}

// Unwrap supports errors.Is and errors.As.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

// CallStack returns up to depth frames of the current call stack, skipping
// startAt frames (0 means include the caller of CallStack itself).
func CallStack(depth, startAt int) []StackTrace {
	stack := make([]StackTrace, 0, depth)
	for i := startAt; len(stack) < depth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		slash := strings.LastIndex(file, "/")
		if slash >= 0 {
			file = file[slash+1:]
		}
		stack = append(stack, StackTrace{File: file, Line: line})
	}
	return stack
}

// Wrap adds the current call stack to err. Returns nil if err is nil so that
// it can be used in tail position. If err is already wrapped, it is returned
// unchanged to keep the innermost stack.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrorWithContext); ok {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(stackDepth, 2),
	}
}

// Unwrap returns the innermost error if err was created by this package,
// otherwise err itself.
func Unwrap(err error) error {
	for {
		wrapped, ok := err.(*ErrorWithContext)
		if !ok || wrapped.Wrapped == nil {
			return err
		}
		err = wrapped.Wrapped
	}
}

// Wrapf wraps err with a formatted message and the current call stack.
// Returns nil if err is nil.
func Wrapf(err error, fmtStr string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(stackDepth, 2),
		Message:   fmt.Sprintf(fmtStr, args...),
	}
}

// Fmt creates a new error with a formatted message and the current call
// stack.
func Fmt(fmtStr string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(fmtStr, args...),
		CallStack: CallStack(stackDepth, 2),
	}
}
