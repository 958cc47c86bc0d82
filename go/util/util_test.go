package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
)

func TestRandHexString_ExpectedLengthAndAlphabet(t *testing.T) {
	unittest.SmallTest(t)

	for _, length := range []int{1, 8, 32, 33} {
		s, err := RandHexString(length)
		require.NoError(t, err)
		require.Len(t, s, length)
		for _, c := range s {
			require.Contains(t, "0123456789abcdef", string(c))
		}
	}
}

func TestRandHexString_SuccessiveCallsDiffer(t *testing.T) {
	unittest.SmallTest(t)

	a, err := RandHexString(32)
	require.NoError(t, err)
	b, err := RandHexString(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestRepeatCtx_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	unittest.SmallTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 100)
	done := make(chan struct{})
	go func() {
		RepeatCtx(time.Hour, ctx, func() {
			calls <- struct{}{}
		})
		close(done)
	}()

	// The first call happens before any tick elapses.
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("RepeatCtx did not run fn immediately")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RepeatCtx did not stop after cancel")
	}
}
