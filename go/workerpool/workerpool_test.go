package workerpool

import (
	"sync/atomic"
	"testing"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsEveryTask(t *testing.T) {
	unittest.SmallTest(t)

	p := New(3)
	var ran int64
	for i := 0; i < 20; i++ {
		p.Go(func() {
			atomic.AddInt64(&ran, 1)
		})
	}
	p.Wait()
	require.EqualValues(t, 20, ran)
}

func TestPool_CannotBeReusedAfterWait(t *testing.T) {
	unittest.SmallTest(t)

	p := New(1)
	p.Go(func() {})
	p.Wait()
	require.Panics(t, func() {
		p.Go(func() {})
	})
	require.Panics(t, p.Wait)
}
