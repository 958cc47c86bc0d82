package autoscaler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/db/memory"
	"github.com/easyctf/openctf-judge/judge/go/types"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2017, time.March, 4, 12, 0, 0, 0, time.UTC)

// fakeCloud tracks a fleet size and records every scaling action.
type fakeCloud struct {
	mtx        sync.Mutex
	count      int
	creates    []int
	destroys   []int
	countErr   error
	createErr  error
	destroyErr error
}

func (c *fakeCloud) CurrentCount(_ context.Context) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.countErr != nil {
		return 0, c.countErr
	}
	return c.count, nil
}

func (c *fakeCloud) Create(_ context.Context, n int) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	c.creates = append(c.creates, n)
	c.count += n
	return nil
}

func (c *fakeCloud) Destroy(_ context.Context, n int) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.destroyErr != nil {
		return 0, c.destroyErr
	}
	if n > c.count {
		n = c.count
	}
	c.destroys = append(c.destroys, n)
	c.count -= n
	return n, nil
}

func (c *fakeCloud) setCount(n int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.count = n
}

func (c *fakeCloud) getCount() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.count
}

var _ Cloud = (*fakeCloud)(nil)

func setup(t *testing.T, juryCount int) (*now.TimeTravelCtx, *Autoscaler, db.DB, *fakeCloud) {
	ctx := now.TimeTravelingContext(start)
	d := memory.New()
	cloud := &fakeCloud{count: juryCount}
	a, err := New(d, cloud)
	require.NoError(t, err)
	return ctx, a, d, cloud
}

// seedClaimable creates n queued jobs, each on its own submission.
func seedClaimable(t *testing.T, ctx context.Context, d db.DB, n int) {
	_, err := d.PutProblem(ctx, &types.Problem{
		ID:          1,
		TestCases:   10,
		TimeLimit:   1,
		MemoryLimit: 262144,
	})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, _, err := d.PutSubmissionWithJob(ctx, &types.Submission{
			Time:      now.Now(ctx),
			ProblemID: 1,
			Code:      "x",
			Language:  types.LanguagePython3,
		}, &types.Job{
			CreationTime: now.Now(ctx),
		})
		require.NoError(t, err)
	}
}

func TestOptimalChange(t *testing.T) {
	unittest.SmallTest(t)
	test := func(index float64, expect int) {
		require.Equal(t, expect, optimalChange(index), "index %v", index)
	}
	test(0, -1)
	test(1.9, -1)
	test(2, 0)
	test(19.99, 0)
	test(20, 1)
	test(39.9, 1)
	test(40, 2)
	test(60, 3)
	test(200, 10)
}

func TestBootstrap(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, _, cloud := setup(t, 0)

	require.NoError(t, a.Bootstrap(ctx))
	require.Equal(t, []int{1}, cloud.creates)
	require.Equal(t, 1, cloud.getCount())

	// A non-empty fleet is left alone.
	require.NoError(t, a.Bootstrap(ctx))
	require.Equal(t, []int{1}, cloud.creates)
}

func TestTick_DeadBandHolds(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)
	seedClaimable(t, ctx, d, 5)

	// index = 5/1, inside [2, 20).
	require.NoError(t, a.Tick(ctx))
	require.Empty(t, cloud.creates)
	require.Empty(t, cloud.destroys)
	require.Equal(t, 1, cloud.getCount())
}

func TestTick_ScaleDown(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, _, cloud := setup(t, 3)

	// An all-zero window with three juries shrinks the fleet by one.
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{1}, cloud.destroys)
	require.Equal(t, 2, cloud.getCount())
}

func TestTick_ScaleDownStopsAtOne(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, _, cloud := setup(t, 1)

	require.NoError(t, a.Tick(ctx))
	require.Empty(t, cloud.destroys)
	require.Equal(t, 1, cloud.getCount())
}

func TestTick_ScaleUp(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 2)
	seedClaimable(t, ctx, d, 120)

	// avg 120 over 2 juries is index 60, so grow by three to a fleet of
	// five.
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{3}, cloud.creates)
	require.Equal(t, 5, cloud.getCount())
}

func TestTick_ScaleUpSingleStep(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)
	seedClaimable(t, ctx, d, 20)

	// index exactly at the threshold grows by one.
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{1}, cloud.creates)
	require.Equal(t, 2, cloud.getCount())
}

func TestTick_ScaleUpCapped(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)
	seedClaimable(t, ctx, d, 200)

	// index 200 asks for ten new juries; the cap allows nine.
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{9}, cloud.creates)
	require.Equal(t, MaxJuries, cloud.getCount())
}

func TestTick_AtCapHolds(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, MaxJuries)
	seedClaimable(t, ctx, d, 500)

	require.NoError(t, a.Tick(ctx))
	require.Empty(t, cloud.creates)
	require.Equal(t, MaxJuries, cloud.getCount())
}

func TestTick_WindowSmoothesBursts(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)

	// Nine quiet samples dilute the burst: the window average is 20, not
	// 200, so the fleet grows by one instead of nine.
	for i := 0; i < 9; i++ {
		require.NoError(t, a.Tick(ctx))
	}
	seedClaimable(t, ctx, d, 200)
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{1}, cloud.creates)
	require.Equal(t, 2, cloud.getCount())
}

func TestTick_ResyncsFromProvider(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, _, cloud := setup(t, 3)

	require.NoError(t, a.Tick(ctx))
	require.Equal(t, 2, cloud.getCount())

	// Someone scaled the fleet behind our back; the next tick works from
	// the provider's count, not a remembered one.
	cloud.setCount(7)
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{1, 1}, cloud.destroys)
	require.Equal(t, 6, cloud.getCount())
}

func TestTick_RecreatesEmptyFleet(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)
	seedClaimable(t, ctx, d, 5)

	cloud.setCount(0)
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{1}, cloud.creates)
	require.Equal(t, 1, cloud.getCount())
}

func TestTick_CloudErrorsPropagate(t *testing.T) {
	unittest.SmallTest(t)
	ctx, a, d, cloud := setup(t, 1)
	seedClaimable(t, ctx, d, 200)

	cloud.countErr = context.DeadlineExceeded
	require.Error(t, a.Tick(ctx))

	cloud.countErr = nil
	cloud.createErr = context.DeadlineExceeded
	require.Error(t, a.Tick(ctx))

	// The next tick starts over from the provider state.
	cloud.createErr = nil
	require.NoError(t, a.Tick(ctx))
	require.Equal(t, []int{9}, cloud.creates)
	require.Equal(t, MaxJuries, cloud.getCount())
}
