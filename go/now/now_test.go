package now

import (
	"context"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

func TestNow_FixedTimeInContext(t *testing.T) {
	unittest.SmallTest(t)

	fixed := time.Unix(1475508449, 0).UTC()
	ctx := context.WithValue(context.Background(), ContextKey, fixed)

	require.Equal(t, fixed, Now(ctx))
	// A context without the key falls through to the wall clock.
	require.NotEqual(t, fixed, Now(context.Background()))
}

func TestNow_ProviderInContext(t *testing.T) {
	unittest.SmallTest(t)

	calls := 0
	tick := func() time.Time {
		calls++
		return time.Unix(int64(calls), 0).UTC()
	}
	ctx := context.WithValue(context.Background(), ContextKey, NowProvider(tick))

	// The provider runs once per Now call.
	require.EqualValues(t, 1, Now(ctx).Unix())
	require.EqualValues(t, 2, Now(ctx).Unix())
	require.Equal(t, 2, calls)

	// A plain context never consults the provider.
	Now(context.Background())
	require.Equal(t, 2, calls)
}

func TestNow_InvalidValue_Panics(t *testing.T) {
	unittest.SmallTest(t)

	ctx := context.WithValue(context.Background(), ContextKey, "strings are not valid types for ContextKey")
	require.Panics(t, func() {
		Now(ctx)
	})
}

func TestTimeTravelingContext_AdvanceMovesClock(t *testing.T) {
	unittest.SmallTest(t)

	start := time.Unix(1000, 0).UTC()
	ctx := TimeTravelingContext(start)
	require.Equal(t, start, Now(ctx))

	ctx.Advance(6 * time.Minute)
	require.Equal(t, start.Add(6*time.Minute), Now(ctx))

	ctx.SetTime(start)
	require.Equal(t, start, Now(ctx))
}
