package metrics2

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/easyctf/openctf-judge/go/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

// freshClient swaps in an empty prometheus registry so the test does not
// see metrics registered by other tests or packages.
func freshClient() *promClient {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	return newPromClient()
}

// scrape serves /metrics from the current registry and returns the value
// on the line starting with prefix, or "" if there is no such line.
func scrape(t *testing.T, prefix string) string {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rw := httptest.NewRecorder()
	promhttp.HandlerFor(prometheus.DefaultRegisterer.(*prometheus.Registry), promhttp.HandlerOpts{
		ErrorHandling:      promhttp.PanicOnError,
		DisableCompression: true,
	}).ServeHTTP(rw, req)
	resp := rw.Result()
	defer util.Close(resp.Body)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.Split(line, " ")[1]
		}
	}
	return ""
}

func TestClean(t *testing.T) {
	unittest.SmallTest(t)
	require.Equal(t, "jobs_claimed_total", clean("jobs.claimed-total"))
	require.Equal(t, "judge_load_index", clean("judge_load_index"))
}

func TestMetricID_Keys(t *testing.T) {
	unittest.SmallTest(t)
	id := newMetricID("queue.depth", map[string]string{"status": "queued"}, map[string]string{"app": "judge"})
	require.Equal(t, "queue_depth", id.measurement)
	require.Equal(t, []string{"app", "status"}, id.keys)
	require.Equal(t, "queue_depth-app-judge-status-queued", id.cellKey())
	require.Equal(t, "queue_depth [app status]", id.familyKey())
}

func TestInt64Metric(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	g := c.GetInt64Metric("queue.depth", map[string]string{"status": "queued"})
	require.Equal(t, "0", scrape(t, `queue_depth{status="queued"}`))

	g.Update(12)
	require.EqualValues(t, 12, g.Get())
	require.Equal(t, "12", scrape(t, `queue_depth{status="queued"}`))

	// A different tag value is a different metric in the same family.
	g2 := c.GetInt64Metric("queue.depth", map[string]string{"status": "started"})
	g2.Update(3)
	require.Equal(t, "12", scrape(t, `queue_depth{status="queued"}`))
	require.Equal(t, "3", scrape(t, `queue_depth{status="started"}`))

	// Asking again returns the same gauge, not a zeroed one.
	require.Same(t, g, c.GetInt64Metric("queue.depth", map[string]string{"status": "queued"}))

	require.NoError(t, g.Delete())
	require.Equal(t, "", scrape(t, `queue_depth{status="queued"}`))
	require.Error(t, g.Delete())

	// A fresh gauge under the deleted name starts over at zero.
	g3 := c.GetInt64Metric("queue.depth", map[string]string{"status": "queued"})
	require.EqualValues(t, 0, g3.Get())
}

func TestFloat64Metric(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	g := c.GetFloat64Metric("load.index", map[string]string{"fleet": "jury"})
	g.Update(0.5)
	require.Equal(t, 0.5, g.Get())
	require.Equal(t, "0.5", scrape(t, `load_index{fleet="jury"}`))

	require.Same(t, g, c.GetFloat64Metric("load.index", map[string]string{"fleet": "jury"}))

	require.NoError(t, g.Delete())
	require.Equal(t, "", scrape(t, `load_index{fleet="jury"}`))
}

func TestCounter(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	ctr := c.GetCounter("verdicts", map[string]string{"verdict": "AC"})
	ctr.Inc(3)

	// A re-acquired counter shares state with the first.
	again := c.GetCounter("verdicts", map[string]string{"verdict": "AC"})
	require.EqualValues(t, 3, again.Get())
	require.Equal(t, "3", scrape(t, `verdicts{verdict="AC"}`))

	again.Dec(2)
	require.EqualValues(t, 1, ctr.Get())

	ctr.Reset()
	require.EqualValues(t, 0, ctr.Get())
	require.Equal(t, "0", scrape(t, `verdicts{verdict="AC"}`))

	require.NoError(t, ctr.Delete())
	require.Equal(t, "", scrape(t, `verdicts{verdict="AC"}`))
}

func TestGaugesWithTwoTags(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	g := c.GetInt64Metric("fleet.size", map[string]string{"region": "sfo2", "role": "jury"})
	g.Update(4)
	// Labels come out sorted by name.
	require.Equal(t, "4", scrape(t, `fleet_size{region="sfo2",role="jury"}`))
}

func TestLiveness_ResetMovesValueToZero(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	l := c.NewLiveness("periodic_thing", map[string]string{"k": "v"})
	l.ManualReset(time.Now().Add(-10 * time.Minute))
	require.GreaterOrEqual(t, l.Get(), int64(600))

	l.Reset()
	require.Less(t, l.Get(), int64(10))
}

func TestTimer_StopReportsObservation(t *testing.T) {
	unittest.SmallTest(t)
	c := freshClient()

	timer := c.NewTimer("claim_latency")
	elapsed := timer.Stop()
	require.GreaterOrEqual(t, elapsed, time.Duration(0))
	require.Equal(t, "1", scrape(t, `timer_count{name="claim_latency"}`))
}
