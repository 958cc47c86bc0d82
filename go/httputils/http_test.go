package httputils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

var errOneWayStreet = errors.New("Can not round trip on a one-way street.")

// scriptedTransport responds to successive requests with the given status
// codes, repeating the last one forever. A code of 0 means fail the round
// trip with errOneWayStreet.
type scriptedTransport struct {
	codes []int
}

func (f *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	if code == 0 {
		return nil, errOneWayStreet
	}
	w := httptest.NewRecorder()
	w.WriteHeader(code)
	return w.Result(), nil
}

func TestBackoffTransport(t *testing.T) {
	unittest.LargeTest(t) // The transport sleeps between attempts.

	// Fail faster than the production schedule so the test stays quick.
	// maxElapsed leaves room for at least three attempts even when every
	// wait randomizes high.
	config := &BackOffConfig{
		interval:      250 * time.Millisecond,
		maxInterval:   600 * time.Millisecond,
		maxElapsed:    1800 * time.Millisecond,
		randomization: 0.5,
		multiplier:    1.5,
	}
	wrapped := &scriptedTransport{}
	bt := &BackOffTransport{base: wrapped, config: config}

	// run scripts the wrapped transport with codes and checks that the
	// caller sees the FINAL attempt's outcome.
	run := func(codes []int) {
		wrapped.codes = codes
		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		started := time.Now()
		resp, err := bt.RoundTrip(req)
		elapsed := time.Since(started)

		want := codes[len(codes)-1]
		if want == 0 {
			require.Equal(t, errOneWayStreet, err)
		} else {
			require.NoError(t, err)
			require.Equal(t, want, resp.StatusCode)
			ReadAndClose(resp.Body)
		}
		if len(codes) > 1 {
			// Timing is the only externally visible sign that a retry
			// waited; the first wait is at least interval*(1-randomization).
			minWait := time.Duration(float64(config.interval) * (1 - config.randomization))
			require.GreaterOrEqualf(t, elapsed, minWait, "codes %v finished too quickly to have backed off", codes)
		}
	}

	// No retries for success or for client errors.
	run([]int{http.StatusOK})
	run([]int{http.StatusNotModified})
	run([]int{http.StatusNotFound})
	// 5xx retries until a non-retriable code arrives.
	run([]int{http.StatusServiceUnavailable, http.StatusOK})
	run([]int{http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusNotFound})
	// 5xx until the window closes still hands back the 5xx response.
	run([]int{http.StatusInternalServerError})
	// Transport errors retry the same way.
	run([]int{0, http.StatusOK})
	run([]int{0, 0, http.StatusOK})
	run([]int{http.StatusInternalServerError, 0})
}

func TestClientConfig_TransportWiring(t *testing.T) {
	unittest.SmallTest(t)

	// Metrics wrap the whole stack, and re-wrapping must not double count.
	c := DefaultClientConfig().WithoutRetries().Client()
	mt, ok := c.Transport.(*MetricsTransport)
	require.True(t, ok)
	require.Equal(t, mt, NewMetricsTransport(mt))

	// With retries on, the backoff transport sits under the metrics wrapper.
	c = DefaultClientConfig().Client()
	mt, ok = c.Transport.(*MetricsTransport)
	require.True(t, ok)
	_, ok = mt.rt.(*BackOffTransport)
	require.True(t, ok)

	// The retry window never exceeds the request timeout.
	cfg := DefaultClientConfig()
	cfg.RequestTimeout = time.Second
	c = cfg.Client()
	mt = c.Transport.(*MetricsTransport)
	bt := mt.rt.(*BackOffTransport)
	require.Equal(t, time.Second, bt.config.maxElapsed)
}

func TestReportError(t *testing.T) {
	unittest.SmallTest(t)
	w := httptest.NewRecorder()
	ReportError(w, errors.New("the gory detail"), "resource not found", http.StatusNotFound)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, "{\"error\":\"resource not found\"}\n", w.Body.String())

	w = httptest.NewRecorder()
	ReportError(w, errors.New("boom"), "", http.StatusInternalServerError)
	require.Equal(t, "{\"error\":\"Unknown error\"}\n", w.Body.String())
}

func TestHealthz(t *testing.T) {
	unittest.SmallTest(t)
	h := Healthz(http.NotFoundHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/other", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
