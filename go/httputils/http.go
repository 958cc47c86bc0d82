// Package httputils provides the HTTP plumbing shared by the judge's
// binaries: response helpers, request logging, health checks, and an
// outbound client with exponential backoff.
package httputils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/timer"
	"github.com/easyctf/openctf-judge/go/util"
)

const (
	defaultDialTimeout    = time.Minute
	defaultRequestTimeout = 5 * time.Minute

	// maxLoggedBodyBytes bounds how much of a response body ends up in the
	// logs.
	maxLoggedBodyBytes = 10 * 1024
)

// errServer and errClient classify a non-2xx response inside the retry
// loop. Only errServer is worth retrying.
var (
	errServer = errors.New("Server error")
	errClient = errors.New("Client error")
)

// ClientConfig describes an outbound http.Client. Each field, when set,
// modifies the default client behavior.
//
// Example:
//
//	client := DefaultClientConfig().WithoutRetries().Client()
type ClientConfig struct {
	// DialTimeout, if non-zero, bounds connection establishment.
	DialTimeout time.Duration

	// RequestTimeout, if non-zero, sets http.Client.Timeout. The timeout
	// applies until the response body is fully read.
	RequestTimeout time.Duration

	// Retries, if non-nil, retries requests with exponential backoff until
	// a non-5xx response arrives.
	Retries *BackOffConfig

	// Metrics, if true, counts each request per destination host.
	Metrics bool
}

// DefaultClientConfig returns a ClientConfig with retries and metrics on
// and the default timeouts.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:    defaultDialTimeout,
		RequestTimeout: defaultRequestTimeout,
		Retries:        DefaultBackOffConfig(),
		Metrics:        true,
	}
}

// WithoutRetries returns a new ClientConfig where requests are not
// retried.
func (c ClientConfig) WithoutRetries() ClientConfig {
	c.Retries = nil
	return c
}

// Client returns a new http.Client as configured.
func (c ClientConfig) Client() *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if c.DialTimeout != 0 {
		dt := c.DialTimeout
		rt = &http.Transport{
			Dial: func(network, addr string) (net.Conn, error) {
				return net.DialTimeout(network, addr, dt)
			},
		}
	}
	if c.Retries != nil {
		// Retrying past the request timeout cannot succeed; the client
		// aborts the request first.
		if c.RequestTimeout != 0 && c.Retries.maxElapsed > c.RequestTimeout {
			sklog.Warningf("Capping retry window at the request timeout. Was %s, now %s.", c.Retries.maxElapsed, c.RequestTimeout)
			c.Retries.maxElapsed = c.RequestTimeout
		}
		rt = &BackOffTransport{base: rt, config: c.Retries}
	}
	if c.Metrics {
		rt = NewMetricsTransport(rt)
	}
	return &http.Client{
		Transport: rt,
		Timeout:   c.RequestTimeout,
	}
}

// BackOffConfig parameterizes BackOffTransport's retry schedule.
type BackOffConfig struct {
	interval      time.Duration
	maxInterval   time.Duration
	maxElapsed    time.Duration
	randomization float64
	multiplier    float64
}

// DefaultBackOffConfig returns the default schedule: intervals starting
// at half a second and growing by half each attempt, capped at a minute
// per wait and five minutes overall.
func DefaultBackOffConfig() *BackOffConfig {
	return &BackOffConfig{
		interval:      500 * time.Millisecond,
		maxInterval:   time.Minute,
		maxElapsed:    5 * time.Minute,
		randomization: 0.5,
		multiplier:    1.5,
	}
}

// BackOffTransport retries 5xx responses and transport errors with
// exponential backoff. Other responses, including 4xx, are returned
// immediately.
type BackOffTransport struct {
	base   http.RoundTripper
	config *BackOffConfig
}

// RoundTrip implements http.RoundTripper. After the retry window closes
// the result of the final attempt is returned, so a caller sees the same
// thing it would have seen without retries.
func (t *BackOffTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     t.config.interval,
		RandomizationFactor: t.config.randomization,
		Multiplier:          t.config.multiplier,
		MaxInterval:         t.config.maxInterval,
		MaxElapsedTime:      t.config.maxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, req.Context())

	// Each attempt consumes the request body, so buffer it once and replay
	// it on every try.
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %v", err)
		}
		body = b
	}

	var resp *http.Response
	attempt := func() error {
		if req.Body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		var err error
		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode >= 500 && resp.StatusCode <= 599:
			return errServer
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			// 4xx will not improve with retrying.
			return backoff.Permanent(errClient)
		}
		return nil
	}
	onRetry := func(err error, wait time.Duration) {
		if err == errServer {
			sklog.Warningf("Got status code %d from the HTTP %s request to %s\nResponse: %s", resp.StatusCode, req.Method, req.URL, ReadAndClose(resp.Body))
			resp = nil
		} else {
			sklog.Warningf("Round trip to %s failed: %s. Retrying after %s", req.URL, err, wait)
		}
	}

	switch err := backoff.RetryNotify(attempt, policy, onRetry); err {
	case nil, errClient:
		return resp, nil
	case errServer:
		sklog.Warningf("Final attempt to %s %s still returned status code %d", req.Method, req.URL, resp.StatusCode)
		return resp, nil
	default:
		sklog.Warningf("Final attempt to %s %s failed: %s", req.Method, req.URL, err)
		return nil, err
	}
}

// MetricsTransport counts outbound requests per destination host.
type MetricsTransport struct {
	rt http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (mt *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	metrics2.GetCounter("http_request_metrics", map[string]string{"host": req.URL.Host}).Inc(1)
	return mt.rt.RoundTrip(req)
}

// NewMetricsTransport wraps rt with per-host request counting. Wrapping
// an already-wrapped transport is a no-op, so requests are never double
// counted.
func NewMetricsTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if _, ok := rt.(*MetricsTransport); ok {
		return rt
	}
	return &MetricsTransport{rt: rt}
}

// ReadAndClose drains a ReadCloser, such as a response body, and returns
// the contents as a quoted string for logging. The reader, if non-nil, is
// closed. Long bodies are truncated at maxLoggedBodyBytes.
func ReadAndClose(r io.ReadCloser) string {
	if r == nil {
		return ""
	}
	defer util.Close(r)
	b, err := io.ReadAll(io.LimitReader(r, maxLoggedBodyBytes))
	if err != nil {
		sklog.Warningf("Failed reading response body: %s", err)
		return ""
	}
	return fmt.Sprintf("%q", string(b))
}

// ReportError responds with {"error": message} at the given status code
// and logs the underlying error. An empty message is reported as
// "Unknown error".
func ReportError(w http.ResponseWriter, err error, message string, code int) {
	sklog.Error(message, err)
	if err == io.ErrClosedPipe {
		// The client is gone; there is no one to respond to.
		return
	}
	msg := message
	if msg == "" {
		msg = "Unknown error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		sklog.Errorf("Failed to write error response: %s", err)
	}
}

// statusRecorder notes the first status code written to a response.
type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.wroteHeader = true
	sklog.Infof("Response Code: %d", code)
	metrics2.GetCounter("http_response", map[string]string{"statuscode": strconv.Itoa(code)}).Inc(1)
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer, which streaming responses (the SSE
// event stream) depend on.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingRequestResponse logs each request and its response code, times
// the request, and converts panics into 500s.
//
// A handler that never calls WriteHeader falls through to the implicit
// 200, which is not recorded.
func LoggingRequestResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w = &statusRecorder{ResponseWriter: w}
		sklog.Infof("Incoming request: %s %s %#v ", r.URL.Path, r.Method, *(r.URL))
		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]
				sklog.Errorf("panic serving %v: %v\n%s", r.URL.Path, err, buf)

				// Only effective if WriteHeader has not run yet.
				http.Error(w, "Error Handling request", http.StatusInternalServerError)
			}
		}()
		defer timer.New(fmt.Sprintf("Request: %s Latency:", r.URL.Path)).Stop()
		h.ServeHTTP(w, r)
	})
}

// Healthz answers healthchecks at /healthz itself and delegates every
// other path to h.
func Healthz(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// RunHealthCheckServer serves nothing but health checks, for processes
// with no HTTP surface of their own. Does not return.
func RunHealthCheckServer(port string) {
	http.Handle("/", Healthz(http.NotFoundHandler()))
	sklog.Fatal(http.ListenAndServe(port, nil))
}
