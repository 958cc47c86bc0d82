package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/easyctf/openctf-judge/judge/go/events"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// sseStream is one open /events subscription.
type sseStream struct {
	t       *testing.T
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// subscribe opens the room's event stream as the reader key. By the time it
// returns, the subscription is registered, so later emits cannot be missed.
func (f *fixture) subscribe(room string) *sseStream {
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/events?room="+room, nil)
	require.NoError(f.t, err)
	req.Header.Set(apiKeyHeader, f.keys["reader"])
	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	require.Equal(f.t, "text/event-stream", resp.Header.Get("Content-Type"))
	s := &sseStream{t: f.t, cancel: cancel, body: resp.Body, scanner: bufio.NewScanner(resp.Body)}
	f.t.Cleanup(s.close)
	return s
}

func (s *sseStream) close() {
	s.cancel()
	_ = s.body.Close()
}

// next blocks until the subscription delivers its next event.
func (s *sseStream) next() events.Envelope {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var envelope events.Envelope
		require.NoError(s.t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &envelope))
		return envelope
	}
	s.t.Fatalf("Event stream ended early: %v", s.scanner.Err())
	return events.Envelope{}
}

// asObject unwraps a decoded envelope payload that carries an entity.
func asObject(t *testing.T, data interface{}) map[string]interface{} {
	obj, ok := data.(map[string]interface{})
	require.True(t, ok, "payload is %T, not an object", data)
	return obj
}

func TestSubscribeEvents_JobRoom(t *testing.T) {
	f := setupEvents(t)
	f.mustCreateProblem(1, 10)
	f.mustCreateSubmission(map[string]interface{}{"problem_id": 1})

	stream := f.subscribe("job_1")

	// The snapshot arrives first, pushed by the subscribe hook.
	envelope := stream.next()
	require.Equal(t, events.EventJobInit, envelope.Event)
	require.Equal(t, "job_1", envelope.Room)
	snapshot := asObject(t, envelope.Data)
	require.EqualValues(t, 1, snapshot["id"])
	require.Equal(t, string(types.JobStatusQueued), snapshot["status"])

	// Then the job's whole life, in order.
	claim := f.mustClaim()
	envelope = stream.next()
	require.Equal(t, events.EventJobClaimed, envelope.Event)
	require.EqualValues(t, 1, envelope.Data)

	status, _ := f.request(http.MethodPost, "/jobs/1/release", f.keys["jury"], map[string]interface{}{
		"verification_code": claim.VerificationCode,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, events.EventJobReleased, stream.next().Event)

	claim = f.mustClaim()
	require.Equal(t, events.EventJobClaimed, stream.next().Event)

	status, _ = f.request(http.MethodPost, "/jobs/1/submit", f.keys["jury"], map[string]interface{}{
		"verification_code": claim.VerificationCode,
		"execution_time":    0.25,
		"execution_memory":  512,
		"last_ran_case":     1,
	})
	require.Equal(t, http.StatusOK, status)
	envelope = stream.next()
	require.Equal(t, events.EventJobUpdated, envelope.Event)
	update := asObject(t, envelope.Data)
	require.EqualValues(t, 1, update["job_id"])
	details := asObject(t, update["details"])
	require.Equal(t, string(types.JobStatusStarted), details["status"])
	require.EqualValues(t, 1, details["last_ran_case"])

	status, _ = f.request(http.MethodDelete, "/jobs/1", f.keys["reader"], nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, events.EventJobCancelled, stream.next().Event)
}

func TestSubscribeEvents_SubmissionRoom(t *testing.T) {
	f := setupEvents(t)
	f.mustCreateProblem(1, 10)
	f.mustCreateSubmission(map[string]interface{}{"problem_id": 1, "uid": 5})

	stream := f.subscribe("submission_1")

	envelope := stream.next()
	require.Equal(t, events.EventSubmissionInit, envelope.Event)
	require.Equal(t, "submission_1", envelope.Room)
	snapshot := asObject(t, envelope.Data)
	require.EqualValues(t, 1, snapshot["id"])
	require.EqualValues(t, 5, snapshot["uid"])
	jobs, ok := snapshot["jobs"].([]interface{})
	require.True(t, ok)
	require.Len(t, jobs, 1)

	// A rerun of this submission lands in its room.
	status, _ := f.request(http.MethodPost, "/submissions/1/create_job", f.keys["reader"], nil)
	require.Equal(t, http.StatusCreated, status)
	envelope = stream.next()
	require.Equal(t, events.EventJobNew, envelope.Event)
	require.EqualValues(t, 2, envelope.Data)
}

func TestSubscribeEvents_MonitorSeesEverything(t *testing.T) {
	f := setupEvents(t)
	f.mustCreateProblem(1, 10)

	monitor := f.subscribe("monitor")
	jobs := f.subscribe("jobs")

	f.mustCreateSubmission(map[string]interface{}{"problem_id": 1})

	// One submission creation fans out as submission_new plus job_new; the
	// monitor room gets a copy of both.
	first := monitor.next()
	require.Equal(t, events.EventSubmissionNew, first.Event)
	require.Equal(t, "monitor", first.Room)
	require.EqualValues(t, 1, first.Data)
	second := monitor.next()
	require.Equal(t, events.EventJobNew, second.Event)
	require.Equal(t, "monitor", second.Room)

	// The jobs-room copy of job_new shares the envelope id with the monitor
	// copy, so overlapping subscribers can deduplicate.
	jobsCopy := jobs.next()
	require.Equal(t, events.EventJobNew, jobsCopy.Event)
	require.Equal(t, "jobs", jobsCopy.Room)
	require.Equal(t, second.ID, jobsCopy.ID)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSubscribeEvents_Validation(t *testing.T) {
	f := setupEvents(t)

	status, _ := f.request(http.MethodGet, "/events?room=lounge", f.keys["reader"], nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.request(http.MethodGet, "/events", f.keys["reader"], nil)
	require.Equal(t, http.StatusBadRequest, status)

	// Per-id rooms are checked for existence before the stream opens.
	status, _ = f.request(http.MethodGet, "/events?room=job_5", f.keys["reader"], nil)
	require.Equal(t, http.StatusNotFound, status)
	status, _ = f.request(http.MethodGet, "/events?room=submission_5", f.keys["reader"], nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = f.request(http.MethodGet, "/events?room=jobs", f.keys["jury"], nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestSnapshotter_BeforeInit(t *testing.T) {
	unittest.SmallTest(t)

	// Must not panic before Init wires the sources.
	s := &Snapshotter{}
	s.OnSubscribe("job_1")
}
