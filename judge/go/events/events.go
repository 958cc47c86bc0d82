// Package events fans lifecycle events out to named rooms.
//
// Rooms are SSE streams. Each event is wrapped in an Envelope carrying a
// uuid shared by every room copy of one logical emit, so a consumer
// subscribed to overlapping rooms (say jobs and monitor) can deduplicate.
// Cross-replica delivery rides on the sser Redis backplane.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/sser"
	"github.com/google/uuid"
)

// Event names, as consumed by monitors and contest frontends.
const (
	EventSubmissionNew  = "submission_new"
	EventJobNew         = "job_new"
	EventJobClaimed     = "job_claimed"
	EventJobReleased    = "job_released"
	EventJobCancelled   = "job_cancelled"
	EventJobUpdated     = "job_updated"
	EventJobInit        = "job_init"
	EventSubmissionInit = "submission_init"
)

// Broadcast rooms. Per-id rooms are built by JobRoom and SubmissionRoom.
const (
	// RoomMonitor receives a copy of every emit.
	RoomMonitor     = "monitor"
	RoomJobs        = "jobs"
	RoomSubmissions = "submissions"
)

const (
	jobRoomPrefix        = "job_"
	submissionRoomPrefix = "submission_"
)

// JobRoom returns the room for events about one job.
func JobRoom(id int64) string {
	return jobRoomPrefix + strconv.FormatInt(id, 10)
}

// SubmissionRoom returns the room for events about one submission.
func SubmissionRoom(id int64) string {
	return submissionRoomPrefix + strconv.FormatInt(id, 10)
}

// RoomKind classifies a room name.
type RoomKind int

const (
	RoomKindInvalid RoomKind = iota
	RoomKindBroadcast
	RoomKindJob
	RoomKindSubmission
)

// ParseRoom classifies a subscriber-supplied room name, returning the entity
// id for per-id rooms. Ids are canonicalized, so "job_007" subscribes to
// job_7.
func ParseRoom(room string) (RoomKind, int64) {
	switch room {
	case RoomMonitor, RoomJobs, RoomSubmissions:
		return RoomKindBroadcast, 0
	}
	if strings.HasPrefix(room, jobRoomPrefix) {
		if id, err := strconv.ParseInt(room[len(jobRoomPrefix):], 10, 64); err == nil && id > 0 {
			return RoomKindJob, id
		}
	}
	if strings.HasPrefix(room, submissionRoomPrefix) {
		if id, err := strconv.ParseInt(room[len(submissionRoomPrefix):], 10, 64); err == nil && id > 0 {
			return RoomKindSubmission, id
		}
	}
	return RoomKindInvalid, 0
}

// Envelope is the wire format of one event in one room.
type Envelope struct {
	// ID is shared by every room copy of one logical emit.
	ID    string      `json:"id"`
	Event string      `json:"event"`
	Room  string      `json:"room"`
	Data  interface{} `json:"data"`
}

// Router fans application events out to rooms. Emission is fire and forget:
// failures are logged, never returned, so an event problem cannot fail the
// state transition that caused it.
type Router interface {
	// Publish sends one logical event to the given rooms plus monitor.
	Publish(ctx context.Context, event string, payload interface{}, rooms ...string)

	// PublishLocal sends an event to a single room on this replica only,
	// skipping monitor. Used for per-subscriber init snapshots.
	PublishLocal(ctx context.Context, event string, payload interface{}, room string)
}

// RouterImpl implements Router over an SSE server.
type RouterImpl struct {
	server sser.Server
}

// NewRouter returns a Router fanning out through server.
func NewRouter(server sser.Server) *RouterImpl {
	return &RouterImpl{server: server}
}

// Publish implements Router.
func (r *RouterImpl) Publish(ctx context.Context, event string, payload interface{}, rooms ...string) {
	id := uuid.NewString()
	all := make([]string, 0, len(rooms)+1)
	all = append(all, rooms...)
	all = append(all, RoomMonitor)
	for _, room := range all {
		r.send(ctx, id, event, payload, room, r.server.Send)
	}
}

// PublishLocal implements Router.
func (r *RouterImpl) PublishLocal(ctx context.Context, event string, payload interface{}, room string) {
	r.send(ctx, uuid.NewString(), event, payload, room, r.server.SendLocal)
}

func (r *RouterImpl) send(ctx context.Context, id, event string, payload interface{}, room string, via func(context.Context, string, string) error) {
	b, err := json.Marshal(Envelope{
		ID:    id,
		Event: event,
		Room:  room,
		Data:  payload,
	})
	if err != nil {
		sklog.Errorf("Failed to encode %s event for room %q: %s", event, room, err)
		return
	}
	if err := via(ctx, room, string(b)); err != nil {
		sklog.Warningf("Failed to publish %s event to room %q: %s", event, room, err)
	}
}

// NopRouter drops every event. Used when ENABLE_SOCKETIO is off.
type NopRouter struct{}

// NewNopRouter returns a Router that drops everything.
func NewNopRouter() NopRouter {
	return NopRouter{}
}

// Publish implements Router.
func (NopRouter) Publish(ctx context.Context, event string, payload interface{}, rooms ...string) {
}

// PublishLocal implements Router.
func (NopRouter) PublishLocal(ctx context.Context, event string, payload interface{}, room string) {
}

var _ Router = (*RouterImpl)(nil)
var _ Router = NopRouter{}
