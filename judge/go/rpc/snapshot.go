package rpc

import (
	"context"
	"sync"

	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/events"
)

// Snapshotter pushes the current state of a per-id room to each newly
// attached subscriber, so a client that joins mid-lifecycle starts from a
// full snapshot instead of an empty pane. Broadcast rooms carry no state and
// get no snapshot.
//
// Construction is two-phase: the sse server takes the subscribe hook before
// the event Router exists, and the Router wraps the sse server. Init breaks
// the cycle; OnSubscribe is a no-op until it runs.
type Snapshotter struct {
	mtx    sync.Mutex
	db     db.DB
	router events.Router
}

// Init supplies the snapshot sources.
func (s *Snapshotter) Init(d db.DB, router events.Router) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.db = d
	s.router = router
}

// OnSubscribe implements the sser subscribe hook. It runs on its own
// goroutine after the subscription registers, so the snapshot it pushes
// cannot be missed by the subscriber that triggered it. Updates emitted
// between the handler's existence check and this push may precede the
// snapshot; subscribers buffer them and re-apply.
func (s *Snapshotter) OnSubscribe(room string) {
	s.mtx.Lock()
	d, router := s.db, s.router
	s.mtx.Unlock()
	if d == nil || router == nil {
		return
	}
	ctx := context.Background()
	kind, id := events.ParseRoom(room)
	switch kind {
	case events.RoomKindJob:
		job, err := d.GetJob(ctx, id)
		if err != nil {
			sklog.Warningf("Failed to load job %d for its init snapshot: %s", id, err)
			return
		}
		router.PublishLocal(ctx, events.EventJobInit, job.Details(), room)
	case events.RoomKindSubmission:
		sub, err := d.GetSubmission(ctx, id)
		if err != nil {
			sklog.Warningf("Failed to load submission %d for its init snapshot: %s", id, err)
			return
		}
		jobs, err := d.ListJobsBySubmission(ctx, id)
		if err != nil {
			sklog.Warningf("Failed to load jobs of submission %d for its init snapshot: %s", id, err)
			return
		}
		router.PublishLocal(ctx, events.EventSubmissionInit, sub.Details(jobs), room)
	}
}
