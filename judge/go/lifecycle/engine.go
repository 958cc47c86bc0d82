// Package lifecycle implements the job state machine: create, claim,
// release, submit, and cancel, plus callback delivery and event emission.
//
// The engine owns transition rules and the verification-code interlock;
// input validation (languages, URL lengths, parseability) belongs to the
// HTTP layer. Every mutation runs inside the store's row-locked UpdateJob
// or ClaimJob, so a submit racing a stale reclaim sees either the old code
// or the new one, never a mix.
package lifecycle

import (
	"context"
	"time"

	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/events"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// JobUpdate is the payload of a job_updated event.
type JobUpdate struct {
	JobID   int64                `json:"job_id"`
	Details types.VerdictDetails `json:"details"`
}

// Engine owns every job state transition.
type Engine struct {
	db        db.DB
	router    events.Router
	callbacks *CallbackPool

	claimsServed metrics2.Counter
	claimsEmpty  metrics2.Counter
	submits      metrics2.Counter
}

// New returns an Engine. The callback pool may be shared with other engines
// but is owned by the caller, who is responsible for draining it.
func New(d db.DB, router events.Router, callbacks *CallbackPool) *Engine {
	return &Engine{
		db:           d,
		router:       router,
		callbacks:    callbacks,
		claimsServed: metrics2.GetCounter("judge_claims", map[string]string{"result": "served"}),
		claimsEmpty:  metrics2.GetCounter("judge_claims", map[string]string{"result": "empty"}),
		submits:      metrics2.GetCounter("judge_submits"),
	}
}

// CreateSubmissionWithJob stores a new submission and its first queued job
// atomically. The submission's receipt time and the job's creation time are
// both stamped from the context clock. Returns ErrNotFound if the problem
// does not exist.
func (e *Engine) CreateSubmissionWithJob(ctx context.Context, sub *types.Submission, callbackURL string) (*types.Submission, *types.Job, error) {
	if _, err := e.db.GetProblem(ctx, sub.ProblemID); err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	ts := now.Now(ctx)
	cpy := sub.Copy()
	cpy.Time = ts
	job := &types.Job{
		CreationTime: ts,
		Status:       types.JobStatusQueued,
		CallbackURL:  callbackURL,
	}
	storedSub, storedJob, err := e.db.PutSubmissionWithJob(ctx, cpy, job)
	if err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	e.router.Publish(ctx, events.EventSubmissionNew, storedSub.ID, events.RoomSubmissions)
	e.router.Publish(ctx, events.EventJobNew, storedJob.ID, events.RoomJobs, events.SubmissionRoom(storedSub.ID))
	return storedSub, storedJob, nil
}

// CreateJob adds another queued job for an existing submission (a re-judge).
// Returns ErrNotFound if the submission does not exist.
func (e *Engine) CreateJob(ctx context.Context, submissionID int64, callbackURL string) (*types.Job, error) {
	if _, err := e.db.GetSubmission(ctx, submissionID); err != nil {
		return nil, skerr.Wrap(err)
	}
	job := &types.Job{
		SubmissionID: submissionID,
		CreationTime: now.Now(ctx),
		Status:       types.JobStatusQueued,
		CallbackURL:  callbackURL,
	}
	stored, err := e.db.PutJob(ctx, job)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	e.router.Publish(ctx, events.EventJobNew, stored.ID, events.RoomJobs, events.SubmissionRoom(submissionID))
	return stored, nil
}

// Claim hands the oldest claimable job to a worker, rolling a fresh
// verification code. Returns ErrNoWork when nothing is claimable.
func (e *Engine) Claim(ctx context.Context) (*types.ClaimDetails, error) {
	job, err := e.db.ClaimJob(ctx, now.Now(ctx))
	if err != nil {
		if db.IsNoWork(err) {
			e.claimsEmpty.Inc(1)
			return nil, err
		}
		return nil, skerr.Wrap(err)
	}
	sub, err := e.db.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	e.claimsServed.Inc(1)
	sklog.Infof("Job %d claimed", job.ID)
	e.router.Publish(ctx, events.EventJobClaimed, job.ID, events.JobRoom(job.ID))
	details := job.ClaimDetails(sub)
	return &details, nil
}

// Release returns a started job to the queue, clearing its claim time and
// verification code so the released job is indistinguishable from a queued
// one. Returns ErrConflict unless started, ErrWrongCode on a code mismatch.
func (e *Engine) Release(ctx context.Context, jobID, verificationCode int64) error {
	_, err := e.db.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if j.Status != types.JobStatusStarted {
			return db.ErrConflict
		}
		if j.VerificationCode != 0 && verificationCode != j.VerificationCode {
			return db.ErrWrongCode
		}
		j.Status = types.JobStatusQueued
		j.ClaimTime = time.Time{}
		j.VerificationCode = 0
		return nil
	})
	if err != nil {
		return skerr.Wrap(err)
	}
	sklog.Infof("Job %d released", jobID)
	e.router.Publish(ctx, events.EventJobReleased, jobID, events.JobRoom(jobID))
	return nil
}

// SubmitParams carries one worker progress or verdict message. An empty
// Verdict is a pure progress update. A non-empty Verdict must be valid;
// callers check with Verdict.Valid().
type SubmitParams struct {
	VerificationCode int64
	ExecutionTime    float64
	ExecutionMemory  int64
	LastRanCase      int64
	Verdict          types.Verdict
}

// Submit applies a worker message to the job: overwrites the execution
// fields, moves to awaiting_verdict when the last case has run, and on a
// verdict moves to finished, clears the code, and fires the callback
// exactly once. Returns ErrConflict unless started or awaiting_verdict,
// ErrWrongCode on a code mismatch.
func (e *Engine) Submit(ctx context.Context, jobID int64, params SubmitParams) (*types.Job, error) {
	job, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	sub, err := e.db.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	problem, err := e.db.GetProblem(ctx, sub.ProblemID)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	executionTime := params.ExecutionTime
	executionMemory := params.ExecutionMemory
	lastRanCase := params.LastRanCase
	updated, err := e.db.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if j.Status != types.JobStatusStarted && j.Status != types.JobStatusAwaitingVerdict {
			return db.ErrConflict
		}
		if j.VerificationCode != 0 && params.VerificationCode != j.VerificationCode {
			return db.ErrWrongCode
		}
		j.ExecutionTime = &executionTime
		j.ExecutionMemory = &executionMemory
		j.LastRanCase = &lastRanCase
		if lastRanCase == problem.TestCases {
			j.Status = types.JobStatusAwaitingVerdict
		}
		if params.Verdict != "" {
			j.Verdict = params.Verdict
			j.Status = types.JobStatusFinished
			j.CompletionTime = now.Now(ctx)
			j.VerificationCode = 0
		}
		return nil
	})
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	e.submits.Inc(1)
	if updated.Status == types.JobStatusFinished {
		metrics2.GetCounter("judge_verdicts", map[string]string{"verdict": string(updated.Verdict)}).Inc(1)
		sklog.Infof("Job %d finished with verdict %s", jobID, updated.Verdict)
		e.callbacks.Enqueue(updated)
	}
	e.router.Publish(ctx, events.EventJobUpdated, JobUpdate{
		JobID:   jobID,
		Details: updated.VerdictDetails(),
	}, events.JobRoom(jobID))
	return updated, nil
}

// Cancel aborts a non-terminal job. The holding worker, if any, learns of
// the cancellation when its next submit returns ErrConflict. Returns
// ErrConflict if the job is already finished or cancelled.
func (e *Engine) Cancel(ctx context.Context, jobID int64) error {
	_, err := e.db.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if j.Status.Terminal() {
			return db.ErrConflict
		}
		j.Status = types.JobStatusCancelled
		return nil
	})
	if err != nil {
		return skerr.Wrap(err)
	}
	sklog.Infof("Job %d cancelled", jobID)
	e.router.Publish(ctx, events.EventJobCancelled, jobID, events.JobRoom(jobID))
	return nil
}
