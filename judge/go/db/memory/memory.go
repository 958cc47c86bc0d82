// Package memory contains an in-memory implementation of db.DB. It backs the
// dev server's --in_memory mode and is the test double for the engine; its
// claim semantics are identical to sqldb's, with the single mutex standing in
// for the row lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// DB implements db.DB.
type DB struct {
	mtx sync.Mutex

	problems    map[int64]*types.Problem
	submissions map[int64]*types.Submission
	jobs        map[int64]*types.Job
	apiKeys     map[string]*types.APIKey

	nextSubmissionID int64
	nextJobID        int64
}

// New returns an empty in-memory DB.
func New() *DB {
	return &DB{
		problems:         map[int64]*types.Problem{},
		submissions:      map[int64]*types.Submission{},
		jobs:             map[int64]*types.Job{},
		apiKeys:          map[string]*types.APIKey{},
		nextSubmissionID: 1,
		nextJobID:        1,
	}
}

// normalizeTime makes stored times match what a TIMESTAMPTZ column would
// hand back, so both db.DB implementations behave identically.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Microsecond)
}

// PutProblem implements db.ProblemStore.
func (d *DB) PutProblem(ctx context.Context, p *types.Problem) (*types.Problem, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if _, ok := d.problems[p.ID]; ok {
		return nil, db.ErrAlreadyExists
	}
	cpy := p.Copy()
	cpy.LastModified = normalizeTime(now.Now(ctx))
	d.problems[cpy.ID] = cpy
	return cpy.Copy(), nil
}

// UpdateProblem implements db.ProblemStore.
func (d *DB) UpdateProblem(ctx context.Context, id int64, cb func(*types.Problem) error) (*types.Problem, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	stored, ok := d.problems[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cpy := stored.Copy()
	if err := cb(cpy); err != nil {
		return nil, err
	}
	cpy.ID = stored.ID
	cpy.LastModified = normalizeTime(now.Now(ctx))
	d.problems[id] = cpy
	return cpy.Copy(), nil
}

// GetProblem implements db.ProblemStore.
func (d *DB) GetProblem(ctx context.Context, id int64) (*types.Problem, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	p, ok := d.problems[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p.Copy(), nil
}

// ListProblems implements db.ProblemStore.
func (d *DB) ListProblems(ctx context.Context) ([]*types.Problem, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ret := make([]*types.Problem, 0, len(d.problems))
	for _, p := range d.problems {
		ret = append(ret, p.Copy())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

// putSubmissionLocked stores the submission and assigns its id. The caller
// must hold d.mtx.
func (d *DB) putSubmissionLocked(s *types.Submission) (*types.Submission, error) {
	if s.Time.IsZero() {
		return nil, skerr.Fmt("submission Time must be set")
	}
	cpy := s.Copy()
	cpy.ID = d.nextSubmissionID
	d.nextSubmissionID++
	cpy.Time = normalizeTime(cpy.Time)
	d.submissions[cpy.ID] = cpy
	return cpy.Copy(), nil
}

// putJobLocked stores the job and assigns its id. The caller must hold d.mtx.
func (d *DB) putJobLocked(j *types.Job) (*types.Job, error) {
	if j.CreationTime.IsZero() {
		return nil, skerr.Fmt("job CreationTime must be set")
	}
	cpy := j.Copy()
	cpy.ID = d.nextJobID
	d.nextJobID++
	if cpy.Status == "" {
		cpy.Status = types.JobStatusQueued
	}
	cpy.CreationTime = normalizeTime(cpy.CreationTime)
	cpy.ClaimTime = normalizeTime(cpy.ClaimTime)
	cpy.CompletionTime = normalizeTime(cpy.CompletionTime)
	d.jobs[cpy.ID] = cpy
	return cpy.Copy(), nil
}

// PutSubmission implements db.SubmissionStore.
func (d *DB) PutSubmission(ctx context.Context, s *types.Submission) (*types.Submission, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.putSubmissionLocked(s)
}

// PutSubmissionWithJob implements db.SubmissionStore.
func (d *DB) PutSubmissionWithJob(ctx context.Context, s *types.Submission, j *types.Job) (*types.Submission, *types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	storedSub, err := d.putSubmissionLocked(s)
	if err != nil {
		return nil, nil, err
	}
	jobCpy := j.Copy()
	jobCpy.SubmissionID = storedSub.ID
	storedJob, err := d.putJobLocked(jobCpy)
	if err != nil {
		// Roll the submission back so the two writes stay atomic.
		delete(d.submissions, storedSub.ID)
		d.nextSubmissionID--
		return nil, nil, err
	}
	return storedSub, storedJob, nil
}

// GetSubmission implements db.SubmissionStore.
func (d *DB) GetSubmission(ctx context.Context, id int64) (*types.Submission, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	s, ok := d.submissions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return s.Copy(), nil
}

// listSubmissions returns copies of the submissions accepted by the filter,
// ordered by id ascending.
func (d *DB) listSubmissions(filter func(*types.Submission) bool) []*types.Submission {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ret := []*types.Submission{}
	for _, s := range d.submissions {
		if filter(s) {
			ret = append(ret, s.Copy())
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// ListSubmissions implements db.SubmissionStore.
func (d *DB) ListSubmissions(ctx context.Context) ([]*types.Submission, error) {
	return d.listSubmissions(func(*types.Submission) bool { return true }), nil
}

// ListSubmissionsByUID implements db.SubmissionStore.
func (d *DB) ListSubmissionsByUID(ctx context.Context, uid int64) ([]*types.Submission, error) {
	return d.listSubmissions(func(s *types.Submission) bool {
		return s.UID != nil && *s.UID == uid
	}), nil
}

// ListSubmissionsByGID implements db.SubmissionStore.
func (d *DB) ListSubmissionsByGID(ctx context.Context, gid int64) ([]*types.Submission, error) {
	return d.listSubmissions(func(s *types.Submission) bool {
		return s.GID != nil && *s.GID == gid
	}), nil
}

// ListSubmissionsByProblem implements db.SubmissionStore.
func (d *DB) ListSubmissionsByProblem(ctx context.Context, problemID int64) ([]*types.Submission, error) {
	return d.listSubmissions(func(s *types.Submission) bool {
		return s.ProblemID == problemID
	}), nil
}

// PutJob implements db.JobStore.
func (d *DB) PutJob(ctx context.Context, j *types.Job) (*types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.putJobLocked(j)
}

// GetJob implements db.JobStore.
func (d *DB) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	j, ok := d.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return j.Copy(), nil
}

// listJobs returns copies of the jobs accepted by the filter, ordered by id
// ascending.
func (d *DB) listJobs(filter func(*types.Job) bool) []*types.Job {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ret := []*types.Job{}
	for _, j := range d.jobs {
		if filter(j) {
			ret = append(ret, j.Copy())
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// submissionIDsMatching returns the set of submission ids accepted by the
// filter. The caller must hold d.mtx.
func (d *DB) submissionIDsMatching(filter func(*types.Submission) bool) map[int64]bool {
	ids := map[int64]bool{}
	for _, s := range d.submissions {
		if filter(s) {
			ids[s.ID] = true
		}
	}
	return ids
}

// listJobsBySubmissionFilter lists jobs whose owning submission is accepted
// by the filter, ordered by id ascending.
func (d *DB) listJobsBySubmissionFilter(filter func(*types.Submission) bool) []*types.Job {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ids := d.submissionIDsMatching(filter)
	ret := []*types.Job{}
	for _, j := range d.jobs {
		if ids[j.SubmissionID] {
			ret = append(ret, j.Copy())
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// ListJobs implements db.JobStore.
func (d *DB) ListJobs(ctx context.Context) ([]*types.Job, error) {
	return d.listJobs(func(*types.Job) bool { return true }), nil
}

// ListJobsByUID implements db.JobStore.
func (d *DB) ListJobsByUID(ctx context.Context, uid int64) ([]*types.Job, error) {
	return d.listJobsBySubmissionFilter(func(s *types.Submission) bool {
		return s.UID != nil && *s.UID == uid
	}), nil
}

// ListJobsByGID implements db.JobStore.
func (d *DB) ListJobsByGID(ctx context.Context, gid int64) ([]*types.Job, error) {
	return d.listJobsBySubmissionFilter(func(s *types.Submission) bool {
		return s.GID != nil && *s.GID == gid
	}), nil
}

// ListJobsByProblem implements db.JobStore.
func (d *DB) ListJobsByProblem(ctx context.Context, problemID int64) ([]*types.Job, error) {
	return d.listJobsBySubmissionFilter(func(s *types.Submission) bool {
		return s.ProblemID == problemID
	}), nil
}

// ListJobsBySubmission implements db.JobStore.
func (d *DB) ListJobsBySubmission(ctx context.Context, submissionID int64) ([]*types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ret := []*types.Job{}
	for _, j := range d.jobs {
		if j.SubmissionID == submissionID {
			ret = append(ret, j.Copy())
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		if !ret[i].CreationTime.Equal(ret[j].CreationTime) {
			return ret[i].CreationTime.Before(ret[j].CreationTime)
		}
		return ret[i].ID < ret[j].ID
	})
	return ret, nil
}

// UpdateJob implements db.JobStore.
func (d *DB) UpdateJob(ctx context.Context, id int64, cb func(*types.Job) error) (*types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	stored, ok := d.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cpy := stored.Copy()
	if err := cb(cpy); err != nil {
		return nil, err
	}
	cpy.ID = stored.ID
	cpy.SubmissionID = stored.SubmissionID
	cpy.CreationTime = stored.CreationTime
	cpy.ClaimTime = normalizeTime(cpy.ClaimTime)
	cpy.CompletionTime = normalizeTime(cpy.CompletionTime)
	d.jobs[id] = cpy
	return cpy.Copy(), nil
}

// claimable reports whether a jury may take the job: queued, or started but
// without progress since before the cutoff.
func claimable(j *types.Job, cutoff time.Time) bool {
	if j.Status == types.JobStatusQueued {
		return true
	}
	return j.Status == types.JobStatusStarted && j.ClaimTime.Before(cutoff)
}

// ClaimJob implements db.JobStore.
func (d *DB) ClaimJob(ctx context.Context, now time.Time) (*types.Job, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	cutoff := now.Add(-types.StaleClaimAfter)
	var oldest *types.Job
	for _, j := range d.jobs {
		if !claimable(j, cutoff) {
			continue
		}
		if oldest == nil ||
			j.CreationTime.Before(oldest.CreationTime) ||
			(j.CreationTime.Equal(oldest.CreationTime) && j.ID < oldest.ID) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, db.ErrNoWork
	}
	code, err := types.NewVerificationCode()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	oldest.Status = types.JobStatusStarted
	oldest.ClaimTime = normalizeTime(now)
	oldest.VerificationCode = code
	return oldest.Copy(), nil
}

// CountClaimable implements db.JobStore.
func (d *DB) CountClaimable(ctx context.Context, now time.Time) (int64, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	cutoff := now.Add(-types.StaleClaimAfter)
	var count int64
	for _, j := range d.jobs {
		if claimable(j, cutoff) {
			count++
		}
	}
	return count, nil
}

// PutAPIKey implements db.APIKeyStore.
func (d *DB) PutAPIKey(ctx context.Context, k *types.APIKey) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if k.Key == "" {
		return skerr.Fmt("api key token must be set")
	}
	if _, ok := d.apiKeys[k.Key]; ok {
		return db.ErrAlreadyExists
	}
	d.apiKeys[k.Key] = k.Copy()
	return nil
}

// GetAPIKey implements db.APIKeyStore.
func (d *DB) GetAPIKey(ctx context.Context, key string) (*types.APIKey, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	k, ok := d.apiKeys[key]
	if !ok {
		return nil, db.ErrNotFound
	}
	return k.Copy(), nil
}

var _ db.DB = (*DB)(nil)
