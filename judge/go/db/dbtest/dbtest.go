// Package dbtest is the shared contract suite for db.DB implementations.
// Each implementation's _test.go calls every exported function here against
// a fresh store, so the memory and sqldb backends cannot drift apart.
//
// The suite never assumes ids start at a particular value, only that they
// are assigned in increasing order, so it runs against reused databases too.
package dbtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/sktest"
	"github.com/easyctf/openctf-judge/go/testutils"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/types"
	"github.com/stretchr/testify/require"
)

// start is an arbitrary fixed wall time the suite's traveling clocks begin
// at.
var start = time.Date(2017, time.March, 4, 12, 0, 0, 0, time.UTC)

func makeProblem(id int64) *types.Problem {
	return &types.Problem{
		ID:                id,
		TestCases:         20,
		TimeLimit:         1.5,
		MemoryLimit:       65536,
		GeneratorCode:     "generator code",
		GeneratorLanguage: types.LanguagePython3,
		GraderCode:        "grader code",
		GraderLanguage:    types.LanguagePython3,
	}
}

func makeSubmission(problemID int64, receive time.Time) *types.Submission {
	return &types.Submission{
		Time:      receive,
		ProblemID: problemID,
		Code:      "int main() { return 0; }",
		Language:  types.LanguageCxx,
	}
}

func makeJob(submissionID int64, creation time.Time) *types.Job {
	return &types.Job{
		SubmissionID: submissionID,
		CreationTime: creation,
		Status:       types.JobStatusQueued,
	}
}

// mustCreateProblem stores a problem the submissions below can reference.
func mustCreateProblem(t sktest.TestingT, ctx context.Context, d db.DB, id int64) *types.Problem {
	p, err := d.PutProblem(ctx, makeProblem(id))
	require.NoError(t, err)
	return p
}

// TestProblemStore exercises the ProblemStore contract.
func TestProblemStore(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)

	// Empty store.
	_, err := d.GetProblem(ctx, 1)
	require.True(t, db.IsNotFound(err))
	problems, err := d.ListProblems(ctx)
	require.NoError(t, err)
	require.Empty(t, problems)

	// Create; LastModified comes from the context clock.
	created, err := d.PutProblem(ctx, makeProblem(1))
	require.NoError(t, err)
	require.Equal(t, start, created.LastModified)

	// Duplicate id.
	_, err = d.PutProblem(ctx, makeProblem(1))
	require.True(t, db.IsAlreadyExists(err))

	// Read back.
	got, err := d.GetProblem(ctx, 1)
	require.NoError(t, err)
	testutils.AssertDeepEqual(t, created, got)

	// Update bumps LastModified and applies the callback.
	ctx.SetTime(start.Add(time.Minute))
	updated, err := d.UpdateProblem(ctx, 1, func(p *types.Problem) error {
		p.TimeLimit = 3.0
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3.0, updated.TimeLimit)
	require.Equal(t, start.Add(time.Minute), updated.LastModified)

	// The callback cannot reassign the id.
	renamed, err := d.UpdateProblem(ctx, 1, func(p *types.Problem) error {
		p.ID = 999
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), renamed.ID)
	_, err = d.GetProblem(ctx, 999)
	require.True(t, db.IsNotFound(err))

	// A callback error aborts the update.
	_, err = d.UpdateProblem(ctx, 1, func(p *types.Problem) error {
		p.TimeLimit = 99.0
		return errCallbackFailed
	})
	require.ErrorIs(t, err, errCallbackFailed)
	got, err = d.GetProblem(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3.0, got.TimeLimit)

	// Update of a missing problem.
	_, err = d.UpdateProblem(ctx, 42, func(p *types.Problem) error { return nil })
	require.True(t, db.IsNotFound(err))

	// List is ordered by id.
	mustCreateProblem(t, ctx, d, 3)
	mustCreateProblem(t, ctx, d, 2)
	problems, err = d.ListProblems(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(problems))
	for _, p := range problems {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []int64{1, 2, 3}, ids)
}

// errCallbackFailed stands in for an arbitrary application error returned
// by an update callback.
var errCallbackFailed = errors.New("callback failed")

// TestSubmissionStore exercises the SubmissionStore contract.
func TestSubmissionStore(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)
	mustCreateProblem(t, ctx, d, 2)

	_, err := d.GetSubmission(ctx, 99999)
	require.True(t, db.IsNotFound(err))

	// Time is required.
	_, err = d.PutSubmission(ctx, &types.Submission{ProblemID: 1})
	require.Error(t, err)

	uid1, gid1 := int64(10), int64(20)
	s1 := makeSubmission(1, start)
	s1.UID = &uid1
	s1.GID = &gid1
	stored1, err := d.PutSubmission(ctx, s1)
	require.NoError(t, err)
	require.NotZero(t, stored1.ID)
	require.Equal(t, start, stored1.Time)

	s2 := makeSubmission(2, start.Add(time.Second))
	s2.UID = &uid1
	stored2, err := d.PutSubmission(ctx, s2)
	require.NoError(t, err)
	require.Greater(t, stored2.ID, stored1.ID)

	// The store holds its own copy.
	s1.Code = "mutated after store"
	got, err := d.GetSubmission(ctx, stored1.ID)
	require.NoError(t, err)
	require.Equal(t, "int main() { return 0; }", got.Code)
	require.Equal(t, uid1, *got.UID)
	require.Equal(t, gid1, *got.GID)

	// Filtered lists.
	all, err := d.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Less(t, all[0].ID, all[1].ID)

	byUID, err := d.ListSubmissionsByUID(ctx, uid1)
	require.NoError(t, err)
	require.Len(t, byUID, 2)
	byUID, err = d.ListSubmissionsByUID(ctx, 777)
	require.NoError(t, err)
	require.Empty(t, byUID)

	byGID, err := d.ListSubmissionsByGID(ctx, gid1)
	require.NoError(t, err)
	require.Len(t, byGID, 1)
	require.Equal(t, stored1.ID, byGID[0].ID)

	byProblem, err := d.ListSubmissionsByProblem(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byProblem, 1)
	require.Equal(t, stored2.ID, byProblem[0].ID)
}

// TestPutSubmissionWithJob exercises the atomic submission+job create.
func TestPutSubmissionWithJob(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)

	sub, job, err := d.PutSubmissionWithJob(ctx, makeSubmission(1, start), &types.Job{
		CreationTime: start,
		CallbackURL:  "http://ctf.example.com/cb",
	})
	require.NoError(t, err)
	require.NotZero(t, sub.ID)
	require.NotZero(t, job.ID)
	require.Equal(t, sub.ID, job.SubmissionID)
	require.Equal(t, types.JobStatusQueued, job.Status)
	require.Equal(t, "http://ctf.example.com/cb", job.CallbackURL)

	jobs, err := d.ListJobsBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	testutils.AssertDeepEqual(t, job, jobs[0])
}

// TestJobStore exercises the basic JobStore contract.
func TestJobStore(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)
	mustCreateProblem(t, ctx, d, 2)

	_, err := d.GetJob(ctx, 99999)
	require.True(t, db.IsNotFound(err))

	// CreationTime is required.
	_, err = d.PutJob(ctx, &types.Job{SubmissionID: 1})
	require.Error(t, err)

	uid, gid := int64(10), int64(20)
	s1 := makeSubmission(1, start)
	s1.UID = &uid
	sub1, err := d.PutSubmission(ctx, s1)
	require.NoError(t, err)
	s2 := makeSubmission(2, start)
	s2.GID = &gid
	sub2, err := d.PutSubmission(ctx, s2)
	require.NoError(t, err)

	// An empty status becomes queued.
	j1, err := d.PutJob(ctx, &types.Job{SubmissionID: sub1.ID, CreationTime: start})
	require.NoError(t, err)
	require.Equal(t, types.JobStatusQueued, j1.Status)

	// Second job for the same submission, created later.
	j2, err := d.PutJob(ctx, makeJob(sub1.ID, start.Add(time.Second)))
	require.NoError(t, err)
	j3, err := d.PutJob(ctx, makeJob(sub2.ID, start.Add(2*time.Second)))
	require.NoError(t, err)

	all, err := d.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	byUID, err := d.ListJobsByUID(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, []int64{j1.ID, j2.ID}, jobIDs(byUID))

	byGID, err := d.ListJobsByGID(ctx, gid)
	require.NoError(t, err)
	require.Equal(t, []int64{j3.ID}, jobIDs(byGID))

	byProblem, err := d.ListJobsByProblem(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{j1.ID, j2.ID}, jobIDs(byProblem))

	bySub, err := d.ListJobsBySubmission(ctx, sub1.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{j1.ID, j2.ID}, jobIDs(bySub))

	// UpdateJob applies the callback under the row lock.
	lastRanCase := int64(5)
	updated, err := d.UpdateJob(ctx, j1.ID, func(j *types.Job) error {
		j.Status = types.JobStatusStarted
		j.ClaimTime = start.Add(time.Minute)
		j.VerificationCode = 12345
		j.LastRanCase = &lastRanCase
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, types.JobStatusStarted, updated.Status)
	require.Equal(t, start.Add(time.Minute), updated.ClaimTime)
	require.Equal(t, int64(12345), updated.VerificationCode)
	require.Equal(t, lastRanCase, *updated.LastRanCase)

	// Immutable fields survive a misbehaving callback.
	updated, err = d.UpdateJob(ctx, j1.ID, func(j *types.Job) error {
		j.ID = 9999
		j.SubmissionID = 9999
		j.CreationTime = start.Add(time.Hour)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, j1.ID, updated.ID)
	require.Equal(t, sub1.ID, updated.SubmissionID)
	require.Equal(t, start, updated.CreationTime)

	// A callback error aborts the transaction, preserving sentinel identity.
	_, err = d.UpdateJob(ctx, j1.ID, func(j *types.Job) error {
		j.Status = types.JobStatusCancelled
		return db.ErrConflict
	})
	require.True(t, db.IsConflict(err))
	got, err := d.GetJob(ctx, j1.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobStatusStarted, got.Status)

	_, err = d.UpdateJob(ctx, 99999, func(j *types.Job) error { return nil })
	require.True(t, db.IsNotFound(err))
}

func jobIDs(jobs []*types.Job) []int64 {
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// TestClaimJob exercises the claim transaction: FIFO order, the stale
// window boundary, code rolling, and the non-claimable statuses.
func TestClaimJob(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)
	sub, err := d.PutSubmission(ctx, makeSubmission(1, start))
	require.NoError(t, err)

	// Nothing to claim.
	_, err = d.ClaimJob(ctx, start)
	require.True(t, db.IsNoWork(err))

	// FIFO by creation time, ties broken by id.
	jOld, err := d.PutJob(ctx, makeJob(sub.ID, start))
	require.NoError(t, err)
	jTie, err := d.PutJob(ctx, makeJob(sub.ID, start))
	require.NoError(t, err)
	jNew, err := d.PutJob(ctx, makeJob(sub.ID, start.Add(time.Second)))
	require.NoError(t, err)

	claimTime := start.Add(time.Minute)
	first, err := d.ClaimJob(ctx, claimTime)
	require.NoError(t, err)
	require.Equal(t, jOld.ID, first.ID)
	require.Equal(t, types.JobStatusStarted, first.Status)
	require.Equal(t, claimTime, first.ClaimTime)
	require.GreaterOrEqual(t, first.VerificationCode, int64(1))
	require.LessOrEqual(t, first.VerificationCode, int64(types.MaxVerificationCode))

	second, err := d.ClaimJob(ctx, claimTime)
	require.NoError(t, err)
	require.Equal(t, jTie.ID, second.ID)

	third, err := d.ClaimJob(ctx, claimTime)
	require.NoError(t, err)
	require.Equal(t, jNew.ID, third.ID)

	_, err = d.ClaimJob(ctx, claimTime)
	require.True(t, db.IsNoWork(err))

	// Exactly at the five minute boundary a started job is still held.
	_, err = d.ClaimJob(ctx, claimTime.Add(types.StaleClaimAfter))
	require.True(t, db.IsNoWork(err))

	// Past the boundary the oldest started job is reclaimed with a fresh
	// code.
	reclaimed, err := d.ClaimJob(ctx, claimTime.Add(types.StaleClaimAfter+time.Second))
	require.NoError(t, err)
	require.Equal(t, jOld.ID, reclaimed.ID)
	require.Equal(t, types.JobStatusStarted, reclaimed.Status)
	require.Equal(t, claimTime.Add(types.StaleClaimAfter+time.Second), reclaimed.ClaimTime)
	require.NotEqual(t, first.VerificationCode, reclaimed.VerificationCode)

	// Awaiting_verdict and terminal jobs are never claimable, no matter how
	// old their claims are.
	for id, status := range map[int64]types.JobStatus{
		jOld.ID: types.JobStatusAwaitingVerdict,
		jTie.ID: types.JobStatusFinished,
		jNew.ID: types.JobStatusCancelled,
	} {
		status := status
		_, err = d.UpdateJob(ctx, id, func(j *types.Job) error {
			j.Status = status
			return nil
		})
		require.NoError(t, err)
	}
	_, err = d.ClaimJob(ctx, claimTime.Add(24*time.Hour))
	require.True(t, db.IsNoWork(err))
}

// TestCountClaimable exercises the autoscaler's load sample.
func TestCountClaimable(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)
	sub, err := d.PutSubmission(ctx, makeSubmission(1, start))
	require.NoError(t, err)

	count, err := d.CountClaimable(ctx, start)
	require.NoError(t, err)
	require.Zero(t, count)

	// Two queued.
	_, err = d.PutJob(ctx, makeJob(sub.ID, start))
	require.NoError(t, err)
	_, err = d.PutJob(ctx, makeJob(sub.ID, start))
	require.NoError(t, err)

	// One started fresh, at t+1m.
	claimed, err := d.ClaimJob(ctx, start.Add(time.Minute))
	require.NoError(t, err)

	// One cancelled.
	j, err := d.PutJob(ctx, makeJob(sub.ID, start))
	require.NoError(t, err)
	_, err = d.UpdateJob(ctx, j.ID, func(j *types.Job) error {
		j.Status = types.JobStatusCancelled
		return nil
	})
	require.NoError(t, err)

	// At t+2m: one queued job remains, the started one is fresh.
	count, err = d.CountClaimable(ctx, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Once the claim goes stale it counts again.
	count, err = d.CountClaimable(ctx, claimed.ClaimTime.Add(types.StaleClaimAfter+time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

// TestConcurrentClaims checks that racing claimers never receive the same
// job twice without an intervening state change.
func TestConcurrentClaims(t sktest.TestingT, d db.DB) {
	ctx := now.TimeTravelingContext(start)
	mustCreateProblem(t, ctx, d, 1)
	sub, err := d.PutSubmission(ctx, makeSubmission(1, start))
	require.NoError(t, err)

	const numJobs = 10
	for i := 0; i < numJobs; i++ {
		_, err := d.PutJob(ctx, makeJob(sub.ID, start.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	const numClaimers = 20
	claimedCh := make(chan int64, numJobs*numClaimers)
	errCh := make(chan error, numClaimers)
	var wg sync.WaitGroup
	for i := 0; i < numClaimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := d.ClaimJob(ctx, start.Add(time.Minute))
				if db.IsNoWork(err) {
					return
				}
				if err != nil {
					errCh <- err
					return
				}
				claimedCh <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claimedCh)
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	seen := map[int64]int{}
	for id := range claimedCh {
		seen[id]++
	}
	require.Len(t, seen, numJobs)
	for id, count := range seen {
		require.Equal(t, 1, count, "job %d was claimed %d times", id, count)
	}
}

// TestAPIKeyStore exercises the APIKeyStore contract.
func TestAPIKeyStore(t sktest.TestingT, d db.DB) {
	ctx := context.Background()

	_, err := d.GetAPIKey(ctx, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.True(t, db.IsNotFound(err))

	require.Error(t, d.PutAPIKey(ctx, &types.APIKey{}))

	key := &types.APIKey{
		Key:    "0123456789abcdef0123456789abcdef",
		Name:   "jury-0a1b2c3d",
		Active: true,
		Jury:   true,
	}
	require.NoError(t, d.PutAPIKey(ctx, key))

	got, err := d.GetAPIKey(ctx, key.Key)
	require.NoError(t, err)
	testutils.AssertDeepEqual(t, key, got)

	err = d.PutAPIKey(ctx, &types.APIKey{Key: key.Key, Name: "other"})
	require.True(t, db.IsAlreadyExists(err))
}
