// Package db defines the storage contract of the judge. Two implementations
// exist: memory (dev server and test double) and sqldb (PostgreSQL via pgx).
// Both must pass the contract suite in dbtest.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/easyctf/openctf-judge/judge/go/types"
)

var (
	// ErrNotFound is returned when the named entity does not exist.
	ErrNotFound = errors.New("entity with given id does not exist")

	// ErrAlreadyExists is returned when creating an entity whose id is
	// already taken.
	ErrAlreadyExists = errors.New("entity with given id already exists")

	// ErrConflict is returned when an operation is illegal in the entity's
	// current state.
	ErrConflict = errors.New("operation conflicts with current state")

	// ErrWrongCode is returned when a supplied verification code does not
	// match the stored one.
	ErrWrongCode = errors.New("verification code does not match")

	// ErrNoWork is returned by ClaimJob when no job is claimable.
	ErrNoWork = errors.New("no claimable jobs")
)

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if err is or wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict returns true if err is or wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsWrongCode returns true if err is or wraps ErrWrongCode.
func IsWrongCode(err error) bool {
	return errors.Is(err, ErrWrongCode)
}

// IsNoWork returns true if err is or wraps ErrNoWork.
func IsNoWork(err error) bool {
	return errors.Is(err, ErrNoWork)
}

// ProblemStore stores Problems. Implementations return copies; callers own
// what they receive and never share pointers with the store.
type ProblemStore interface {
	// PutProblem creates a Problem under its caller-assigned id and stamps
	// LastModified from the context clock. Returns ErrAlreadyExists if the
	// id is taken.
	PutProblem(ctx context.Context, p *types.Problem) (*types.Problem, error)

	// UpdateProblem applies cb to the stored Problem under a row lock, then
	// bumps LastModified. A cb error aborts the update and is returned
	// unchanged. The Problem's ID and LastModified are not settable by cb.
	// Returns ErrNotFound if no such Problem exists.
	UpdateProblem(ctx context.Context, id int64, cb func(*types.Problem) error) (*types.Problem, error)

	// GetProblem returns the Problem with the given id, or ErrNotFound.
	GetProblem(ctx context.Context, id int64) (*types.Problem, error)

	// ListProblems returns all Problems ordered by id ascending.
	ListProblems(ctx context.Context) ([]*types.Problem, error)
}

// SubmissionStore stores Submissions. Submissions are immutable once stored.
type SubmissionStore interface {
	// PutSubmission stores a new Submission and assigns its id. The caller
	// must have set Time. The stored copy is returned; the argument is not
	// mutated.
	PutSubmission(ctx context.Context, s *types.Submission) (*types.Submission, error)

	// PutSubmissionWithJob atomically stores a new Submission and its first
	// Job. The Job's SubmissionID is assigned by the store.
	PutSubmissionWithJob(ctx context.Context, s *types.Submission, j *types.Job) (*types.Submission, *types.Job, error)

	// GetSubmission returns the Submission with the given id, or ErrNotFound.
	GetSubmission(ctx context.Context, id int64) (*types.Submission, error)

	// ListSubmissions returns all Submissions ordered by id ascending, as do
	// the filtered variants below.
	ListSubmissions(ctx context.Context) ([]*types.Submission, error)
	ListSubmissionsByUID(ctx context.Context, uid int64) ([]*types.Submission, error)
	ListSubmissionsByGID(ctx context.Context, gid int64) ([]*types.Submission, error)
	ListSubmissionsByProblem(ctx context.Context, problemID int64) ([]*types.Submission, error)
}

// JobStore stores Jobs and implements the claim transaction.
type JobStore interface {
	// PutJob stores a new Job and assigns its id. The caller must have set
	// CreationTime; an empty Status becomes queued. The stored copy is
	// returned; the argument is not mutated.
	PutJob(ctx context.Context, j *types.Job) (*types.Job, error)

	// GetJob returns the Job with the given id, or ErrNotFound.
	GetJob(ctx context.Context, id int64) (*types.Job, error)

	// ListJobs returns all Jobs ordered by id ascending. The uid, gid, and
	// problem variants filter through the owning Submission.
	ListJobs(ctx context.Context) ([]*types.Job, error)
	ListJobsByUID(ctx context.Context, uid int64) ([]*types.Job, error)
	ListJobsByGID(ctx context.Context, gid int64) ([]*types.Job, error)
	ListJobsByProblem(ctx context.Context, problemID int64) ([]*types.Job, error)

	// ListJobsBySubmission returns the Submission's Jobs ordered by
	// (creation_time, id) ascending.
	ListJobsBySubmission(ctx context.Context, submissionID int64) ([]*types.Job, error)

	// UpdateJob applies cb to the Job under a row lock and stores the
	// result. A cb error aborts the transaction and is returned unchanged,
	// so sentinel errors like ErrConflict survive for the caller to match.
	// The Job's ID, SubmissionID, and CreationTime are not settable by cb.
	// Returns the updated Job, or ErrNotFound.
	UpdateJob(ctx context.Context, id int64, cb func(*types.Job) error) (*types.Job, error)

	// ClaimJob atomically claims the oldest claimable Job: a job is
	// claimable iff it is queued, or started with a claim_time older than
	// now minus types.StaleClaimAfter. The claimed Job becomes started with
	// claim_time=now and a fresh verification code. Under concurrent calls
	// each job is handed out at most once per claim transition. Returns
	// ErrNoWork when nothing is claimable.
	ClaimJob(ctx context.Context, now time.Time) (*types.Job, error)

	// CountClaimable counts the jobs ClaimJob would consider, for the
	// autoscaler's load sample.
	CountClaimable(ctx context.Context, now time.Time) (int64, error)
}

// APIKeyStore stores APIKeys, keyed by their token.
type APIKeyStore interface {
	// PutAPIKey stores a new APIKey. Returns ErrAlreadyExists if the token
	// is taken.
	PutAPIKey(ctx context.Context, k *types.APIKey) error

	// GetAPIKey returns the APIKey with the given token, or ErrNotFound.
	GetAPIKey(ctx context.Context, key string) (*types.APIKey, error)
}

// DB bundles every store the judge needs.
type DB interface {
	ProblemStore
	SubmissionStore
	JobStore
	APIKeyStore
}
