package types

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/easyctf/openctf-judge/go/jsonutils"
	"github.com/easyctf/openctf-judge/go/skerr"
)

const (
	// StaleClaimAfter is how long a started Job may go without progress
	// before it counts as abandoned and becomes claimable again.
	StaleClaimAfter = 5 * time.Minute

	// MaxVerificationCode is the inclusive upper bound of the range
	// verification codes are drawn from.
	MaxVerificationCode = 1000000000

	// MaxCallbackURLLength bounds a Job's callback_url field.
	MaxCallbackURLLength = 256
)

// JobStatus represents where a Job is in its lifecycle.
type JobStatus string

const (
	// JobStatusQueued means the Job is waiting to be claimed by a jury.
	JobStatusQueued JobStatus = "queued"

	// JobStatusStarted means a jury has claimed the Job and is running test
	// cases.
	JobStatusStarted JobStatus = "started"

	// JobStatusAwaitingVerdict means every test case has run but the jury
	// has not delivered a verdict yet.
	JobStatusAwaitingVerdict JobStatus = "awaiting_verdict"

	// JobStatusFinished means a verdict was delivered. Terminal.
	JobStatusFinished JobStatus = "finished"

	// JobStatusCancelled means the Job was cancelled by a reader. Terminal.
	JobStatusCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists the valid JobStatus values.
var AllJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusStarted,
	JobStatusAwaitingVerdict,
	JobStatusFinished,
	JobStatusCancelled,
}

// Terminal returns true if no transition leads out of this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusCancelled
}

// Verdict is a jury's final judgement of a Job.
type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictRan                 Verdict = "RAN"
	VerdictInvalidSource       Verdict = "IS"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RTE"
	VerdictIllegalSyscall      Verdict = "ISC"
	VerdictCompilationError    Verdict = "CE"
	VerdictJudgeError          Verdict = "JE"
)

// AllVerdicts lists the valid Verdict values.
var AllVerdicts = []Verdict{
	VerdictAccepted,
	VerdictRan,
	VerdictInvalidSource,
	VerdictWrongAnswer,
	VerdictTimeLimitExceeded,
	VerdictMemoryLimitExceeded,
	VerdictRuntimeError,
	VerdictIllegalSyscall,
	VerdictCompilationError,
	VerdictJudgeError,
}

// Valid returns true if v is one of the ten verdict codes.
func (v Verdict) Valid() bool {
	for _, other := range AllVerdicts {
		if v == other {
			return true
		}
	}
	return false
}

// Job is the unit of evaluation and the primary state-bearing entity.
//
// Nullable columns map to Go as follows: a zero ClaimTime or CompletionTime
// is null, a zero VerificationCode is null (valid codes start at 1), an
// empty Verdict is null, and the three execution fields are pointers since
// zero is a meaningful reported value for each of them.
type Job struct {
	ID           int64     `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	CreationTime time.Time `json:"creation_time"`
	Status       JobStatus `json:"status"`

	// ClaimTime is set on the transition to started and cleared on release.
	ClaimTime time.Time `json:"claim_time"`

	// CompletionTime is set on the transition to finished.
	CompletionTime time.Time `json:"completion_time"`

	// VerificationCode interlocks worker mutations: it is rolled fresh on
	// every claim and must accompany every submit or release.
	VerificationCode int64 `json:"verification_code"`

	// LastRanCase counts the test cases the jury has completed so far.
	LastRanCase *int64 `json:"last_ran_case"`

	// ExecutionTime is the running max across cases, in seconds.
	ExecutionTime *float64 `json:"execution_time"`

	// ExecutionMemory is the running max across cases, in kilobytes.
	ExecutionMemory *int64 `json:"execution_memory"`

	Verdict     Verdict `json:"verdict"`
	CallbackURL string  `json:"callback_url"`
}

// Copy returns a deep copy of the Job.
func (j *Job) Copy() *Job {
	ret := &Job{
		ID:               j.ID,
		SubmissionID:     j.SubmissionID,
		CreationTime:     j.CreationTime,
		Status:           j.Status,
		ClaimTime:        j.ClaimTime,
		CompletionTime:   j.CompletionTime,
		VerificationCode: j.VerificationCode,
		Verdict:          j.Verdict,
		CallbackURL:      j.CallbackURL,
	}
	if j.LastRanCase != nil {
		v := *j.LastRanCase
		ret.LastRanCase = &v
	}
	if j.ExecutionTime != nil {
		v := *j.ExecutionTime
		ret.ExecutionTime = &v
	}
	if j.ExecutionMemory != nil {
		v := *j.ExecutionMemory
		ret.ExecutionMemory = &v
	}
	return ret
}

// JobDetails is the public representation of a Job. Null fields are omitted
// from the serialized form.
type JobDetails struct {
	ID              int64           `json:"id"`
	SubmissionID    int64           `json:"submission_id"`
	CreationTime    *jsonutils.Time `json:"creation_time,omitempty"`
	Status          JobStatus       `json:"status"`
	ClaimTime       *jsonutils.Time `json:"claim_time,omitempty"`
	CompletionTime  *jsonutils.Time `json:"completion_time,omitempty"`
	LastRanCase     *int64          `json:"last_ran_case,omitempty"`
	ExecutionTime   *float64        `json:"execution_time,omitempty"`
	ExecutionMemory *int64          `json:"execution_memory,omitempty"`
	Verdict         Verdict         `json:"verdict,omitempty"`
}

// Details returns the public representation of the Job.
func (j *Job) Details() JobDetails {
	return JobDetails{
		ID:              j.ID,
		SubmissionID:    j.SubmissionID,
		CreationTime:    maybeTime(j.CreationTime),
		Status:          j.Status,
		ClaimTime:       maybeTime(j.ClaimTime),
		CompletionTime:  maybeTime(j.CompletionTime),
		LastRanCase:     j.LastRanCase,
		ExecutionTime:   j.ExecutionTime,
		ExecutionMemory: j.ExecutionMemory,
		Verdict:         j.Verdict,
	}
}

// ClaimDetails is the payload returned to the jury that claims a Job. It is
// the only payload that carries the verification code and the code under
// test.
type ClaimDetails struct {
	ID               int64    `json:"id"`
	ProblemID        int64    `json:"problem_id"`
	VerificationCode int64    `json:"verification_code"`
	Code             string   `json:"code"`
	Language         Language `json:"language"`
}

// ClaimDetails returns the claim payload for the Job and the Submission it
// evaluates.
func (j *Job) ClaimDetails(sub *Submission) ClaimDetails {
	return ClaimDetails{
		ID:               j.ID,
		ProblemID:        sub.ProblemID,
		VerificationCode: j.VerificationCode,
		Code:             sub.Code,
		Language:         sub.Language,
	}
}

// VerdictDetails is the payload carried by job_updated events. Null fields
// are omitted from the serialized form.
type VerdictDetails struct {
	Status          JobStatus       `json:"status"`
	CompletionTime  *jsonutils.Time `json:"completion_time,omitempty"`
	LastRanCase     *int64          `json:"last_ran_case,omitempty"`
	ExecutionTime   *float64        `json:"execution_time,omitempty"`
	ExecutionMemory *int64          `json:"execution_memory,omitempty"`
	Verdict         Verdict         `json:"verdict,omitempty"`
}

// VerdictDetails returns the verdict payload for the Job.
func (j *Job) VerdictDetails() VerdictDetails {
	return VerdictDetails{
		Status:          j.Status,
		CompletionTime:  maybeTime(j.CompletionTime),
		LastRanCase:     j.LastRanCase,
		ExecutionTime:   j.ExecutionTime,
		ExecutionMemory: j.ExecutionMemory,
		Verdict:         j.Verdict,
	}
}

// maybeTime converts a zero time to a nil pointer so that omitempty can drop
// it from detail payloads.
func maybeTime(t time.Time) *jsonutils.Time {
	if t.IsZero() {
		return nil
	}
	ret := jsonutils.Time(t)
	return &ret
}

// NewVerificationCode returns a code drawn uniformly from
// [1, MaxVerificationCode] using crypto/rand.
func NewVerificationCode() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxVerificationCode))
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	return n.Int64() + 1, nil
}
