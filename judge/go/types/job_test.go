package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils"
	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

// fullJob returns a Job with every field set, for Copy testing.
func fullJob() *Job {
	lastRanCase := int64(10)
	executionTime := 0.25
	executionMemory := int64(2048)
	return &Job{
		ID:               77,
		SubmissionID:     12,
		CreationTime:     time.Unix(1475508449, 0).UTC(),
		Status:           JobStatusFinished,
		ClaimTime:        time.Unix(1475508500, 0).UTC(),
		CompletionTime:   time.Unix(1475508600, 0).UTC(),
		VerificationCode: 123456789,
		LastRanCase:      &lastRanCase,
		ExecutionTime:    &executionTime,
		ExecutionMemory:  &executionMemory,
		Verdict:          VerdictAccepted,
		CallbackURL:      "http://ctf.example.com/callback",
	}
}

func TestCopyJob(t *testing.T) {
	unittest.SmallTest(t)
	j := fullJob()
	testutils.AssertCopy(t, j, j.Copy())
}

func TestJobStatusTerminal(t *testing.T) {
	unittest.SmallTest(t)
	require.False(t, JobStatusQueued.Terminal())
	require.False(t, JobStatusStarted.Terminal())
	require.False(t, JobStatusAwaitingVerdict.Terminal())
	require.True(t, JobStatusFinished.Terminal())
	require.True(t, JobStatusCancelled.Terminal())
}

func TestVerdictValid(t *testing.T) {
	unittest.SmallTest(t)
	for _, v := range AllVerdicts {
		require.True(t, v.Valid(), "verdict %q", v)
	}
	require.False(t, Verdict("").Valid())
	require.False(t, Verdict("ac").Valid())
	require.False(t, Verdict("SEGFAULT").Valid())
}

func TestJobDetails_QueuedJob_NullFieldsOmitted(t *testing.T) {
	unittest.SmallTest(t)
	j := &Job{
		ID:           1,
		SubmissionID: 2,
		CreationTime: time.Unix(1475508449, 0).UTC(),
		Status:       JobStatusQueued,
	}
	b, err := json.Marshal(j.Details())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": 1,
		"submission_id": 2,
		"creation_time": 1475508449,
		"status": "queued"
	}`, string(b))
}

func TestJobDetails_FinishedJob_AllFieldsPresent(t *testing.T) {
	unittest.SmallTest(t)
	j := fullJob()
	b, err := json.Marshal(j.Details())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": 77,
		"submission_id": 12,
		"creation_time": 1475508449,
		"status": "finished",
		"claim_time": 1475508500,
		"completion_time": 1475508600,
		"last_ran_case": 10,
		"execution_time": 0.25,
		"execution_memory": 2048,
		"verdict": "AC"
	}`, string(b))
}

func TestClaimDetails(t *testing.T) {
	unittest.SmallTest(t)
	j := &Job{
		ID:               7,
		SubmissionID:     3,
		Status:           JobStatusStarted,
		ClaimTime:        time.Unix(1475508449, 0).UTC(),
		VerificationCode: 424242,
	}
	sub := &Submission{
		ID:        3,
		ProblemID: 9,
		Code:      "int main() {}",
		Language:  LanguageCxx,
	}
	b, err := json.Marshal(j.ClaimDetails(sub))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": 7,
		"problem_id": 9,
		"verification_code": 424242,
		"code": "int main() {}",
		"language": "cxx"
	}`, string(b))
}

func TestVerdictDetails_PartialProgress(t *testing.T) {
	unittest.SmallTest(t)
	lastRanCase := int64(3)
	executionTime := 0.5
	executionMemory := int64(512)
	j := &Job{
		ID:               7,
		Status:           JobStatusStarted,
		ClaimTime:        time.Unix(1475508449, 0).UTC(),
		VerificationCode: 1,
		LastRanCase:      &lastRanCase,
		ExecutionTime:    &executionTime,
		ExecutionMemory:  &executionMemory,
	}
	b, err := json.Marshal(j.VerdictDetails())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"status": "started",
		"last_ran_case": 3,
		"execution_time": 0.5,
		"execution_memory": 512
	}`, string(b))
}

func TestNewVerificationCode_InRange(t *testing.T) {
	unittest.SmallTest(t)
	for i := 0; i < 1000; i++ {
		code, err := NewVerificationCode()
		require.NoError(t, err)
		require.GreaterOrEqual(t, code, int64(1))
		require.LessOrEqual(t, code, int64(MaxVerificationCode))
	}
}
