package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils"
	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

func TestLanguageSupported(t *testing.T) {
	unittest.SmallTest(t)
	for l := range SupportedLanguages {
		require.True(t, l.Supported(), "language %q", l)
	}
	require.False(t, Language("").Supported())
	require.False(t, Language("CXX").Supported())
	require.False(t, Language("rust").Supported())
}

func TestCopySubmission(t *testing.T) {
	unittest.SmallTest(t)
	uid := int64(4)
	gid := int64(5)
	s := &Submission{
		ID:        1,
		UID:       &uid,
		GID:       &gid,
		Time:      time.Unix(1475508449, 0).UTC(),
		ProblemID: 2,
		Code:      "print('hi')",
		Language:  LanguagePython3,
	}
	testutils.AssertCopy(t, s, s.Copy())
}

func TestCopyProblem(t *testing.T) {
	unittest.SmallTest(t)
	p := &Problem{
		ID:                     1,
		LastModified:           time.Unix(1475508449, 0).UTC(),
		TestCases:              20,
		TimeLimit:              1.5,
		MemoryLimit:            65536,
		GeneratorCode:          "gen",
		GeneratorLanguage:      LanguagePython3,
		GraderCode:             "grade",
		GraderLanguage:         LanguagePython3,
		SourceVerifierCode:     "verify",
		SourceVerifierLanguage: LanguagePython2,
	}
	testutils.AssertCopy(t, p, p.Copy())
}

func TestCopyAPIKey(t *testing.T) {
	unittest.SmallTest(t)
	k := &APIKey{
		Key:    "0123456789abcdef0123456789abcdef",
		Name:   "jury-0a1b2c3d",
		Active: true,
		Jury:   true,
		Reader: true,
		Master: true,
	}
	testutils.AssertCopy(t, k, k.Copy())
}

func TestSubmissionDetails_AbsentUIDAndGIDAreExplicitNulls(t *testing.T) {
	unittest.SmallTest(t)
	s := &Submission{
		ID:        3,
		Time:      time.Unix(1475508449, 0).UTC(),
		ProblemID: 9,
		Code:      "code",
		Language:  LanguageJava,
	}
	job := &Job{
		ID:           4,
		SubmissionID: 3,
		CreationTime: time.Unix(1475508450, 0).UTC(),
		Status:       JobStatusQueued,
	}
	b, err := json.Marshal(s.Details([]*Job{job}))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": 3,
		"uid": null,
		"gid": null,
		"time": 1475508449,
		"problem_id": 9,
		"code": "code",
		"language": "java",
		"jobs": [
			{
				"id": 4,
				"submission_id": 3,
				"creation_time": 1475508450,
				"status": "queued"
			}
		]
	}`, string(b))
}

func TestSubmissionDetails_NoJobs_EmptyList(t *testing.T) {
	unittest.SmallTest(t)
	s := &Submission{
		ID:        3,
		Time:      time.Unix(1475508449, 0).UTC(),
		ProblemID: 9,
		Language:  LanguageCxx,
	}
	b, err := json.Marshal(s.Details(nil))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, []interface{}{}, decoded["jobs"])
}

func TestProblemDetails_AbsentVerifierIsExplicitNull(t *testing.T) {
	unittest.SmallTest(t)
	p := &Problem{
		ID:                1,
		LastModified:      time.Unix(1475508449, 500000000).UTC(),
		TestCases:         20,
		TimeLimit:         1.5,
		MemoryLimit:       65536,
		GeneratorCode:     "gen",
		GeneratorLanguage: LanguagePython3,
		GraderCode:        "grade",
		GraderLanguage:    LanguageCxx,
	}
	b, err := json.Marshal(p.Details())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": 1,
		"last_modified": 1475508449.5,
		"test_cases": 20,
		"time_limit": 1.5,
		"memory_limit": 65536,
		"generator_code": "gen",
		"generator_language": "python3",
		"grader_code": "grade",
		"grader_language": "cxx",
		"source_verifier_code": null,
		"source_verifier_language": null
	}`, string(b))
}
