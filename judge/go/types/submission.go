package types

import (
	"time"

	"github.com/easyctf/openctf-judge/go/jsonutils"
)

// Language identifies the language of a piece of submitted code. The set of
// supported languages is closed and case-sensitive.
type Language string

const (
	LanguageCxx     Language = "cxx"
	LanguagePython2 Language = "python2"
	LanguagePython3 Language = "python3"
	LanguageJava    Language = "java"
)

// SupportedLanguages maps every supported language code to its display name.
var SupportedLanguages = map[Language]string{
	LanguageCxx:     "C++",
	LanguagePython2: "Python 2",
	LanguagePython3: "Python 3",
	LanguageJava:    "Java",
}

// Supported returns true if l is one of the supported language codes.
func (l Language) Supported() bool {
	_, ok := SupportedLanguages[l]
	return ok
}

// Submission is an immutable record of user-supplied code. A Submission may
// have many Jobs (reruns), ordered by job creation time ascending.
type Submission struct {
	ID int64 `json:"id"`

	// UID and GID are opaque user and group identifiers assigned by the
	// caller. Either may be absent.
	UID *int64 `json:"uid"`
	GID *int64 `json:"gid"`

	// Time is when the Submission was received.
	Time time.Time `json:"time"`

	ProblemID int64    `json:"problem_id"`
	Code      string   `json:"code"`
	Language  Language `json:"language"`
}

// Copy returns a deep copy of the Submission.
func (s *Submission) Copy() *Submission {
	ret := &Submission{
		ID:        s.ID,
		Time:      s.Time,
		ProblemID: s.ProblemID,
		Code:      s.Code,
		Language:  s.Language,
	}
	if s.UID != nil {
		v := *s.UID
		ret.UID = &v
	}
	if s.GID != nil {
		v := *s.GID
		ret.GID = &v
	}
	return ret
}

// SubmissionDetails is the public representation of a Submission together
// with all of its Jobs. Unlike JobDetails, absent uid/gid serialize as
// explicit nulls.
type SubmissionDetails struct {
	ID        int64          `json:"id"`
	UID       *int64         `json:"uid"`
	GID       *int64         `json:"gid"`
	Time      jsonutils.Time `json:"time"`
	ProblemID int64          `json:"problem_id"`
	Code      string         `json:"code"`
	Language  Language       `json:"language"`
	Jobs      []JobDetails   `json:"jobs"`
}

// Details returns the public representation of the Submission. jobs must be
// the Submission's Jobs in creation order.
func (s *Submission) Details(jobs []*Job) SubmissionDetails {
	jobDetails := make([]JobDetails, 0, len(jobs))
	for _, job := range jobs {
		jobDetails = append(jobDetails, job.Details())
	}
	return SubmissionDetails{
		ID:        s.ID,
		UID:       s.UID,
		GID:       s.GID,
		Time:      jsonutils.Time(s.Time),
		ProblemID: s.ProblemID,
		Code:      s.Code,
		Language:  s.Language,
		Jobs:      jobDetails,
	}
}
