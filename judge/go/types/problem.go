package types

import (
	"time"

	"github.com/easyctf/openctf-judge/go/jsonutils"
)

// Problem is an immutable-by-convention problem definition. LastModified is
// maintained automatically on any mutation and drives HTTP conditional
// fetches.
type Problem struct {
	// ID is externally assigned by the caller that creates the Problem.
	ID int64 `json:"id"`

	LastModified time.Time `json:"last_modified"`

	// TestCases is the number of test cases a jury must run.
	TestCases int64 `json:"test_cases"`

	// TimeLimit is in seconds.
	TimeLimit float64 `json:"time_limit"`

	// MemoryLimit is in kilobytes.
	MemoryLimit int64 `json:"memory_limit"`

	GeneratorCode     string   `json:"generator_code"`
	GeneratorLanguage Language `json:"generator_language"`
	GraderCode        string   `json:"grader_code"`
	GraderLanguage    Language `json:"grader_language"`

	// The source verifier is optional; both fields are empty when absent.
	SourceVerifierCode     string   `json:"source_verifier_code"`
	SourceVerifierLanguage Language `json:"source_verifier_language"`
}

// Copy returns a copy of the Problem.
func (p *Problem) Copy() *Problem {
	ret := *p
	return &ret
}

// ProblemDetails is the public representation of a Problem. The optional
// source verifier fields serialize as explicit nulls when absent.
type ProblemDetails struct {
	ID                     int64          `json:"id"`
	LastModified           jsonutils.Time `json:"last_modified"`
	TestCases              int64          `json:"test_cases"`
	TimeLimit              float64        `json:"time_limit"`
	MemoryLimit            int64          `json:"memory_limit"`
	GeneratorCode          string         `json:"generator_code"`
	GeneratorLanguage      Language       `json:"generator_language"`
	GraderCode             string         `json:"grader_code"`
	GraderLanguage         Language       `json:"grader_language"`
	SourceVerifierCode     *string        `json:"source_verifier_code"`
	SourceVerifierLanguage *Language      `json:"source_verifier_language"`
}

// Details returns the public representation of the Problem.
func (p *Problem) Details() ProblemDetails {
	ret := ProblemDetails{
		ID:                p.ID,
		LastModified:      jsonutils.Time(p.LastModified),
		TestCases:         p.TestCases,
		TimeLimit:         p.TimeLimit,
		MemoryLimit:       p.MemoryLimit,
		GeneratorCode:     p.GeneratorCode,
		GeneratorLanguage: p.GeneratorLanguage,
		GraderCode:        p.GraderCode,
		GraderLanguage:    p.GraderLanguage,
	}
	if p.SourceVerifierCode != "" {
		code := p.SourceVerifierCode
		ret.SourceVerifierCode = &code
	}
	if p.SourceVerifierLanguage != "" {
		lang := p.SourceVerifierLanguage
		ret.SourceVerifierLanguage = &lang
	}
	return ret
}
