// Package rpc exposes the judge over HTTP.
//
// Handlers validate input, map storage and lifecycle sentinels onto HTTP
// status codes, and leave every state transition to the lifecycle engine.
// Request and response bodies are JSON; an api_key header authenticates
// every endpoint except /amisane.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/easyctf/openctf-judge/go/httputils"
	"github.com/easyctf/openctf-judge/go/jsonutils"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/sser"
	"github.com/easyctf/openctf-judge/judge/go/auth"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/events"
	"github.com/easyctf/openctf-judge/judge/go/lifecycle"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// apiKeyHeader is the request header carrying the api key token.
const apiKeyHeader = "api_key"

// roomQueryParameter addresses the room on GET /events.
const roomQueryParameter = "room"

// API routes judge requests. Construct with New and attach the routes with
// RegisterHandlers.
type API struct {
	db         db.DB
	engine     *lifecycle.Engine
	authorizer *auth.Authorizer
	sse        http.HandlerFunc
}

// New returns an API over the given store and engine. sse serves attached
// event subscribers; pass nil to disable live updates.
func New(d db.DB, engine *lifecycle.Engine, authorizer *auth.Authorizer, sse http.HandlerFunc) *API {
	return &API{
		db:         d,
		engine:     engine,
		authorizer: authorizer,
		sse:        sse,
	}
}

// RegisterHandlers attaches all judge endpoints to r.
func (a *API) RegisterHandlers(r chi.Router) {
	r.Get("/amisane", a.sanityCheck)
	r.Post("/api_key", a.generateAPIKey)

	r.Get("/submissions", a.listSubmissions)
	r.Post("/submissions", a.createSubmission)
	r.Get("/submissions/uid/{uid}", a.listSubmissionsByUID)
	r.Get("/submissions/gid/{gid}", a.listSubmissionsByGID)
	r.Get("/submissions/problem/{problemID}", a.listSubmissionsByProblem)
	r.Get("/submissions/{id}", a.getSubmission)
	r.Post("/submissions/{id}/create_job", a.createJob)

	r.Get("/jobs", a.listJobs)
	r.Get("/jobs/uid/{uid}", a.listJobsByUID)
	r.Get("/jobs/gid/{gid}", a.listJobsByGID)
	r.Get("/jobs/problem/{problemID}", a.listJobsByProblem)
	r.Post("/jobs/claim", a.claimJob)
	r.Get("/jobs/{id}", a.getJob)
	r.Delete("/jobs/{id}", a.cancelJob)
	r.Post("/jobs/{id}/release", a.releaseJob)
	r.Post("/jobs/{id}/submit", a.submitJob)

	r.Get("/problems", a.listProblems)
	r.Post("/problems", a.createProblem)
	r.Get("/problems/{id}", a.getProblem)
	r.Put("/problems/{id}", a.updateProblem)

	r.Get("/events", a.subscribeEvents)
}

// require resolves the request's api key against at least one of caps and
// reports 403 on failure. Returns false if the response has been written.
func (a *API) require(w http.ResponseWriter, r *http.Request, caps ...auth.Capability) bool {
	if _, err := a.authorizer.Require(r.Context(), r.Header.Get(apiKeyHeader), caps...); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			httputils.ReportError(w, err, "Forbidden.", http.StatusForbidden)
		} else {
			httputils.ReportError(w, err, "Failed to check api key.", http.StatusInternalServerError)
		}
		return false
	}
	return true
}

// pathID parses the named chi URL parameter as an entity id. Non-numeric ids
// match no entity, so failures report 404. Returns ok=false if the response
// has been written.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httputils.ReportError(w, err, "Invalid id.", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

// decodeRequest parses the request body as JSON into v. An absent body
// decodes as the zero value; malformed JSON reports 400. Returns false if
// the response has been written.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		httputils.ReportError(w, err, "Failed to decode request body.", http.StatusBadRequest)
		return false
	}
	return true
}

// sendJSON writes body as JSON with the given status code.
func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		sklog.Errorf("Failed to encode response: %s", err)
	}
}

// reportLookupError maps a failed entity fetch to 404, anything else to 500.
func reportLookupError(w http.ResponseWriter, err error, message string) {
	if db.IsNotFound(err) {
		httputils.ReportError(w, err, message, http.StatusNotFound)
	} else {
		httputils.ReportError(w, err, "Failed to query database.", http.StatusInternalServerError)
	}
}

// int64Value returns the value of n, or 0 when absent.
func int64Value(n *jsonutils.Number) int64 {
	if n == nil {
		return 0
	}
	return int64(*n)
}

// int64Ptr converts an optional wire number to an optional int64.
func int64Ptr(n *jsonutils.Number) *int64 {
	if n == nil {
		return nil
	}
	v := int64(*n)
	return &v
}

func (a *API) sanityCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type generateAPIKeyRequest struct {
	Name   string `json:"name"`
	Jury   bool   `json:"jury"`
	Reader bool   `json:"reader"`
}

func (a *API) generateAPIKey(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Master) {
		return
	}
	var req generateAPIKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if len(req.Name) > types.MaxAPIKeyNameLength {
		httputils.ReportError(w, nil, fmt.Sprintf("Name must be at most %d characters.", types.MaxAPIKeyNameLength), http.StatusBadRequest)
		return
	}
	key, err := auth.GenerateKey()
	if err != nil {
		httputils.ReportError(w, err, "Failed to generate api key.", http.StatusInternalServerError)
		return
	}
	// Master keys are never issued over the wire.
	if err := a.db.PutAPIKey(r.Context(), &types.APIKey{
		Key:    key,
		Name:   req.Name,
		Active: true,
		Jury:   req.Jury,
		Reader: req.Reader,
	}); err != nil {
		httputils.ReportError(w, err, "Failed to store api key.", http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, key)
}

// sendSubmissionList loads each submission's jobs and writes the list.
func (a *API) sendSubmissionList(w http.ResponseWriter, r *http.Request, subs []*types.Submission, err error) {
	if err != nil {
		httputils.ReportError(w, err, "Failed to list submissions.", http.StatusInternalServerError)
		return
	}
	details := make([]types.SubmissionDetails, 0, len(subs))
	for _, sub := range subs {
		jobs, err := a.db.ListJobsBySubmission(r.Context(), sub.ID)
		if err != nil {
			httputils.ReportError(w, err, "Failed to list submissions.", http.StatusInternalServerError)
			return
		}
		details = append(details, sub.Details(jobs))
	}
	sendJSON(w, http.StatusOK, details)
}

func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	subs, err := a.db.ListSubmissions(r.Context())
	a.sendSubmissionList(w, r, subs, err)
}

func (a *API) listSubmissionsByUID(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	subs, err := a.db.ListSubmissionsByUID(r.Context(), uid)
	a.sendSubmissionList(w, r, subs, err)
}

func (a *API) listSubmissionsByGID(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	gid, ok := pathID(w, r, "gid")
	if !ok {
		return
	}
	subs, err := a.db.ListSubmissionsByGID(r.Context(), gid)
	a.sendSubmissionList(w, r, subs, err)
}

func (a *API) listSubmissionsByProblem(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	problemID, ok := pathID(w, r, "problemID")
	if !ok {
		return
	}
	subs, err := a.db.ListSubmissionsByProblem(r.Context(), problemID)
	a.sendSubmissionList(w, r, subs, err)
}

type createSubmissionRequest struct {
	UID         *jsonutils.Number `json:"uid"`
	GID         *jsonutils.Number `json:"gid"`
	ProblemID   jsonutils.Number  `json:"problem_id"`
	Code        string            `json:"code"`
	Language    types.Language    `json:"language"`
	CallbackURL string            `json:"callback_url"`
}

type createSubmissionResponse struct {
	ID    int64 `json:"id"`
	JobID int64 `json:"job_id"`
}

func (a *API) createSubmission(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	var req createSubmissionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if _, err := a.db.GetProblem(r.Context(), int64(req.ProblemID)); err != nil {
		if db.IsNotFound(err) {
			httputils.ReportError(w, err, fmt.Sprintf("Problem %d does not exist.", int64(req.ProblemID)), http.StatusBadRequest)
		} else {
			httputils.ReportError(w, err, "Failed to query database.", http.StatusInternalServerError)
		}
		return
	}
	if !req.Language.Supported() {
		httputils.ReportError(w, nil, fmt.Sprintf("Language %s not supported", req.Language), http.StatusBadRequest)
		return
	}
	if len(req.CallbackURL) > types.MaxCallbackURLLength {
		httputils.ReportError(w, nil, "Callback URL too long!", http.StatusBadRequest)
		return
	}
	sub, job, err := a.engine.CreateSubmissionWithJob(r.Context(), &types.Submission{
		UID:       int64Ptr(req.UID),
		GID:       int64Ptr(req.GID),
		ProblemID: int64(req.ProblemID),
		Code:      req.Code,
		Language:  req.Language,
	}, req.CallbackURL)
	if err != nil {
		httputils.ReportError(w, err, "Failed to store submission.", http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusCreated, createSubmissionResponse{ID: sub.ID, JobID: job.ID})
}

func (a *API) getSubmission(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sub, err := a.db.GetSubmission(r.Context(), id)
	if err != nil {
		reportLookupError(w, err, "Submission does not exist.")
		return
	}
	jobs, err := a.db.ListJobsBySubmission(r.Context(), id)
	if err != nil {
		httputils.ReportError(w, err, "Failed to query database.", http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, sub.Details(jobs))
}

type createJobRequest struct {
	CallbackURL string `json:"callback_url"`
}

type createJobResponse struct {
	JobID int64 `json:"job_id"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req createJobRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if len(req.CallbackURL) > types.MaxCallbackURLLength {
		httputils.ReportError(w, nil, "Callback URL too long!", http.StatusBadRequest)
		return
	}
	job, err := a.engine.CreateJob(r.Context(), id, req.CallbackURL)
	if err != nil {
		reportLookupError(w, err, "Submission does not exist.")
		return
	}
	sendJSON(w, http.StatusCreated, createJobResponse{JobID: job.ID})
}

// sendJobList writes the list of jobs.
func sendJobList(w http.ResponseWriter, jobs []*types.Job, err error) {
	if err != nil {
		httputils.ReportError(w, err, "Failed to list jobs.", http.StatusInternalServerError)
		return
	}
	details := make([]types.JobDetails, 0, len(jobs))
	for _, job := range jobs {
		details = append(details, job.Details())
	}
	sendJSON(w, http.StatusOK, details)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	jobs, err := a.db.ListJobs(r.Context())
	sendJobList(w, jobs, err)
}

func (a *API) listJobsByUID(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	jobs, err := a.db.ListJobsByUID(r.Context(), uid)
	sendJobList(w, jobs, err)
}

func (a *API) listJobsByGID(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	gid, ok := pathID(w, r, "gid")
	if !ok {
		return
	}
	jobs, err := a.db.ListJobsByGID(r.Context(), gid)
	sendJobList(w, jobs, err)
}

func (a *API) listJobsByProblem(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	problemID, ok := pathID(w, r, "problemID")
	if !ok {
		return
	}
	jobs, err := a.db.ListJobsByProblem(r.Context(), problemID)
	sendJobList(w, jobs, err)
}

func (a *API) claimJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Jury) {
		return
	}
	details, err := a.engine.Claim(r.Context())
	if err != nil {
		if db.IsNoWork(err) {
			w.WriteHeader(http.StatusNoContent)
		} else {
			httputils.ReportError(w, err, "Failed to claim job.", http.StatusInternalServerError)
		}
		return
	}
	sendJSON(w, http.StatusOK, details)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := a.db.GetJob(r.Context(), id)
	if err != nil {
		reportLookupError(w, err, "Job does not exist.")
		return
	}
	sendJSON(w, http.StatusOK, job.Details())
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.engine.Cancel(r.Context(), id); err != nil {
		switch {
		case db.IsNotFound(err):
			httputils.ReportError(w, err, "Job does not exist.", http.StatusNotFound)
		case db.IsConflict(err):
			httputils.ReportError(w, err, "Job already finished or cancelled.", http.StatusConflict)
		default:
			httputils.ReportError(w, err, "Failed to cancel job.", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

type releaseJobRequest struct {
	VerificationCode *jsonutils.Number `json:"verification_code"`
}

func (a *API) releaseJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Jury) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req releaseJobRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.engine.Release(r.Context(), id, int64Value(req.VerificationCode)); err != nil {
		switch {
		case db.IsNotFound(err):
			httputils.ReportError(w, err, "Job does not exist.", http.StatusNotFound)
		case db.IsConflict(err):
			httputils.ReportError(w, err, "Job is not started.", http.StatusConflict)
		case db.IsWrongCode(err):
			httputils.ReportError(w, err, "Incorrect verification code!", http.StatusForbidden)
		default:
			httputils.ReportError(w, err, "Failed to release job.", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

type submitJobRequest struct {
	VerificationCode *jsonutils.Number `json:"verification_code"`
	ExecutionTime    *jsonutils.Float  `json:"execution_time"`
	ExecutionMemory  *jsonutils.Number `json:"execution_memory"`
	LastRanCase      *jsonutils.Number `json:"last_ran_case"`
	Verdict          types.Verdict     `json:"verdict"`
}

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Jury) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req submitJobRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.ExecutionTime == nil || req.ExecutionMemory == nil || req.LastRanCase == nil {
		httputils.ReportError(w, nil, "Fields execution_time, execution_memory, and last_ran_case are required.", http.StatusBadRequest)
		return
	}
	if req.Verdict != "" && !req.Verdict.Valid() {
		httputils.ReportError(w, nil, fmt.Sprintf("Invalid verdict %q.", req.Verdict), http.StatusBadRequest)
		return
	}
	if _, err := a.engine.Submit(r.Context(), id, lifecycle.SubmitParams{
		VerificationCode: int64Value(req.VerificationCode),
		ExecutionTime:    float64(*req.ExecutionTime),
		ExecutionMemory:  int64(*req.ExecutionMemory),
		LastRanCase:      int64(*req.LastRanCase),
		Verdict:          req.Verdict,
	}); err != nil {
		switch {
		case db.IsNotFound(err):
			httputils.ReportError(w, err, "Job does not exist.", http.StatusNotFound)
		case db.IsConflict(err):
			httputils.ReportError(w, err, "Job not available for submission!", http.StatusConflict)
		case db.IsWrongCode(err):
			httputils.ReportError(w, err, "Incorrect verification code!", http.StatusForbidden)
		default:
			httputils.ReportError(w, err, "Failed to record progress.", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) listProblems(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Jury, auth.Reader) {
		return
	}
	problems, err := a.db.ListProblems(r.Context())
	if err != nil {
		httputils.ReportError(w, err, "Failed to list problems.", http.StatusInternalServerError)
		return
	}
	details := make([]types.ProblemDetails, 0, len(problems))
	for _, problem := range problems {
		details = append(details, problem.Details())
	}
	sendJSON(w, http.StatusOK, details)
}

type createProblemRequest struct {
	ID                     *jsonutils.Number `json:"id"`
	TestCases              *jsonutils.Number `json:"test_cases"`
	TimeLimit              *jsonutils.Float  `json:"time_limit"`
	MemoryLimit            *jsonutils.Number `json:"memory_limit"`
	GeneratorCode          *string           `json:"generator_code"`
	GeneratorLanguage      *types.Language   `json:"generator_language"`
	GraderCode             *string           `json:"grader_code"`
	GraderLanguage         *types.Language   `json:"grader_language"`
	SourceVerifierCode     *string           `json:"source_verifier_code"`
	SourceVerifierLanguage *types.Language   `json:"source_verifier_language"`
}

func (a *API) createProblem(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	var req createProblemRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.ID == nil {
		httputils.ReportError(w, nil, "Field id is required.", http.StatusBadRequest)
		return
	}
	if _, err := a.db.GetProblem(r.Context(), int64(*req.ID)); err == nil {
		httputils.ReportError(w, nil, "Problem already exists.", http.StatusConflict)
		return
	} else if !db.IsNotFound(err) {
		httputils.ReportError(w, err, "Failed to query database.", http.StatusInternalServerError)
		return
	}
	for _, lang := range []*types.Language{req.GeneratorLanguage, req.GraderLanguage, req.SourceVerifierLanguage} {
		if lang != nil && !lang.Supported() {
			httputils.ReportError(w, nil, fmt.Sprintf("Language %s not supported", *lang), http.StatusBadRequest)
			return
		}
	}
	missing := ""
	switch {
	case req.TestCases == nil:
		missing = "test_cases"
	case req.TimeLimit == nil:
		missing = "time_limit"
	case req.MemoryLimit == nil:
		missing = "memory_limit"
	case req.GeneratorCode == nil:
		missing = "generator_code"
	case req.GeneratorLanguage == nil:
		missing = "generator_language"
	case req.GraderCode == nil:
		missing = "grader_code"
	case req.GraderLanguage == nil:
		missing = "grader_language"
	}
	if missing != "" {
		httputils.ReportError(w, nil, fmt.Sprintf("Field %s is required.", missing), http.StatusBadRequest)
		return
	}
	problem := &types.Problem{
		ID:                int64(*req.ID),
		TestCases:         int64(*req.TestCases),
		TimeLimit:         float64(*req.TimeLimit),
		MemoryLimit:       int64(*req.MemoryLimit),
		GeneratorCode:     *req.GeneratorCode,
		GeneratorLanguage: *req.GeneratorLanguage,
		GraderCode:        *req.GraderCode,
		GraderLanguage:    *req.GraderLanguage,
	}
	if req.SourceVerifierCode != nil {
		problem.SourceVerifierCode = *req.SourceVerifierCode
	}
	if req.SourceVerifierLanguage != nil {
		problem.SourceVerifierLanguage = *req.SourceVerifierLanguage
	}
	if _, err := a.db.PutProblem(r.Context(), problem); err != nil {
		if db.IsAlreadyExists(err) {
			httputils.ReportError(w, err, "Problem already exists.", http.StatusConflict)
		} else {
			httputils.ReportError(w, err, "Failed to store problem.", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) getProblem(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Jury, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	problem, err := a.db.GetProblem(r.Context(), id)
	if err != nil {
		reportLookupError(w, err, "Problem does not exist.")
		return
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		given, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			httputils.ReportError(w, err, "Invalid If-Modified-Since header.", http.StatusBadRequest)
			return
		}
		if problem.LastModified.Unix() <= given {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	sendJSON(w, http.StatusOK, problem.Details())
}

type updateProblemRequest struct {
	TestCases              *jsonutils.Number `json:"test_cases"`
	TimeLimit              *jsonutils.Float  `json:"time_limit"`
	MemoryLimit            *jsonutils.Number `json:"memory_limit"`
	GeneratorCode          *string           `json:"generator_code"`
	GeneratorLanguage      *types.Language   `json:"generator_language"`
	GraderCode             *string           `json:"grader_code"`
	GraderLanguage         *types.Language   `json:"grader_language"`
	SourceVerifierCode     *string           `json:"source_verifier_code"`
	SourceVerifierLanguage *types.Language   `json:"source_verifier_language"`
}

func (a *API) updateProblem(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := a.db.GetProblem(r.Context(), id); err != nil {
		reportLookupError(w, err, "Problem does not exist.")
		return
	}
	var req updateProblemRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	for _, lang := range []*types.Language{req.GeneratorLanguage, req.GraderLanguage, req.SourceVerifierLanguage} {
		if lang != nil && !lang.Supported() {
			httputils.ReportError(w, nil, fmt.Sprintf("Language %s not supported", *lang), http.StatusBadRequest)
			return
		}
	}
	if _, err := a.db.UpdateProblem(r.Context(), id, func(p *types.Problem) error {
		if req.TestCases != nil {
			p.TestCases = int64(*req.TestCases)
		}
		if req.TimeLimit != nil {
			p.TimeLimit = float64(*req.TimeLimit)
		}
		if req.MemoryLimit != nil {
			p.MemoryLimit = int64(*req.MemoryLimit)
		}
		if req.GeneratorCode != nil {
			p.GeneratorCode = *req.GeneratorCode
		}
		if req.GeneratorLanguage != nil {
			p.GeneratorLanguage = *req.GeneratorLanguage
		}
		if req.GraderCode != nil {
			p.GraderCode = *req.GraderCode
		}
		if req.GraderLanguage != nil {
			p.GraderLanguage = *req.GraderLanguage
		}
		if req.SourceVerifierCode != nil {
			p.SourceVerifierCode = *req.SourceVerifierCode
		}
		if req.SourceVerifierLanguage != nil {
			p.SourceVerifierLanguage = *req.SourceVerifierLanguage
		}
		return nil
	}); err != nil {
		reportLookupError(w, err, "Problem does not exist.")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// subscribeEvents attaches the caller to a room's SSE stream. Per-id rooms
// are checked for existence before the subscription registers; the init
// snapshot is pushed afterwards by the Snapshotter, so updates may race it
// and subscribers must buffer until the snapshot arrives.
func (a *API) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	if !a.require(w, r, auth.Reader) {
		return
	}
	if a.sse == nil {
		httputils.ReportError(w, nil, "Live updates are disabled.", http.StatusServiceUnavailable)
		return
	}
	room := r.URL.Query().Get(roomQueryParameter)
	kind, id := events.ParseRoom(room)
	switch kind {
	case events.RoomKindInvalid:
		httputils.ReportError(w, nil, fmt.Sprintf("Unknown room %q.", room), http.StatusBadRequest)
		return
	case events.RoomKindJob:
		if _, err := a.db.GetJob(r.Context(), id); err != nil {
			reportLookupError(w, err, "Job does not exist.")
			return
		}
	case events.RoomKindSubmission:
		if _, err := a.db.GetSubmission(r.Context(), id); err != nil {
			reportLookupError(w, err, "Submission does not exist.")
			return
		}
	}
	// The sse server finds the room under its own query parameter. Rewrite
	// before anything parses the form, or the stale copy wins.
	q := r.URL.Query()
	q.Set(sser.QueryParameterName, room)
	r.URL.RawQuery = q.Encode()
	a.sse(w, r)
}
