// Package sqldb contains an implementation of db.DB that uses PostgreSQL.
//
// All times are stored as TIMESTAMPTZ and normalized to UTC truncated to
// microseconds, which is the precision PostgreSQL keeps, so values round-trip
// exactly.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easyctf/openctf-judge/go/now"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sql/pool"
	"github.com/easyctf/openctf-judge/go/sql/sqlutil"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/types"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// uniqueViolation is the PostgreSQL error code for violating a unique
// constraint.
const uniqueViolation = "23505"

// statement names one of the prepared SQL texts in Statements.
type statement int

const (
	InsertProblem statement = iota
	GetProblem
	GetAndLockProblem
	UpdateProblem
	ListProblems
	InsertSubmission
	GetSubmission
	ListSubmissions
	ListSubmissionsByUID
	ListSubmissionsByGID
	ListSubmissionsByProblem
	InsertJob
	GetJob
	GetAndLockJob
	UpdateJob
	ListJobs
	ListJobsByUID
	ListJobsByGID
	ListJobsByProblem
	ListJobsBySubmission
	ClaimJob
	CountClaimable
	InsertAPIKey
	GetAPIKey
)

var (
	problemColumns = []string{
		"id",
		"last_modified",
		"test_cases",
		"time_limit",
		"memory_limit",
		"generator_code",
		"generator_language",
		"grader_code",
		"grader_language",
		"source_verifier_code",
		"source_verifier_language",
	}
	submissionColumns = []string{
		"id",
		"uid",
		"gid",
		"submission_time",
		"problem_id",
		"code",
		"language",
	}
	jobColumns = []string{
		"id",
		"submission_id",
		"creation_time",
		"status",
		"claim_time",
		"completion_time",
		"verification_code",
		"last_ran_case",
		"execution_time",
		"execution_memory",
		"verdict",
		"callback_url",
	}
	apiKeyColumns = []string{
		"key",
		"name",
		"active",
		"perm_jury",
		"perm_reader",
		"perm_master",
	}

	allProblemColumns    = strings.Join(problemColumns, ",")
	allSubmissionColumns = strings.Join(submissionColumns, ",")
	allJobColumns        = strings.Join(jobColumns, ",")
	allAPIKeyColumns     = strings.Join(apiKeyColumns, ",")

	// Job columns qualified with the table name, for statements that join
	// against submissions.
	allJobColumnsPrefixed = "jobs." + strings.Join(jobColumns, ",jobs.")
)

// claimableWhere selects jobs a jury may take: queued, or started with a
// claim older than the cutoff passed as $1.
const claimableWhere = `
	status = 'queued'
	OR (status = 'started' AND claim_time < $1)`

// Statements are all the SQL statements used in DB.
var Statements = map[statement]string{
	InsertProblem: fmt.Sprintf(`
INSERT INTO
	problems (%s)
VALUES
	%s
`, allProblemColumns, sqlutil.ValuesPlaceholders(len(problemColumns), 1)),
	GetProblem: fmt.Sprintf(`
SELECT
	%s
FROM
	problems
WHERE
	id = $1
`, allProblemColumns),
	GetAndLockProblem: fmt.Sprintf(`
SELECT
	%s
FROM
	problems
WHERE
	id = $1
FOR UPDATE`, allProblemColumns),
	UpdateProblem: `
UPDATE
	problems
SET
	last_modified = $2,
	test_cases = $3,
	time_limit = $4,
	memory_limit = $5,
	generator_code = $6,
	generator_language = $7,
	grader_code = $8,
	grader_language = $9,
	source_verifier_code = $10,
	source_verifier_language = $11
WHERE
	id = $1
`,
	ListProblems: fmt.Sprintf(`
SELECT
	%s
FROM
	problems
ORDER BY
	id
`, allProblemColumns),
	InsertSubmission: fmt.Sprintf(`
INSERT INTO
	submissions (%s)
VALUES
	%s
RETURNING id`, strings.Join(submissionColumns[1:], ","), sqlutil.ValuesPlaceholders(len(submissionColumns)-1, 1)),
	GetSubmission: fmt.Sprintf(`
SELECT
	%s
FROM
	submissions
WHERE
	id = $1
`, allSubmissionColumns),
	ListSubmissions: fmt.Sprintf(`
SELECT
	%s
FROM
	submissions
ORDER BY
	id
`, allSubmissionColumns),
	ListSubmissionsByUID: fmt.Sprintf(`
SELECT
	%s
FROM
	submissions
WHERE
	uid = $1
ORDER BY
	id
`, allSubmissionColumns),
	ListSubmissionsByGID: fmt.Sprintf(`
SELECT
	%s
FROM
	submissions
WHERE
	gid = $1
ORDER BY
	id
`, allSubmissionColumns),
	ListSubmissionsByProblem: fmt.Sprintf(`
SELECT
	%s
FROM
	submissions
WHERE
	problem_id = $1
ORDER BY
	id
`, allSubmissionColumns),
	InsertJob: fmt.Sprintf(`
INSERT INTO
	jobs (%s)
VALUES
	%s
RETURNING id`, strings.Join(jobColumns[1:], ","), sqlutil.ValuesPlaceholders(len(jobColumns)-1, 1)),
	GetJob: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
WHERE
	id = $1
`, allJobColumns),
	GetAndLockJob: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
WHERE
	id = $1
FOR UPDATE`, allJobColumns),
	UpdateJob: `
UPDATE
	jobs
SET
	status = $2,
	claim_time = $3,
	completion_time = $4,
	verification_code = $5,
	last_ran_case = $6,
	execution_time = $7,
	execution_memory = $8,
	verdict = $9,
	callback_url = $10
WHERE
	id = $1
`,
	ListJobs: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
ORDER BY
	id
`, allJobColumns),
	ListJobsByUID: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
	JOIN submissions ON jobs.submission_id = submissions.id
WHERE
	submissions.uid = $1
ORDER BY
	jobs.id
`, allJobColumnsPrefixed),
	ListJobsByGID: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
	JOIN submissions ON jobs.submission_id = submissions.id
WHERE
	submissions.gid = $1
ORDER BY
	jobs.id
`, allJobColumnsPrefixed),
	ListJobsByProblem: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
	JOIN submissions ON jobs.submission_id = submissions.id
WHERE
	submissions.problem_id = $1
ORDER BY
	jobs.id
`, allJobColumnsPrefixed),
	ListJobsBySubmission: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
WHERE
	submission_id = $1
ORDER BY
	creation_time, id
`, allJobColumns),
	ClaimJob: fmt.Sprintf(`
SELECT
	%s
FROM
	jobs
WHERE %s
ORDER BY
	creation_time, id
LIMIT 1
FOR UPDATE SKIP LOCKED`, allJobColumns, claimableWhere),
	CountClaimable: fmt.Sprintf(`
SELECT
	COUNT(*)
FROM
	jobs
WHERE %s
`, claimableWhere),
	InsertAPIKey: fmt.Sprintf(`
INSERT INTO
	apikeys (%s)
VALUES
	%s
`, allAPIKeyColumns, sqlutil.ValuesPlaceholders(len(apiKeyColumns), 1)),
	GetAPIKey: fmt.Sprintf(`
SELECT
	%s
FROM
	apikeys
WHERE
	key = $1
`, allAPIKeyColumns),
}

// DB implements db.DB.
type DB struct {
	db pool.Pool
}

// New returns a *DB backed by the given connection pool, after applying
// Schema. Schema only contains idempotent statements, so calling New against
// a populated database is safe.
func New(ctx context.Context, db pool.Pool) (*DB, error) {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return nil, skerr.Wrapf(err, "applying schema")
	}
	return &DB{db: db}, nil
}

// wrappedError pulls the Postgres diagnostics out of a pgconn.PgError so
// the log line says more than just the error code.
func wrappedError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return skerr.Wrapf(err, "Msg: %s, Code: %s, Detail: %s, Hint: %s", pgErr.Message, pgErr.Code, pgErr.Detail, pgErr.Hint)
	}
	return skerr.Wrap(err)
}

// isUniqueViolation returns true if err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// normalizeTime makes times match what a TIMESTAMPTZ column hands back.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Microsecond)
}

// nullableTime converts the zero time to NULL for writing.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC().Truncate(time.Microsecond)
	return &t
}

// scanProblem reads one problems row. Works for both pgx.Row and pgx.Rows.
func scanProblem(row pgx.Row) (*types.Problem, error) {
	var p types.Problem
	var generatorLanguage, graderLanguage, verifierLanguage string
	if err := row.Scan(
		&p.ID,
		&p.LastModified,
		&p.TestCases,
		&p.TimeLimit,
		&p.MemoryLimit,
		&p.GeneratorCode,
		&generatorLanguage,
		&p.GraderCode,
		&graderLanguage,
		&p.SourceVerifierCode,
		&verifierLanguage,
	); err != nil {
		return nil, err
	}
	p.LastModified = normalizeTime(p.LastModified)
	p.GeneratorLanguage = types.Language(generatorLanguage)
	p.GraderLanguage = types.Language(graderLanguage)
	p.SourceVerifierLanguage = types.Language(verifierLanguage)
	return &p, nil
}

func problemArgs(p *types.Problem) []interface{} {
	return []interface{}{
		p.ID,
		normalizeTime(p.LastModified),
		p.TestCases,
		p.TimeLimit,
		p.MemoryLimit,
		p.GeneratorCode,
		string(p.GeneratorLanguage),
		p.GraderCode,
		string(p.GraderLanguage),
		p.SourceVerifierCode,
		string(p.SourceVerifierLanguage),
	}
}

// scanSubmission reads one submissions row.
func scanSubmission(row pgx.Row) (*types.Submission, error) {
	var s types.Submission
	var language string
	if err := row.Scan(
		&s.ID,
		&s.UID,
		&s.GID,
		&s.Time,
		&s.ProblemID,
		&s.Code,
		&language,
	); err != nil {
		return nil, err
	}
	s.Time = normalizeTime(s.Time)
	s.Language = types.Language(language)
	return &s, nil
}

// scanJob reads one jobs row.
func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	var status, verdict string
	var claimTime, completionTime *time.Time
	if err := row.Scan(
		&j.ID,
		&j.SubmissionID,
		&j.CreationTime,
		&status,
		&claimTime,
		&completionTime,
		&j.VerificationCode,
		&j.LastRanCase,
		&j.ExecutionTime,
		&j.ExecutionMemory,
		&verdict,
		&j.CallbackURL,
	); err != nil {
		return nil, err
	}
	j.CreationTime = normalizeTime(j.CreationTime)
	if claimTime != nil {
		j.ClaimTime = normalizeTime(*claimTime)
	}
	if completionTime != nil {
		j.CompletionTime = normalizeTime(*completionTime)
	}
	j.Status = types.JobStatus(status)
	j.Verdict = types.Verdict(verdict)
	return &j, nil
}

/// jobUpdateArgs are the arguments for the UpdateJob statement: the id
// followed by every mutable column.
func jobUpdateArgs(j *types.Job) []interface{} {
	return []interface{}{
		j.ID,
		string(j.Status),
		nullableTime(j.ClaimTime),
		nullableTime(j.CompletionTime),
		j.VerificationCode,
		j.LastRanCase,
		j.ExecutionTime,
		j.ExecutionMemory,
		string(j.Verdict),
		j.CallbackURL,
	}
}

// PutProblem implements db.ProblemStore.
func (d *DB) PutProblem(ctx context.Context, p *types.Problem) (*types.Problem, error) {
	cpy := p.Copy()
	cpy.LastModified = normalizeTime(now.Now(ctx))
	if _, err := d.db.Exec(ctx, Statements[InsertProblem], problemArgs(cpy)...); err != nil {
		if isUniqueViolation(err) {
			return nil, db.ErrAlreadyExists
		}
		return nil, wrappedError(err)
	}
	return cpy, nil
}

// UpdateProblem implements db.ProblemStore.
func (d *DB) UpdateProblem(ctx context.Context, id int64, cb func(*types.Problem) error) (*types.Problem, error) {
	var ret *types.Problem
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		stored, err := scanProblem(tx.QueryRow(ctx, Statements[GetAndLockProblem], id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return db.ErrNotFound
			}
			return wrappedError(err)
		}
		cpy := stored.Copy()
		if err := cb(cpy); err != nil {
			return err
		}
		cpy.ID = stored.ID
		cpy.LastModified = normalizeTime(now.Now(ctx))
		if _, err := tx.Exec(ctx, Statements[UpdateProblem], problemArgs(cpy)...); err != nil {
			return wrappedError(err)
		}
		ret = cpy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// GetProblem implements db.ProblemStore.
func (d *DB) GetProblem(ctx context.Context, id int64) (*types.Problem, error) {
	p, err := scanProblem(d.db.QueryRow(ctx, Statements[GetProblem], id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, wrappedError(err)
	}
	return p, nil
}

// ListProblems implements db.ProblemStore.
func (d *DB) ListProblems(ctx context.Context) ([]*types.Problem, error) {
	ret := []*types.Problem{}
	rows, err := d.db.Query(ctx, Statements[ListProblems])
	if err != nil {
		return nil, wrappedError(err)
	}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, wrappedError(err)
		}
		ret = append(ret, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrappedError(err)
	}
	return ret, nil
}

// insertSubmissionTx writes the submission and returns the stored copy with
// its assigned id.
func insertSubmissionTx(ctx context.Context, tx pgx.Tx, s *types.Submission) (*types.Submission, error) {
	if s.Time.IsZero() {
		return nil, skerr.Fmt("submission Time must be set")
	}
	cpy := s.Copy()
	cpy.Time = normalizeTime(cpy.Time)
	err := tx.QueryRow(ctx, Statements[InsertSubmission],
		cpy.UID,
		cpy.GID,
		cpy.Time,
		cpy.ProblemID,
		cpy.Code,
		string(cpy.Language),
	).Scan(&cpy.ID)
	if err != nil {
		return nil, wrappedError(err)
	}
	return cpy, nil
}

// insertJobTx writes the job and returns the stored copy with its assigned
// id.
func insertJobTx(ctx context.Context, tx pgx.Tx, j *types.Job) (*types.Job, error) {
	if j.CreationTime.IsZero() {
		return nil, skerr.Fmt("job CreationTime must be set")
	}
	cpy := j.Copy()
	if cpy.Status == "" {
		cpy.Status = types.JobStatusQueued
	}
	cpy.CreationTime = normalizeTime(cpy.CreationTime)
	cpy.ClaimTime = normalizeTime(cpy.ClaimTime)
	cpy.CompletionTime = normalizeTime(cpy.CompletionTime)
	err := tx.QueryRow(ctx, Statements[InsertJob],
		cpy.SubmissionID,
		cpy.CreationTime,
		string(cpy.Status),
		nullableTime(cpy.ClaimTime),
		nullableTime(cpy.CompletionTime),
		cpy.VerificationCode,
		cpy.LastRanCase,
		cpy.ExecutionTime,
		cpy.ExecutionMemory,
		string(cpy.Verdict),
		cpy.CallbackURL,
	).Scan(&cpy.ID)
	if err != nil {
		return nil, wrappedError(err)
	}
	return cpy, nil
}

// PutSubmission implements db.SubmissionStore.
func (d *DB) PutSubmission(ctx context.Context, s *types.Submission) (*types.Submission, error) {
	var ret *types.Submission
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		ret, err = insertSubmissionTx(ctx, tx, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// PutSubmissionWithJob implements db.SubmissionStore.
func (d *DB) PutSubmissionWithJob(ctx context.Context, s *types.Submission, j *types.Job) (*types.Submission, *types.Job, error) {
	var retSub *types.Submission
	var retJob *types.Job
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		retSub, err = insertSubmissionTx(ctx, tx, s)
		if err != nil {
			return err
		}
		jobCpy := j.Copy()
		jobCpy.SubmissionID = retSub.ID
		retJob, err = insertJobTx(ctx, tx, jobCpy)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return retSub, retJob, nil
}

// GetSubmission implements db.SubmissionStore.
func (d *DB) GetSubmission(ctx context.Context, id int64) (*types.Submission, error) {
	s, err := scanSubmission(d.db.QueryRow(ctx, Statements[GetSubmission], id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, wrappedError(err)
	}
	return s, nil
}

// listSubmissions runs one of the submission list statements.
func (d *DB) listSubmissions(ctx context.Context, stmt statement, args ...interface{}) ([]*types.Submission, error) {
	ret := []*types.Submission{}
	rows, err := d.db.Query(ctx, Statements[stmt], args...)
	if err != nil {
		return nil, wrappedError(err)
	}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, wrappedError(err)
		}
		ret = append(ret, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrappedError(err)
	}
	return ret, nil
}

// ListSubmissions implements db.SubmissionStore.
func (d *DB) ListSubmissions(ctx context.Context) ([]*types.Submission, error) {
	return d.listSubmissions(ctx, ListSubmissions)
}

// ListSubmissionsByUID implements db.SubmissionStore.
func (d *DB) ListSubmissionsByUID(ctx context.Context, uid int64) ([]*types.Submission, error) {
	return d.listSubmissions(ctx, ListSubmissionsByUID, uid)
}

// ListSubmissionsByGID implements db.SubmissionStore.
func (d *DB) ListSubmissionsByGID(ctx context.Context, gid int64) ([]*types.Submission, error) {
	return d.listSubmissions(ctx, ListSubmissionsByGID, gid)
}

// ListSubmissionsByProblem implements db.SubmissionStore.
func (d *DB) ListSubmissionsByProblem(ctx context.Context, problemID int64) ([]*types.Submission, error) {
	return d.listSubmissions(ctx, ListSubmissionsByProblem, problemID)
}

// PutJob implements db.JobStore.
func (d *DB) PutJob(ctx context.Context, j *types.Job) (*types.Job, error) {
	var ret *types.Job
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		ret, err = insertJobTx(ctx, tx, j)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// GetJob implements db.JobStore.
func (d *DB) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	j, err := scanJob(d.db.QueryRow(ctx, Statements[GetJob], id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, wrappedError(err)
	}
	return j, nil
}

// listJobs runs one of the job list statements.
func (d *DB) listJobs(ctx context.Context, stmt statement, args ...interface{}) ([]*types.Job, error) {
	ret := []*types.Job{}
	rows, err := d.db.Query(ctx, Statements[stmt], args...)
	if err != nil {
		return nil, wrappedError(err)
	}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrappedError(err)
		}
		ret = append(ret, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrappedError(err)
	}
	return ret, nil
}

// ListJobs implements db.JobStore.
func (d *DB) ListJobs(ctx context.Context) ([]*types.Job, error) {
	return d.listJobs(ctx, ListJobs)
}

// ListJobsByUID implements db.JobStore.
func (d *DB) ListJobsByUID(ctx context.Context, uid int64) ([]*types.Job, error) {
	return d.listJobs(ctx, ListJobsByUID, uid)
}

// ListJobsByGID implements db.JobStore.
func (d *DB) ListJobsByGID(ctx context.Context, gid int64) ([]*types.Job, error) {
	return d.listJobs(ctx, ListJobsByGID, gid)
}

// ListJobsByProblem implements db.JobStore.
func (d *DB) ListJobsByProblem(ctx context.Context, problemID int64) ([]*types.Job, error) {
	return d.listJobs(ctx, ListJobsByProblem, problemID)
}

// ListJobsBySubmission implements db.JobStore.
func (d *DB) ListJobsBySubmission(ctx context.Context, submissionID int64) ([]*types.Job, error) {
	return d.listJobs(ctx, ListJobsBySubmission, submissionID)
}

// UpdateJob implements db.JobStore.
func (d *DB) UpdateJob(ctx context.Context, id int64, cb func(*types.Job) error) (*types.Job, error) {
	var ret *types.Job
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		stored, err := scanJob(tx.QueryRow(ctx, Statements[GetAndLockJob], id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return db.ErrNotFound
			}
			return wrappedError(err)
		}
		cpy := stored.Copy()
		if err := cb(cpy); err != nil {
			return err
		}
		cpy.ID = stored.ID
		cpy.SubmissionID = stored.SubmissionID
		cpy.CreationTime = stored.CreationTime
		cpy.ClaimTime = normalizeTime(cpy.ClaimTime)
		cpy.CompletionTime = normalizeTime(cpy.CompletionTime)
		if _, err := tx.Exec(ctx, Statements[UpdateJob], jobUpdateArgs(cpy)...); err != nil {
			return wrappedError(err)
		}
		ret = cpy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ClaimJob implements db.JobStore.
func (d *DB) ClaimJob(ctx context.Context, claimedAt time.Time) (*types.Job, error) {
	var ret *types.Job
	cutoff := normalizeTime(claimedAt.Add(-types.StaleClaimAfter))
	err := d.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		job, err := scanJob(tx.QueryRow(ctx, Statements[ClaimJob], cutoff))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return db.ErrNoWork
			}
			return wrappedError(err)
		}
		code, err := types.NewVerificationCode()
		if err != nil {
			return skerr.Wrap(err)
		}
		job.Status = types.JobStatusStarted
		job.ClaimTime = normalizeTime(claimedAt)
		job.VerificationCode = code
		if _, err := tx.Exec(ctx, Statements[UpdateJob], jobUpdateArgs(job)...); err != nil {
			return wrappedError(err)
		}
		ret = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// CountClaimable implements db.JobStore.
func (d *DB) CountClaimable(ctx context.Context, asOf time.Time) (int64, error) {
	cutoff := normalizeTime(asOf.Add(-types.StaleClaimAfter))
	var count int64
	if err := d.db.QueryRow(ctx, Statements[CountClaimable], cutoff).Scan(&count); err != nil {
		return 0, wrappedError(err)
	}
	return count, nil
}

// PutAPIKey implements db.APIKeyStore.
func (d *DB) PutAPIKey(ctx context.Context, k *types.APIKey) error {
	if k.Key == "" {
		return skerr.Fmt("api key token must be set")
	}
	_, err := d.db.Exec(ctx, Statements[InsertAPIKey],
		k.Key,
		k.Name,
		k.Active,
		k.Jury,
		k.Reader,
		k.Master,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return db.ErrAlreadyExists
		}
		return wrappedError(err)
	}
	return nil
}

// GetAPIKey implements db.APIKeyStore.
func (d *DB) GetAPIKey(ctx context.Context, key string) (*types.APIKey, error) {
	var k types.APIKey
	err := d.db.QueryRow(ctx, Statements[GetAPIKey], key).Scan(
		&k.Key,
		&k.Name,
		&k.Active,
		&k.Jury,
		&k.Reader,
		&k.Master,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, wrappedError(err)
	}
	return &k, nil
}

var _ db.DB = (*DB)(nil)
