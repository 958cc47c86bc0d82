package sqldb

import "github.com/easyctf/openctf-judge/judge/go/types"

// Tables represents all SQL tables used by the judge, in the form that
// sql/schema expects.
type Tables struct {
	Problems    []types.Problem
	Submissions []types.Submission
	Jobs        []types.Job
	Apikeys     []types.APIKey
}

// Schema is the SQL schema. Every statement is idempotent so that New can
// apply it on every startup.
//
// Problem ids are assigned by the caller, which is why problems has no
// sequence. Nullable columns correspond exactly to the fields the Go types
// treat as optional; claim_time and completion_time are NULL until the job
// reaches the matching state.
const Schema = `
CREATE TABLE IF NOT EXISTS problems (
	id BIGINT PRIMARY KEY,
	last_modified TIMESTAMPTZ NOT NULL,
	test_cases BIGINT NOT NULL DEFAULT 0,
	time_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
	memory_limit BIGINT NOT NULL DEFAULT 0,
	generator_code TEXT NOT NULL DEFAULT '',
	generator_language TEXT NOT NULL DEFAULT '',
	grader_code TEXT NOT NULL DEFAULT '',
	grader_language TEXT NOT NULL DEFAULT '',
	source_verifier_code TEXT NOT NULL DEFAULT '',
	source_verifier_language TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS submissions (
	id BIGSERIAL PRIMARY KEY,
	uid BIGINT,
	gid BIGINT,
	submission_time TIMESTAMPTZ NOT NULL,
	problem_id BIGINT NOT NULL REFERENCES problems (id),
	code TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS submissions_by_uid ON submissions (uid);
CREATE INDEX IF NOT EXISTS submissions_by_gid ON submissions (gid);
CREATE INDEX IF NOT EXISTS submissions_by_problem ON submissions (problem_id);

CREATE TABLE IF NOT EXISTS jobs (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions (id),
	creation_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	claim_time TIMESTAMPTZ,
	completion_time TIMESTAMPTZ,
	verification_code BIGINT NOT NULL DEFAULT 0,
	last_ran_case BIGINT,
	execution_time DOUBLE PRECISION,
	execution_memory BIGINT,
	verdict TEXT NOT NULL DEFAULT '',
	callback_url TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS jobs_by_submission ON jobs (submission_id);
CREATE INDEX IF NOT EXISTS jobs_claim_order ON jobs (status, creation_time, id);

CREATE TABLE IF NOT EXISTS apikeys (
	key TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	active BOOL NOT NULL DEFAULT TRUE,
	perm_jury BOOL NOT NULL DEFAULT FALSE,
	perm_reader BOOL NOT NULL DEFAULT FALSE,
	perm_master BOOL NOT NULL DEFAULT FALSE
);
`
