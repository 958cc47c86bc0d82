package sqldb

import (
	"context"
	"testing"

	"github.com/easyctf/openctf-judge/go/sql/schema"
	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/easyctf/openctf-judge/judge/go/db/dbtest"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"
)

// newDBForTests connects to the database in TEST_DATABASE_URI, applies the
// schema, and empties all tables so each test starts clean.
func newDBForTests(t *testing.T) *DB {
	uri := unittest.RequiresPostgres(t)
	ctx := context.Background()
	pool, err := pgxpool.Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	d, err := New(ctx, pool)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "TRUNCATE problems, submissions, jobs, apikeys RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return d
}

func TestProblemStore(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestProblemStore(t, newDBForTests(t))
}

func TestSubmissionStore(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestSubmissionStore(t, newDBForTests(t))
}

func TestPutSubmissionWithJob(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestPutSubmissionWithJob(t, newDBForTests(t))
}

func TestJobStore(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestJobStore(t, newDBForTests(t))
}

func TestClaimJob(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestClaimJob(t, newDBForTests(t))
}

func TestCountClaimable(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestCountClaimable(t, newDBForTests(t))
}

func TestConcurrentClaims(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestConcurrentClaims(t, newDBForTests(t))
}

func TestAPIKeyStore(t *testing.T) {
	unittest.MediumTest(t)
	dbtest.TestAPIKeyStore(t, newDBForTests(t))
}

// TestSchema_LiveDatabaseMatchesTables spot-checks that the applied schema
// has the columns and indexes the statements rely on.
func TestSchema_LiveDatabaseMatchesTables(t *testing.T) {
	unittest.MediumTest(t)
	uri := unittest.RequiresPostgres(t)
	ctx := context.Background()
	pool, err := pgxpool.Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = New(ctx, pool)
	require.NoError(t, err)

	desc, err := schema.GetDescription(ctx, pool, Tables{})
	require.NoError(t, err)

	for _, table := range []struct {
		name    string
		columns []string
	}{
		{"problems", problemColumns},
		{"submissions", submissionColumns},
		{"jobs", jobColumns},
		{"apikeys", apiKeyColumns},
	} {
		for _, column := range table.columns {
			require.Contains(t, desc.Columns, table.name+"."+column)
		}
	}
	require.Contains(t, desc.Indexes, "jobs.jobs_claim_order")
	require.Contains(t, desc.Indexes, "jobs.jobs_by_submission")
	require.Contains(t, desc.Indexes, "submissions.submissions_by_uid")
}
