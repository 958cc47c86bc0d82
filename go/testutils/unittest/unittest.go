// Package unittest gates tests by size and by external requirements.
//
// Passing one or more of --small, --medium, --large runs only those
// sizes; passing none runs everything. Tests needing a live database or
// Redis additionally skip themselves unless the matching environment
// variable points at one.
package unittest

import (
	"flag"
	"os"

	"github.com/easyctf/openctf-judge/go/sktest"
)

var sizeFlags = map[string]*bool{}

func sizeFlag(name string) *bool {
	b := flag.Bool(name, false, "Run "+name+" tests.")
	sizeFlags[name] = b
	return b
}

var (
	_ = sizeFlag("small")
	_ = sizeFlag("medium")
	_ = sizeFlag("large")
)

// shouldRun returns whether a test of the given size runs under the
// current flags.
func shouldRun(size string) bool {
	anySet := false
	for _, b := range sizeFlags {
		anySet = anySet || *b
	}
	if !anySet {
		return true
	}
	b, ok := sizeFlags[size]
	return ok && *b
}

func gate(t sktest.TestingT, size string) {
	if !shouldRun(size) {
		t.Skipf("Not running %s tests.", size)
	}
}

// SmallTest marks a test that finishes in under 2 seconds and touches
// nothing outside the process. Call it first in the test body.
func SmallTest(t sktest.TestingT) {
	gate(t, "small")
}

// MediumTest marks a test taking up to about 15 seconds or depending on
// external services such as a database.
func MediumTest(t sktest.TestingT) {
	gate(t, "medium")
}

// LargeTest marks a test that is too slow or too dependent on the outside
// world to run in the normal suite.
func LargeTest(t sktest.TestingT) {
	gate(t, "large")
}

// RequiresPostgres documents that a test needs a live Postgres-compatible
// database and skips it unless TEST_DATABASE_URI is set. Returns the URI.
func RequiresPostgres(t sktest.TestingT) string {
	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("This test requires a database; set TEST_DATABASE_URI to run it.")
	}
	return uri
}

// RequiresRedis documents that a test needs a live Redis and skips it
// unless TEST_REDIS_URI is set. Returns the URI.
func RequiresRedis(t sktest.TestingT) string {
	uri := os.Getenv("TEST_REDIS_URI")
	if uri == "" {
		t.Skip("This test requires Redis; set TEST_REDIS_URI to run it.")
	}
	return uri
}
