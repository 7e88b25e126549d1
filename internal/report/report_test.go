package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounts(t *testing.T) {
	r := New()
	r.Add(Record{Name: "a", Outcome: OutcomeSuccess})
	r.Add(Record{Name: "b", Outcome: OutcomeSkip, Message: "skip: true"})
	r.Add(Record{Name: "c", Outcome: OutcomeParseError, Message: "missing origin"})
	r.Add(Record{Name: "d", Outcome: OutcomeFailure, Message: "push failed"})

	c := r.Counts()
	assert.Equal(t, Counts{Success: 1, Skip: 1, ParseError: 1, Failure: 1}, c)
}

func TestWriteJUnitProducesOneTestcasePerRecord(t *testing.T) {
	r := New()
	r.Add(Record{Name: "git@upstream:a/b.git", Outcome: OutcomeSuccess, Duration: 2 * time.Second})
	r.Add(Record{Name: "git@upstream:a/c.git", Outcome: OutcomeFailure, Duration: time.Second, Message: "push failed"})
	r.Add(Record{Name: "https://forge/skip", Outcome: OutcomeSkip, Message: "skip: true"})

	path := filepath.Join(t.TempDir(), "report.xml")
	require.NoError(t, r.WriteJUnit(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `testsuite name="Sync Job"`)
	assert.Contains(t, out, `tests="3"`)
	assert.Contains(t, out, `failures="1"`)
	assert.Contains(t, out, `skipped="1"`)
	assert.Contains(t, out, "push failed")
}

func TestWriteJUnitEmptyReport(t *testing.T) {
	r := New()
	path := filepath.Join(t.TempDir(), "report.xml")
	require.NoError(t, r.WriteJUnit(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tests="0"`)
}
