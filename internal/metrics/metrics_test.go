package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileProducesTextExposition(t *testing.T) {
	r := New()
	r.Total.WithLabelValues("gitlab.example.com/42").Inc()
	r.OK.WithLabelValues("gitlab.example.com/42").Inc()
	r.ProjectStart.WithLabelValues("git@upstream.example.com:a/b.git", "git@forge.example.com:a/b.git", "gitlab.example.com/42").Set(1700000000)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "git_mirror_total")
	assert.Contains(t, out, "git_mirror_ok")
	assert.Contains(t, out, "git_mirror_project_start")
	assert.Contains(t, out, `mirror="gitlab.example.com/42"`)
}

func TestWriteFileOverwritesExistingFile(t *testing.T) {
	r := New()
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0o644))

	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale content")
}
