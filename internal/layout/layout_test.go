package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugIsDeterministic(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"ssh://u@a/x.git", "ssh-u-a-x-git"},
		{"https://forge.example.com/group/project.git", "https-forge-example-com-group-project-git"},
		{"  WEIRD://Mixed_Case--URL  ", "weird-mixed-case-url"},
	}

	for _, c := range cases {
		got := Slug(c.origin)
		assert.Equal(t, c.want, got, "origin=%q", c.origin)
	}
}

func TestSlugDistinctForDistinctOrigins(t *testing.T) {
	a := Slug("ssh://u@a/x.git")
	b := Slug("ssh://u@a/y.git")
	assert.NotEqual(t, a, b)
}

func TestPathForIsRootedAtMirrorDir(t *testing.T) {
	got := PathFor("/var/mirror", "ssh://u@a/x.git")
	assert.Equal(t, filepath.Join("/var/mirror", "ssh-u-a-x-git"), got)
}

func TestAcquireCreatesMirrorDirAndLocksFile(t *testing.T) {
	dir := t.TempDir()
	mirrorDir := filepath.Join(dir, "mirror")

	lock, err := Acquire(mirrorDir)
	require.NoError(t, err)
	defer lock.Unlock()

	_, err = os.Stat(filepath.Join(mirrorDir, "git-mirror.lock"))
	require.NoError(t, err)
}

func TestAcquireFailsWhenAlreadyLocked(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Unlock()

	_, err = Acquire(dir)
	require.Error(t, err)
}

func TestUnlockAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, first.Unlock())

	second, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}
