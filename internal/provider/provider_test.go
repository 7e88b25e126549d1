package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDescriptionMirror(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, false,
		"git@forge.example.com:team/repo.git", "https://forge.example.com/team/repo.git")

	assert.Equal(t, EntryMirror, entry.Kind)
	assert.Equal(t, "git@upstream.example.com:team/repo.git", entry.Mirror.Origin)
	assert.Equal(t, "git@forge.example.com:team/repo.git", entry.Mirror.Destination)
	assert.True(t, entry.Mirror.LFS, "lfs defaults to true when omitted")
	assert.False(t, entry.Mirror.Flat)
}

func TestParseDescriptionUsesHTTPDestinationWhenRequested(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, true,
		"git@forge.example.com:team/repo.git", "https://forge.example.com/team/repo.git")

	assert.Equal(t, EntryMirror, entry.Kind)
	assert.Equal(t, "https://forge.example.com/team/repo.git", entry.Mirror.Destination)
}

func TestParseDescriptionSkip(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\nskip: true\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, false, "", "")

	assert.Equal(t, EntrySkip, entry.Kind)
	assert.Equal(t, "https://forge.example.com/team/repo", entry.ProjectURL)
}

func TestParseDescriptionMissingOrigin(t *testing.T) {
	entry := ParseDescription("https://forge.example.com/team/repo", "skip: false\n", false, "", "")

	assert.Equal(t, EntryParseError, entry.Kind)
	assert.Error(t, entry.Cause)
}

func TestParseDescriptionInvalidYAML(t *testing.T) {
	entry := ParseDescription("https://forge.example.com/team/repo", "{not: valid: yaml:", false, "", "")

	assert.Equal(t, EntryParseError, entry.Kind)
	assert.Error(t, entry.Cause)
}

func TestParseDescriptionFlatAndLFSConflict(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\nflat: true\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, false, "", "")

	assert.Equal(t, EntryParseError, entry.Kind)
	assert.ErrorContains(t, entry.Cause, "flat and lfs")
}

func TestParseDescriptionFlatWithLFSDisabled(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\nflat: true\nlfs: false\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, false,
		"git@forge.example.com:team/repo.git", "")

	assert.Equal(t, EntryMirror, entry.Kind)
	assert.True(t, entry.Mirror.Flat)
	assert.False(t, entry.Mirror.LFS)
}

func TestParseDescriptionCustomRefspec(t *testing.T) {
	raw := "origin: git@upstream.example.com:team/repo.git\nrefspec:\n  - \"+refs/heads/*:refs/heads/*\"\n"
	entry := ParseDescription("https://forge.example.com/team/repo", raw, false,
		"git@forge.example.com:team/repo.git", "")

	assert.Equal(t, EntryMirror, entry.Kind)
	assert.Equal(t, []string{"+refs/heads/*:refs/heads/*"}, entry.Mirror.Refspec)
}
