// Package provider defines the capability that enumerates candidate mirror
// jobs from an upstream catalog (spec.md §4.2) and the shared per-project
// free-text description parser both forge adapters use.
package provider

import (
	"context"
	"fmt"

	"go.yaml.in/yaml/v3"
)

// EntryKind discriminates the three outcomes a Provider can emit for a
// single upstream project.
type EntryKind int

const (
	// EntryMirror is a fully resolved one-to-one mirror job.
	EntryMirror EntryKind = iota
	// EntrySkip is an advisory, not an error: the project's description
	// explicitly set skip: true.
	EntrySkip
	// EntryParseError means the project's description could not be
	// parsed as the structured YAML document, or was missing a required
	// field.
	EntryParseError
)

// Mirror is a one-way, force-synchronizing mirror job from Origin to
// Destination. Immutable once produced by a Provider.
type Mirror struct {
	Origin      string
	Destination string
	Refspec     []string // nil means the run's default refspec, or --mirror when that is empty too
	LFS         bool
	Flat        bool // supplement: shallow depth-1 mirror instead of --mirror
}

// Entry is exactly one of a Mirror, a skip advisory, or a parse error. It
// is produced by a Provider and consumed exactly once by the engine.
type Entry struct {
	Kind       EntryKind
	Mirror     Mirror
	ProjectURL string // set for EntrySkip and EntryParseError
	Cause      error  // set for EntryParseError
}

// Provider enumerates candidate mirror jobs from one upstream catalog.
type Provider interface {
	// Enumerate fetches the full, paginated project catalog and returns
	// one Entry per discovered project. The returned slice's order is
	// stable within a call.
	Enumerate(ctx context.Context) ([]Entry, error)
	// Label identifies this provider's catalog for metrics, of the form
	// "<provider_url>/<group_or_org>".
	Label() string
}

// description is the structured per-project free-text description format
// documented in spec.md §6.
type description struct {
	Origin  string   `yaml:"origin"`
	Skip    bool     `yaml:"skip"`
	Refspec []string `yaml:"refspec"`
	LFS     *bool    `yaml:"lfs"`
	Flat    bool     `yaml:"flat"`
}

// ParseDescription parses a project's free-text description field into an
// Entry. sshURL/httpURL and useHTTP let the caller pick SSH vs HTTP clone
// URLs; projectURL is used for Skip/ParseError entries and is whatever the
// forge considers the project's human-facing URL.
func ParseDescription(projectURL, raw string, useHTTP bool, sshURL, httpURL string) Entry {
	var desc description
	if err := yaml.Unmarshal([]byte(raw), &desc); err != nil {
		return Entry{Kind: EntryParseError, ProjectURL: projectURL, Cause: fmt.Errorf("description is not valid YAML: %w", err)}
	}

	if desc.Origin == "" {
		return Entry{Kind: EntryParseError, ProjectURL: projectURL, Cause: fmt.Errorf("description missing required field \"origin\"")}
	}

	if desc.Skip {
		return Entry{Kind: EntrySkip, ProjectURL: projectURL}
	}

	if desc.Flat && lfsEnabled(desc.LFS) {
		return Entry{Kind: EntryParseError, ProjectURL: projectURL, Cause: fmt.Errorf("flat and lfs cannot both be set")}
	}

	dest := sshURL
	if useHTTP {
		dest = httpURL
	}

	return Entry{
		Kind: EntryMirror,
		Mirror: Mirror{
			Origin:      desc.Origin,
			Destination: dest,
			Refspec:     desc.Refspec,
			LFS:         lfsEnabled(desc.LFS),
			Flat:        desc.Flat,
		},
	}
}

func lfsEnabled(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
