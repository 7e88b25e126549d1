// Package gitbin shells out to an external git binary with a uniform
// environment, optional per-invocation timeout, and structured error
// reporting. It is the only package in this module that ever execs git.
package gitbin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/k8scat/git-mirror/internal/mirrorerr"
)

// GitErrorKind discriminates the three ways a git invocation can fail.
type GitErrorKind int

const (
	// KindSpawn is an OS-level failure starting the child process.
	KindSpawn GitErrorKind = iota
	// KindExit is a non-zero child exit status.
	KindExit
	// KindTimeout is a configured timeout elapsing before the child
	// completed.
	KindTimeout
)

// GitError is returned by every Backend method on failure. It always
// carries the command line that was attempted.
type GitError struct {
	Kind     GitErrorKind
	Command  string
	Err      error         // set for KindSpawn
	ExitCode int           // set for KindExit
	Stderr   string        // set for KindExit
	Timeout  time.Duration // set for KindTimeout
}

func (e *GitError) Error() string {
	switch e.Kind {
	case KindSpawn:
		return fmt.Sprintf("command %q failed to start: %v", e.Command, e.Err)
	case KindExit:
		return fmt.Sprintf("command %q failed with exit code %d: %s", e.Command, e.ExitCode, e.Stderr)
	case KindTimeout:
		return fmt.Sprintf("command %q timed out after %s", e.Command, e.Timeout)
	default:
		return fmt.Sprintf("command %q failed", e.Command)
	}
}

func (e *GitError) Unwrap() error { return e.Err }

// ExitKind implements the mirrorerr exit-coder contract.
func (e *GitError) ExitKind() mirrorerr.Kind { return mirrorerr.KindGit }

// IsTimeout reports whether err is a GitError of KindTimeout, used by the
// engine to route a sync error into the "timeout" metric rather than
// "fail".
func IsTimeout(err error) bool {
	var gerr *GitError
	if errors.As(err, &gerr) {
		return gerr.Kind == KindTimeout
	}
	return false
}

// Backend is the contract the mirror engine drives. It is implemented by
// *Git for production use and faked in tests.
type Backend interface {
	Version(ctx context.Context) error
	LFSVersion(ctx context.Context) error
	CloneMirror(ctx context.Context, origin, dir string, lfs bool) error
	UpdateMirror(ctx context.Context, origin, dir string, lfs bool) error
	PushMirror(ctx context.Context, dest, dir string, refspec []string, lfs bool) error
	FetchFlat(ctx context.Context, dir string) error
}

// Git drives the external git executable.
type Git struct {
	Executable string        // defaults to "git"
	Timeout    time.Duration // zero means no per-invocation timeout
	Log        *slog.Logger
}

// New returns a Git backend using the given executable and timeout. A zero
// timeout means git invocations are allowed to run unbounded.
func New(executable string, timeout time.Duration, log *slog.Logger) *Git {
	if executable == "" {
		executable = "git"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Git{Executable: executable, Timeout: timeout, Log: log}
}

var _ Backend = (*Git)(nil)

func (g *Git) command(ctx context.Context, dir string, args ...string) (*exec.Cmd, context.Context, context.CancelFunc) {
	cancel := func() {}
	if g.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
	}
	cmd := exec.CommandContext(ctx, g.Executable, args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd, ctx, cancel
}

// run executes cmd, enforcing the configured timeout and classifying the
// result into a *GitError on failure. Only stderr is captured; a timed-out
// invocation is reported as KindTimeout and its captured stderr is dropped.
func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	cmd, runCtx, cancel := g.command(ctx, dir, args...)
	defer cancel()

	cmdline := strings.Join(append([]string{g.Executable}, args...), " ")
	g.Log.Debug("running git command", "cmd", cmdline, "dir", dir)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &GitError{Kind: KindTimeout, Command: cmdline, Timeout: g.Timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &GitError{
			Kind:     KindExit,
			Command:  cmdline,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
		}
	}

	return &GitError{Kind: KindSpawn, Command: cmdline, Err: err}
}

// Version runs `git --version`.
func (g *Git) Version(ctx context.Context) error {
	return g.run(ctx, "", "--version")
}

// LFSVersion runs `git lfs version`.
func (g *Git) LFSVersion(ctx context.Context) error {
	return g.run(ctx, "", "lfs", "version")
}

// CloneMirror runs `git clone --mirror <origin> <dir>`, followed by
// `git lfs fetch` in dir when lfs is requested.
func (g *Git) CloneMirror(ctx context.Context, origin, dir string, lfs bool) error {
	if err := g.run(ctx, "", "clone", "--mirror", origin, dir); err != nil {
		return err
	}
	if lfs {
		return g.lfsFetch(ctx, dir)
	}
	return nil
}

// UpdateMirror re-points origin and runs `git remote update --prune`,
// followed by `git lfs fetch` when lfs is requested.
func (g *Git) UpdateMirror(ctx context.Context, origin, dir string, lfs bool) error {
	if err := g.run(ctx, dir, "remote", "set-url", "origin", origin); err != nil {
		return err
	}
	if err := g.run(ctx, dir, "remote", "update", "--prune"); err != nil {
		return err
	}
	if lfs {
		return g.lfsFetch(ctx, dir)
	}
	return nil
}

func (g *Git) lfsFetch(ctx context.Context, dir string) error {
	return g.run(ctx, dir, "lfs", "fetch")
}

// FetchFlat implements the shallow-mirror supplement: fetch --depth 1,
// reset --hard to the default branch, clean, and flatten history so the
// working tree has a single synthetic root commit.
func (g *Git) FetchFlat(ctx context.Context, dir string) error {
	if err := g.run(ctx, dir, "fetch", "--depth", "1"); err != nil {
		return err
	}
	if err := g.run(ctx, dir, "reset", "--hard", "origin/HEAD"); err != nil {
		return err
	}
	if err := g.run(ctx, dir, "clean", "-dfx"); err != nil {
		return err
	}
	return g.run(ctx, dir, "filter-branch", "-f", "--", "--all")
}

// PushMirror installs LFS hooks (if applicable), then force-pushes either
// the given refspecs or --mirror to dest.
func (g *Git) PushMirror(ctx context.Context, dest, dir string, refspec []string, lfs bool) error {
	if lfs {
		if err := g.run(ctx, dir, "lfs", "install"); err != nil {
			return err
		}
	}

	args := []string{}
	if lfs {
		args = append(args, "-c", "lfs.url="+dest)
	}
	args = append(args, "push", "-f")
	if len(refspec) > 0 {
		args = append(args, dest)
		args = append(args, refspec...)
	} else {
		args = append(args, "--mirror", dest)
	}

	return g.run(ctx, dir, args...)
}
