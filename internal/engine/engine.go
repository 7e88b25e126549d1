// Package engine implements the per-job mirror state machine: probe, clone
// or update, push, optional cleanup. It drives a gitbin.Backend through a
// bounded worker pool and aggregates every job's outcome into a report and
// a metrics registry without letting one job's failure affect its peers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/k8scat/git-mirror/internal/gitbin"
	"github.com/k8scat/git-mirror/internal/layout"
	"github.com/k8scat/git-mirror/internal/metrics"
	"github.com/k8scat/git-mirror/internal/provider"
	"github.com/k8scat/git-mirror/internal/report"
)

// Status is the terminal classification of a single JobOutcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusParseError
	StatusSyncError
)

// SyncErrorKind further classifies a StatusSyncError outcome, mirroring the
// split between mirrorerr.GenericError and gitbin.GitError.
type SyncErrorKind int

const (
	SyncKindGeneric SyncErrorKind = iota
	SyncKindGit
)

// JobOutcome is produced exactly once per provider.Entry.
type JobOutcome struct {
	Name     string // "origin -> destination", or the project URL for skip/parse-error
	Duration time.Duration
	Status   Status
	ErrKind  SyncErrorKind
	Timeout  bool
	Message  string
}

// Counters tallies outcomes by terminal classification, matching the
// Prometheus metric families in internal/metrics.
type Counters struct {
	Total, OK, Fail, Timeout, Skip int
}

// RunReport is the ordered list of outcomes plus counters for one run,
// built concurrently by workers and safe to read once ExecuteAll returns.
type RunReport struct {
	mu       sync.Mutex
	Outcomes []JobOutcome
	Counters Counters
}

func (r *RunReport) append(o JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Outcomes = append(r.Outcomes, o)
	r.Counters.Total++
	switch o.Status {
	case StatusSuccess:
		r.Counters.OK++
	case StatusSkipped, StatusParseError:
		r.Counters.Skip++
	case StatusSyncError:
		if o.Timeout {
			r.Counters.Timeout++
		} else {
			r.Counters.Fail++
		}
	}
}

// RunOptions configures one engine run. Immutable once passed to New.
type RunOptions struct {
	MirrorDir       string
	DryRun          bool
	WorkerCount     int
	DefaultRefspec  []string
	RemoveWorkrepo  bool
	FailOnSyncError bool
	MirrorLFS       bool // backend-global lfs enablement; ANDed with each job's per-project flag
	Flat            bool // run-level default flat/shallow mode; ORed with each job's per-project flag
	GitTimeout      time.Duration
}

// Engine drives a gitbin.Backend over a sequence of provider.Entry values.
type Engine struct {
	Backend gitbin.Backend
	Options RunOptions
	Metrics *metrics.Registry
	Report  *report.Report
	Label   string
	Log     *slog.Logger
}

// New builds an Engine. metricsReg and rep may be nil to skip that side
// effect (useful in tests that only care about the RunReport).
func New(backend gitbin.Backend, opts RunOptions, label string, metricsReg *metrics.Registry, rep *report.Report, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	return &Engine{
		Backend: backend,
		Options: opts,
		Metrics: metricsReg,
		Report:  rep,
		Label:   label,
		Log:     log,
	}
}

// ExecuteAll dispatches entries to a worker pool of Options.WorkerCount
// workers, preserving entries' order as dispatch order (completion order is
// undefined), and returns the aggregated RunReport. It never returns a
// non-nil error itself: per-job failures are captured as outcomes.
func (e *Engine) ExecuteAll(ctx context.Context, entries []provider.Entry) *RunReport {
	run := &RunReport{}
	total := len(entries)

	var g errgroup.Group
	g.SetLimit(e.Options.WorkerCount)

	for i, entry := range entries {
		idx := i + 1
		entry := entry
		g.Go(func() error {
			outcome := e.runJob(ctx, entry, idx, total)
			run.append(outcome)
			e.recordMetrics(entry, outcome)
			e.recordReport(entry, outcome)
			return nil
		})
	}
	_ = g.Wait()

	return run
}

func (e *Engine) recordMetrics(entry provider.Entry, o JobOutcome) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.Total.WithLabelValues(e.Label).Inc()
	switch o.Status {
	case StatusSuccess:
		e.Metrics.OK.WithLabelValues(e.Label).Inc()
	case StatusSkipped, StatusParseError:
		e.Metrics.Skip.WithLabelValues(e.Label).Inc()
	case StatusSyncError:
		if o.Timeout {
			e.Metrics.Timeout.WithLabelValues(e.Label).Inc()
		} else {
			e.Metrics.Fail.WithLabelValues(e.Label).Inc()
		}
	}
	if entry.Kind == provider.EntryMirror {
		e.Metrics.ProjectEnd.WithLabelValues(entry.Mirror.Origin, entry.Mirror.Destination, e.Label).Set(float64(time.Now().Unix()))
	}
}

// recordProjectStart sets the project_start gauge at the moment a mirror
// job begins, so a still-running job's age is visible before its
// project_end gauge is ever touched.
func (e *Engine) recordProjectStart(m provider.Mirror) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.ProjectStart.WithLabelValues(m.Origin, m.Destination, e.Label).Set(float64(time.Now().Unix()))
}

func (e *Engine) recordReport(entry provider.Entry, o JobOutcome) {
	if e.Report == nil {
		return
	}
	rec := report.Record{Name: o.Name, Duration: o.Duration, Message: o.Message}
	switch o.Status {
	case StatusSuccess:
		rec.Outcome = report.OutcomeSuccess
	case StatusSkipped:
		rec.Outcome = report.OutcomeSkip
	case StatusParseError:
		// spec: "error record with empty name, 'parse error' kind".
		rec.Name = ""
		rec.Outcome = report.OutcomeParseError
	case StatusSyncError:
		rec.Outcome = report.OutcomeFailure
	}
	e.Report.Add(rec)
}

// runJob executes exactly one JobEntry through the state machine and never
// panics or returns an error: every failure is folded into the returned
// JobOutcome.
func (e *Engine) runJob(ctx context.Context, entry provider.Entry, idx, total int) JobOutcome {
	switch entry.Kind {
	case provider.EntrySkip:
		e.Log.Info("START", "index", idx, "total", total, "url", entry.ProjectURL)
		e.Log.Info("END", "index", idx, "total", total, "result", "skip")
		return JobOutcome{Name: entry.ProjectURL, Status: StatusSkipped, Message: "skip: true"}
	case provider.EntryParseError:
		e.Log.Info("START", "index", idx, "total", total, "url", entry.ProjectURL)
		e.Log.Warn("END", "index", idx, "total", total, "result", "parse_error", "error", entry.Cause)
		return JobOutcome{Name: entry.ProjectURL, Status: StatusParseError, Message: entry.Cause.Error()}
	}

	m := entry.Mirror
	name := fmt.Sprintf("%s -> %s", m.Origin, m.Destination)
	start := time.Now()

	e.Log.Info("START", "index", idx, "total", total, "name", name)
	e.recordProjectStart(m)

	outcome := e.runMirrorJob(ctx, m)
	outcome.Name = name
	outcome.Duration = time.Since(start)

	if outcome.Status == StatusSuccess {
		e.Log.Info("END", "index", idx, "total", total, "name", name, "result", "ok")
	} else {
		e.Log.Warn("END", "index", idx, "total", total, "name", name, "result", "fail", "error", outcome.Message)
	}

	return outcome
}

func (e *Engine) runMirrorJob(ctx context.Context, m provider.Mirror) JobOutcome {
	if e.Options.DryRun {
		return JobOutcome{Status: StatusSuccess}
	}

	// Run-level --flat defaults every job to the flat (shallow) mode unless
	// a job enables it directly; flat and LFS are mutually exclusive, so an
	// effectively-flat job never carries LFS regardless of its own flag.
	effectiveFlat := e.Options.Flat || m.Flat
	effectiveLFS := e.Options.MirrorLFS && m.LFS && !effectiveFlat

	if err := e.Backend.Version(ctx); err != nil {
		return syncError(err)
	}
	if effectiveLFS {
		if err := e.Backend.LFSVersion(ctx); err != nil {
			return syncError(err)
		}
	}

	path := layout.PathFor(e.Options.MirrorDir, m.Origin)
	info, err := os.Stat(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := e.Backend.CloneMirror(ctx, m.Origin, path, effectiveLFS); err != nil {
			return syncError(err)
		}
	case err != nil:
		return JobOutcome{Status: StatusSyncError, ErrKind: SyncKindGeneric, Message: err.Error()}
	case !info.IsDir():
		return JobOutcome{Status: StatusSyncError, ErrKind: SyncKindGeneric, Message: "local origin dir is a file"}
	default:
		if err := e.Backend.UpdateMirror(ctx, m.Origin, path, effectiveLFS); err != nil {
			return syncError(err)
		}
	}

	if effectiveFlat {
		if err := e.Backend.FetchFlat(ctx, path); err != nil {
			return syncError(err)
		}
	}

	refspec := m.Refspec
	if len(refspec) == 0 {
		refspec = e.Options.DefaultRefspec
	}
	if err := e.Backend.PushMirror(ctx, m.Destination, path, refspec, effectiveLFS); err != nil {
		return syncError(err)
	}

	if e.Options.RemoveWorkrepo {
		if err := os.RemoveAll(path); err != nil {
			return JobOutcome{Status: StatusSyncError, ErrKind: SyncKindGeneric, Message: fmt.Sprintf("unable to remove work repo %s: %v", path, err)}
		}
	}

	return JobOutcome{Status: StatusSuccess}
}

func syncError(err error) JobOutcome {
	outcome := JobOutcome{Status: StatusSyncError, Message: err.Error()}
	if gitbin.IsTimeout(err) {
		outcome.Timeout = true
	}
	var gerr *gitbin.GitError
	if errors.As(err, &gerr) {
		outcome.ErrKind = SyncKindGit
	} else {
		outcome.ErrKind = SyncKindGeneric
	}
	return outcome
}
