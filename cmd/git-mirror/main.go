// Command git-mirror mirrors every project in a forge group or organization
// to a destination URL, one project at a time, driving an external git
// binary through a clone/update/push state machine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/k8scat/git-mirror/internal/engine"
	"github.com/k8scat/git-mirror/internal/gitbin"
	"github.com/k8scat/git-mirror/internal/layout"
	"github.com/k8scat/git-mirror/internal/metrics"
	"github.com/k8scat/git-mirror/internal/mirrorerr"
	"github.com/k8scat/git-mirror/internal/provider"
	"github.com/k8scat/git-mirror/internal/provider/githubprov"
	"github.com/k8scat/git-mirror/internal/provider/gitlabprov"
	"github.com/k8scat/git-mirror/internal/report"
)

const (
	providerGitLab = "GroupForge"
	providerGitHub = "OrgForge"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:])
	os.Exit(mirrorerr.ExitCodeFor(err))
}

// run executes one end-to-end mirror invocation and returns the error that
// determines the process exit code, via mirrorerr.ExitCodeFor. A nil error
// means a clean exit 0.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return mirrorerr.NewGeneric("invalid arguments: %v", err)
	}

	log := newLogger(opts.verbosity)
	slog.SetDefault(log)

	prov, label, err := buildProvider(opts)
	if err != nil {
		return mirrorerr.NewMirror("unable to construct provider", err)
	}

	lock, err := layout.Acquire(opts.mirrorDir)
	if err != nil {
		return err // already a *mirrorerr.GenericError
	}
	defer lock.Unlock()

	log.Info("enumerating projects", "label", label)
	entries, err := prov.Enumerate(ctx)
	if err != nil {
		return mirrorerr.NewMirror("provider enumeration failed", err)
	}
	log.Info("enumeration complete", "count", len(entries))

	backend := gitbin.New(opts.gitExecutable, opts.gitTimeout, log)
	rep := report.New()
	metricsReg := metrics.New()

	metricsReg.StartTime.WithLabelValues(label).Set(float64(time.Now().Unix()))

	eng := engine.New(backend, engine.RunOptions{
		MirrorDir:       opts.mirrorDir,
		DryRun:          opts.dryRun,
		WorkerCount:     opts.workerCount,
		DefaultRefspec:  opts.refspec,
		RemoveWorkrepo:  opts.removeWorkrepo,
		FailOnSyncError: opts.failOnSyncError,
		MirrorLFS:       opts.lfs,
		Flat:            opts.flat,
		GitTimeout:      opts.gitTimeout,
	}, label, metricsReg, rep, log)

	runReport := eng.ExecuteAll(ctx, entries)

	metricsReg.EndTime.WithLabelValues(label).Set(float64(time.Now().Unix()))

	log.Info("DONE", "ok", runReport.Counters.OK, "total", runReport.Counters.Total,
		"fail", runReport.Counters.Fail, "timeout", runReport.Counters.Timeout, "skip", runReport.Counters.Skip)

	if opts.metricFile != "" {
		if err := metricsReg.WriteFile(opts.metricFile); err != nil {
			log.Error("unable to write metric file", "error", err)
		}
	}
	if opts.junitReport != "" {
		if err := rep.WriteJUnit(opts.junitReport); err != nil {
			log.Error("unable to write junit report", "error", err)
		}
	}

	n := runReport.Counters.Fail + runReport.Counters.Timeout
	if n > 0 && opts.failOnSyncError {
		return &mirrorerr.SyncError{Count: n}
	}
	return nil
}

func buildProvider(opts cliOptions) (provider.Provider, string, error) {
	switch opts.provider {
	case providerGitLab:
		url := opts.url
		if url == "" {
			url = "https://gitlab.com"
		}
		p := gitlabprov.New(gitlabprov.Config{
			URL:          url,
			Group:        opts.group,
			PrivateToken: opts.privateToken,
			UseHTTP:      opts.useHTTP,
			Recursive:    true,
			Log:          slog.Default(),
		})
		return p, p.Label(), nil
	case providerGitHub:
		url := opts.url
		if url == "" {
			url = "https://api.github.com"
		}
		p := githubprov.New(githubprov.Config{
			URL:          url,
			Org:          opts.group,
			PrivateToken: opts.privateToken,
			UseHTTP:      opts.useHTTP,
			Log:          slog.Default(),
		})
		return p, p.Label(), nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q (want %q or %q)", opts.provider, providerGitLab, providerGitHub)
	}
}

// newLogger maps a repeated -v count (0..4) to a slog level, following the
// error/warn/info/debug/trace scale; slog has no trace level, so trace (4 and
// above) is one step below slog.LevelDebug.
func newLogger(verbosity int) *slog.Logger {
	var level slog.Level
	switch {
	case verbosity <= 0:
		level = slog.LevelError
	case verbosity == 1:
		level = slog.LevelWarn
	case verbosity == 2:
		level = slog.LevelInfo
	case verbosity == 3:
		level = slog.LevelDebug
	default:
		level = slog.LevelDebug - 1
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(level)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	return slog.New(handler)
}

type cliOptions struct {
	provider        string
	url             string
	group           string
	mirrorDir       string
	verbosity       int
	useHTTP         bool
	dryRun          bool
	workerCount     int
	metricFile      string
	junitReport     string
	gitExecutable   string
	privateToken    string
	refspec         []string
	removeWorkrepo  bool
	failOnSyncError bool
	lfs             bool
	flat            bool
	gitTimeout      time.Duration
}

// parseFlags binds the CLI surface via pflag, with PRIVATE_TOKEN and
// GIT_MIRROR_GROUP resolved through viper as fallbacks for --private-token
// and --group when the operator left them unset.
func parseFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("git-mirror", pflag.ContinueOnError)

	var opts cliOptions
	var gitTimeoutSeconds int
	var verbosity int

	fs.StringVar(&opts.provider, "provider", providerGitLab, "forge provider: GroupForge or OrgForge")
	fs.StringVar(&opts.url, "url", "", "forge base URL (defaults depend on provider)")
	fs.StringVar(&opts.group, "group", "", "group id (GroupForge) or organization name (OrgForge)")
	fs.StringVar(&opts.mirrorDir, "mirror-dir", "./mirror-dir", "directory holding bare mirror repositories and the lockfile")
	fs.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	fs.BoolVar(&opts.useHTTP, "http", false, "clone via HTTP instead of SSH")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "enumerate and classify but perform no git operations")
	fs.IntVarP(&opts.workerCount, "worker-count", "c", 1, "number of concurrent mirror workers")
	fs.StringVar(&opts.metricFile, "metric-file", "", "path to write a Prometheus text-format metrics snapshot")
	fs.StringVar(&opts.junitReport, "junit-report", "", "path to write a JUnit XML report")
	fs.StringVar(&opts.gitExecutable, "git-executable", "git", "path to the git executable")
	fs.StringVar(&opts.privateToken, "private-token", "", "forge API token (env PRIVATE_TOKEN)")
	fs.StringArrayVar(&opts.refspec, "refspec", nil, "default push refspec (repeatable); --mirror is used when empty")
	fs.BoolVar(&opts.removeWorkrepo, "remove-workrepo", false, "remove the working directory after a successful push")
	fs.BoolVar(&opts.failOnSyncError, "fail-on-sync-error", false, "exit 1 if any job failed")
	fs.BoolVar(&opts.lfs, "lfs", true, "enable Git LFS fetch/push support")
	fs.BoolVar(&opts.flat, "flat", false, "default every job to a shallow depth-1 mirror instead of --mirror")
	fs.IntVar(&gitTimeoutSeconds, "git-timeout", 0, "timeout in seconds for each git invocation (0 means unbounded)")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("GIT_MIRROR")
	v.AutomaticEnv()
	if err := v.BindEnv("private_token", "PRIVATE_TOKEN"); err != nil {
		return cliOptions{}, err
	}
	if err := v.BindPFlag("group", fs.Lookup("group")); err != nil {
		return cliOptions{}, err
	}

	if opts.privateToken == "" {
		opts.privateToken = v.GetString("private_token")
	}
	if opts.group == "" {
		opts.group = v.GetString("group")
	}

	opts.verbosity = verbosity
	opts.gitTimeout = time.Duration(gitTimeoutSeconds) * time.Second

	if opts.group == "" {
		return cliOptions{}, fmt.Errorf("--group is required")
	}
	if opts.workerCount < 1 {
		return cliOptions{}, fmt.Errorf("--worker-count must be >= 1")
	}

	if abs, err := filepath.Abs(opts.mirrorDir); err == nil {
		opts.mirrorDir = abs
	}

	return opts, nil
}
