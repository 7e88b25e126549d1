// Package metrics defines the Prometheus metric families a single run of
// git-mirror publishes, and writes them out in the text exposition format
// for node_exporter's textfile collector.
//
// Metrics are kept on a per-run registry rather than the global default
// registry: a long-lived process (a systemd timer, a cron job) runs one
// Registry per invocation and discards it afterward, so counters never
// accumulate across unrelated runs sharing one binary.
package metrics

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds the counters and gauges for one run of git-mirror.
type Registry struct {
	reg *prometheus.Registry

	Total        *prometheus.CounterVec
	Skip         *prometheus.CounterVec
	Fail         *prometheus.CounterVec
	Timeout      *prometheus.CounterVec
	OK           *prometheus.CounterVec
	ProjectStart *prometheus.GaugeVec
	ProjectEnd   *prometheus.GaugeVec
	StartTime    *prometheus.GaugeVec
	EndTime      *prometheus.GaugeVec
}

// New builds a fresh, unpopulated Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "git_mirror_total",
			Help: "Total number of mirror jobs attempted, by mirror (provider) label.",
		}, []string{"mirror"}),
		Skip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "git_mirror_skip",
			Help: "Number of mirror jobs skipped, including explicit skips and parse errors.",
		}, []string{"mirror"}),
		Fail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "git_mirror_fail",
			Help: "Number of mirror jobs that failed for a reason other than a timeout.",
		}, []string{"mirror"}),
		Timeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "git_mirror_timeout",
			Help: "Number of mirror jobs that failed because a git invocation timed out.",
		}, []string{"mirror"}),
		OK: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "git_mirror_ok",
			Help: "Number of mirror jobs that completed successfully.",
		}, []string{"mirror"}),
		ProjectStart: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "git_mirror_project_start",
			Help: "Unix timestamp a mirror job for this origin last started.",
		}, []string{"origin", "destination", "mirror"}),
		ProjectEnd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "git_mirror_project_end",
			Help: "Unix timestamp a mirror job for this origin last finished, regardless of outcome.",
		}, []string{"origin", "destination", "mirror"}),
		StartTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "git_mirror_start_time",
			Help: "Unix timestamp this run started.",
		}, []string{"mirror"}),
		EndTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "git_mirror_end_time",
			Help: "Unix timestamp this run finished.",
		}, []string{"mirror"}),
	}

	reg.MustRegister(r.Total, r.Skip, r.Fail, r.Timeout, r.OK, r.ProjectStart, r.ProjectEnd, r.StartTime, r.EndTime)
	return r
}

// WriteFile renders every registered metric in the Prometheus text
// exposition format and writes it to path, replacing any existing file.
func (r *Registry) WriteFile(path string) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("unable to gather metrics: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create metric file %s: %w", path, err)
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("unable to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
