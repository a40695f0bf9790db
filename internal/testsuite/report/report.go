// Package report aggregates the outcome of a load test run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/testsuite/worker"
)

// Orphan is a remote resource that may still exist after the run.
type Orphan struct {
	Worker int    `json:"worker"`
	Kind   string `json:"kind"`
	Id     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Cleanup records what the cleanup phase did for one worker.
type Cleanup struct {
	JobStopped     bool   `json:"jobStopped"`
	ProjectDeleted bool   `json:"projectDeleted"`
	AccountDeleted bool   `json:"accountDeleted"`
	Error          string `json:"error,omitempty"`
}

type WorkerResult struct {
	Index        int           `json:"index"`
	Username     string        `json:"username,omitempty"`
	ProjectSlug  string        `json:"projectSlug,omitempty"`
	JobSubmitted bool          `json:"jobSubmitted"`
	JobRunning   bool          `json:"jobRunning"`
	Warning      string        `json:"warning,omitempty"`
	Error        string        `json:"error,omitempty"`
	Abandoned    bool          `json:"abandoned"`
	SetupElapsed time.Duration `json:"setupElapsed"`
	Cleanup      Cleanup       `json:"cleanup"`
}

type Report struct {
	RunId   string         `json:"runId"`
	Workers []WorkerResult `json:"workers"`
	// Workers whose readiness was resolved, successfully or not.
	Ready           int           `json:"ready"`
	JobRunning      int           `json:"jobRunning"`
	Errors          int           `json:"errors"`
	Warnings        int           `json:"warnings"`
	Abandoned       int           `json:"abandoned"`
	CleanupFailures int           `json:"cleanupFailures"`
	Orphans         []Orphan      `json:"orphans,omitempty"`
	SetupElapsed    time.Duration `json:"setupElapsed"`
	TotalElapsed    time.Duration `json:"totalElapsed"`
	// Set when the run was cut short by an interrupt.
	Interrupted bool `json:"interrupted"`

	outcomes []worker.Outcome
}

// New builds a report from outcomes ordered by worker index. cleanups and orphans may be nil.
func New(runId string, outcomes []worker.Outcome, ready []bool, cleanups []Cleanup, orphans []Orphan) *Report {
	r := &Report{
		RunId:    runId,
		Workers:  make([]WorkerResult, len(outcomes)),
		Orphans:  orphans,
		outcomes: outcomes,
	}
	for i, o := range outcomes {
		result := WorkerResult{
			Index:        o.Index,
			Username:     o.Username,
			ProjectSlug:  o.ProjectSlug,
			JobSubmitted: o.JobSubmitted,
			JobRunning:   o.JobRunning,
			Warning:      o.Warning,
			Abandoned:    o.Abandoned,
			SetupElapsed: o.SetupElapsed,
		}
		if o.Err != nil {
			result.Error = o.Err.Error()
			r.Errors++
		}
		if o.Warning != "" {
			r.Warnings++
		}
		if o.JobRunning {
			r.JobRunning++
		}
		if o.Abandoned {
			r.Abandoned++
		}
		if i < len(ready) && ready[i] {
			r.Ready++
		}
		if i < len(cleanups) {
			result.Cleanup = cleanups[i]
			if cleanups[i].Error != "" {
				r.CleanupFailures++
			}
		}
		r.Workers[i] = result
	}
	return r
}

// Outcomes returns the per-worker outcomes the report was built from.
func (r *Report) Outcomes() []worker.Outcome {
	return r.outcomes
}

// ExitCode is 0 if at least one worker confirmed its training job running.
func (r *Report) ExitCode() int {
	if r.JobRunning > 0 {
		return 0
	}
	return 1
}

func (r *Report) Succeeded() bool {
	return r.ExitCode() == 0
}

// Print writes a human readable summary to out.
func (r *Report) Print(out io.Writer) error {
	n := len(r.Workers)
	tw := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunId)
	fmt.Fprintf(tw, "Setup:\t%s\n", r.SetupElapsed.Round(100*time.Millisecond))
	fmt.Fprintf(tw, "Total:\t%s\n", r.TotalElapsed.Round(100*time.Millisecond))
	fmt.Fprintf(tw, "Ready:\t%d/%d\n", r.Ready, n)
	fmt.Fprintf(tw, "Training started:\t%d/%d\n", r.JobRunning, n)
	fmt.Fprintf(tw, "Errors:\t%d/%d\n", r.Errors, n)
	if r.Warnings > 0 {
		fmt.Fprintf(tw, "Warnings:\t%d/%d\n", r.Warnings, n)
	}
	if r.Abandoned > 0 {
		fmt.Fprintf(tw, "Abandoned:\t%d/%d\n", r.Abandoned, n)
	}
	if r.CleanupFailures > 0 {
		fmt.Fprintf(tw, "Cleanup failures:\t%d/%d\n", r.CleanupFailures, n)
	}
	if r.Interrupted {
		fmt.Fprintf(tw, "Interrupted:\ttrue\n")
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "WORKER\tUSER\tPROJECT\tTRAINING\tSETUP\tRESULT\n")
	for _, w := range r.Workers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			w.Index,
			orDash(w.Username),
			orDash(w.ProjectSlug),
			training(w),
			w.SetupElapsed.Round(100*time.Millisecond),
			result(w))
	}
	for _, orphan := range r.Orphans {
		fmt.Fprintf(tw, "orphan\t%s\t%s\tworker %d: %s\t\t\n", orphan.Kind, orDash(orphan.Id), orphan.Worker, orphan.Reason)
	}
	return tw.Flush()
}

func training(w WorkerResult) string {
	switch {
	case w.JobRunning:
		return "running"
	case w.JobSubmitted:
		return "submitted"
	default:
		return "-"
	}
}

func result(w WorkerResult) string {
	var parts []string
	switch {
	case w.Error != "":
		parts = append(parts, "ERROR: "+w.Error)
	case w.Warning != "":
		parts = append(parts, "WARNING: "+w.Warning)
	default:
		parts = append(parts, "OK")
	}
	if w.Abandoned {
		parts = append(parts, "abandoned")
	}
	if w.Cleanup.Error != "" {
		parts = append(parts, "cleanup failed: "+w.Cleanup.Error)
	}
	return strings.Join(parts, "; ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Write saves the report as YAML (.yaml, .yml) or JSON (.json).
func (r *Report) Write(path string) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	default:
		return errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "report",
			Value:   path,
			Message: "report files must end in .yaml, .yml or .json",
		})
	}
	if err != nil {
		return errors.WithStack(err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(os.WriteFile(path, data, 0o644))
}

// Read loads a report previously saved with Write, in either format.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	r := &Report{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, errors.Wrapf(err, "failed to parse report %s", path)
	}
	return r, nil
}
