// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package slurm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slurmflow/slurmflow/lib/clock"
)

// Status is a job's state as last observed.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// Finished reports whether the scheduler is done with a job in this
// state.
func (s Status) Finished() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// EnvManager selects how a job script activates its environment.
type EnvManager string

const (
	EnvMamba EnvManager = "mamba"
	EnvConda EnvManager = "conda"
)

var (
	// ErrUnknownEnvManager is returned for an EnvManager other than
	// mamba or conda.
	ErrUnknownEnvManager = errors.New("unknown environment manager")

	// ErrSubmit is returned when sbatch output carries no job ID.
	ErrSubmit = errors.New("job submission failed")
)

// DefaultPollInterval is the Wait interval used when none is given.
const DefaultPollInterval = 10 * time.Second

// Job is a tracked job.
type Job struct {
	ID     string
	Status Status

	// Script is the batch script submitted for the job. Empty for
	// jobs registered with Track.
	Script string
}

// Config holds the parameters for New.
type Config struct {
	// Runner executes scheduler commands. Nil means ExecRunner.
	Runner Runner

	// Clock paces Wait. Nil means clock.Real().
	Clock clock.Clock

	// ScriptDir receives generated batch scripts. Empty means
	// os.TempDir().
	ScriptDir string

	// Logger receives submission and status messages. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Driver submits jobs to Slurm and keeps a registry of the ones it
// tracks. It is safe for concurrent use.
type Driver struct {
	runner    Runner
	clock     clock.Clock
	scriptDir string
	logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// New returns a Driver with an empty registry.
func New(cfg Config) *Driver {
	d := &Driver{
		runner:    cfg.Runner,
		clock:     cfg.Clock,
		scriptDir: cfg.ScriptDir,
		logger:    cfg.Logger,
		jobs:      make(map[string]*Job),
	}
	if d.runner == nil {
		d.runner = ExecRunner{}
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// Available reports whether sbatch is installed and is Slurm's.
func (d *Driver) Available(ctx context.Context) bool {
	output, err := d.runner.Run(ctx, "sbatch", "--version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "slurm")
}

// SubmitOptions controls Submit.
type SubmitOptions struct {
	// Env is the environment to activate before the command. Empty
	// skips activation.
	Env string

	// EnvManager defaults to EnvMamba.
	EnvManager EnvManager

	// Modules are loaded with "module load" in order.
	Modules []string

	// Track registers the job so Status, Cancel, Refresh and Wait
	// see it.
	Track bool
}

// Script renders the batch script Submit would write.
func Script(command string, resources Resources, options SubmitOptions) (string, error) {
	lines := []string{"#!/bin/bash", resources.Directives()}

	if options.Env != "" {
		switch manager := options.EnvManager; manager {
		case "", EnvMamba:
			lines = append(lines,
				"source $MAMBA_ROOT_PREFIX/etc/profile.d/micromamba.sh",
				"micromamba activate "+options.Env,
			)
		case EnvConda:
			lines = append(lines,
				`__conda_setup="$('conda' 'shell.bash' 'hook' 2> /dev/null)"`,
				`eval "$__conda_setup"`,
				`unset __conda_setup`,
				"conda activate "+options.Env,
			)
		default:
			return "", fmt.Errorf("%w: %q", ErrUnknownEnvManager, manager)
		}
	}
	for _, module := range options.Modules {
		lines = append(lines, "module load "+module)
	}
	lines = append(lines, command)
	return strings.Join(lines, "\n") + "\n", nil
}

// Submit writes a batch script running command, hands it to sbatch
// and returns the job ID. The output directory is created first. The
// script file is kept so the job can be resubmitted or inspected.
func (d *Driver) Submit(ctx context.Context, command string, resources Resources, options SubmitOptions) (string, error) {
	script, err := Script(command, resources, options)
	if err != nil {
		return "", err
	}
	if resources.OutputDir != "" {
		if err := os.MkdirAll(resources.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
	}

	scriptPath, err := d.writeScript(script)
	if err != nil {
		return "", err
	}
	d.logger.Debug("submitting job", "script", scriptPath, "job_name", resources.JobName)

	output, err := d.runner.Run(ctx, "sbatch", scriptPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	fields := strings.Fields(string(output))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: sbatch printed nothing", ErrSubmit)
	}
	id := fields[len(fields)-1]

	if options.Track {
		d.mu.Lock()
		d.jobs[id] = &Job{ID: id, Status: StatusSubmitted, Script: scriptPath}
		d.mu.Unlock()
	}
	d.logger.Info("job submitted", "job_id", id, "job_name", resources.JobName, "tracked", options.Track)
	return id, nil
}

func (d *Driver) writeScript(script string) (string, error) {
	file, err := os.CreateTemp(d.scriptDir, "slurmflow-*.sh")
	if err != nil {
		return "", fmt.Errorf("creating batch script: %w", err)
	}
	if _, err := file.WriteString(script); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("writing batch script: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("writing batch script: %w", err)
	}
	return file.Name(), nil
}

// Track adds an existing job to the registry so later calls can query
// or cancel it. Tracking an ID twice keeps the first entry.
func (d *Driver) Track(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.jobs[id]; !ok {
		d.jobs[id] = &Job{ID: id, Status: StatusSubmitted}
	}
}

// Query asks squeue for a job's state without consulting the
// registry. A job squeue no longer lists is reported completed.
func (d *Driver) Query(ctx context.Context, id string) (Status, error) {
	output, err := d.runner.Run(ctx, "squeue", "-h", "-j", id, "-o", "%t")
	if err != nil {
		// squeue rejects IDs that have aged out of its table.
		if strings.Contains(string(output), "Invalid job id") {
			return StatusCompleted, nil
		}
		return StatusUnknown, err
	}
	return parseState(strings.TrimSpace(string(output))), nil
}

// parseState maps a squeue compact state code to a Status.
func parseState(code string) Status {
	switch code {
	case "":
		return StatusCompleted
	case "PD", "RQ", "RF", "RH":
		return StatusPending
	case "R", "CG", "CF", "S", "ST", "SO", "SI", "RS":
		return StatusRunning
	case "CD":
		return StatusCompleted
	case "CA":
		return StatusCancelled
	case "F", "TO", "NF", "OOM", "BF", "PR", "DL":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Status refreshes and returns the state of a tracked job. Untracked
// IDs return StatusUnknown without running squeue.
func (d *Driver) Status(ctx context.Context, id string) (Status, error) {
	d.mu.Lock()
	job, ok := d.jobs[id]
	d.mu.Unlock()
	if !ok {
		return StatusUnknown, nil
	}

	status, err := d.Query(ctx, id)
	if err != nil {
		return StatusUnknown, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// A cancelled job drops out of squeue; keep the more specific state.
	if job.Status == StatusCancelled && status == StatusCompleted {
		return job.Status, nil
	}
	job.Status = status
	return status, nil
}

// Cancel runs scancel for a tracked job and marks it cancelled. It
// returns false without running anything for untracked IDs.
func (d *Driver) Cancel(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	_, ok := d.jobs[id]
	d.mu.Unlock()
	if !ok {
		return false, nil
	}

	if _, err := d.runner.Run(ctx, "scancel", id); err != nil {
		return false, err
	}

	d.mu.Lock()
	if job, ok := d.jobs[id]; ok {
		job.Status = StatusCancelled
	}
	d.mu.Unlock()
	d.logger.Info("job cancelled", "job_id", id)
	return true, nil
}

// List returns the IDs squeue reports, optionally restricted to a
// state such as "PENDING" or "R".
func (d *Driver) List(ctx context.Context, state string) ([]string, error) {
	args := []string{"-h", "-o", "%i"}
	if state != "" {
		args = append(args, "-t", state)
	}
	output, err := d.runner.Run(ctx, "squeue", args...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(output)), nil
}

// Jobs returns a snapshot of the registry sorted by ID.
func (d *Driver) Jobs() []Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Driver) snapshotLocked() []Job {
	jobs := make([]Job, 0, len(d.jobs))
	for _, job := range d.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

func (d *Driver) isTracked(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.jobs[id]
	return ok
}

func (d *Driver) trackedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.jobs))
	for id := range d.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Refresh queries every tracked job and returns the registry. With
// clearFinished, jobs in a finished state are dropped from the
// registry after the query.
func (d *Driver) Refresh(ctx context.Context, clearFinished bool) ([]Job, error) {
	for _, id := range d.trackedIDs() {
		status, err := d.Status(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("refreshing job %s: %w", id, err)
		}
		if clearFinished && status.Finished() {
			d.mu.Lock()
			delete(d.jobs, id)
			d.mu.Unlock()
		}
	}
	return d.Jobs(), nil
}

// Wait polls every interval until each job tracked when Wait was
// called has finished or left the registry, or ctx is done. A non-positive interval means
// DefaultPollInterval.
func (d *Driver) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ids := d.trackedIDs()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(interval):
		}

		pending := 0
		for _, id := range ids {
			if !d.isTracked(id) {
				continue
			}
			status, err := d.Status(ctx, id)
			if err != nil {
				return fmt.Errorf("waiting for job %s: %w", id, err)
			}
			if !status.Finished() {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		d.logger.Debug("waiting for jobs", "pending", pending, "tracked", len(ids))
	}
}
