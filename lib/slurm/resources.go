// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package slurm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/slurmflow/slurmflow/lib/config"
)

// Resources describes what a batch job asks the scheduler for.
type Resources struct {
	Partition   string
	NTasks      int
	CPUsPerTask int
	Memory      string
	Time        string
	JobName     string

	// GRES requests generic resources such as "gpu:1". Empty omits
	// the directive.
	GRES string

	// OutputDir holds the job's stdout and stderr files. Empty means
	// the directory sbatch runs in.
	OutputDir string

	// Extra holds further directives keyed by sbatch long option name
	// without the leading dashes.
	Extra map[string]string
}

// DefaultResources returns one task on one CPU with 8G for an hour.
func DefaultResources() Resources {
	return Resources{
		Partition:   "standard",
		NTasks:      1,
		CPUsPerTask: 1,
		Memory:      "8G",
		Time:        "1:00:00",
		JobName:     "python_job",
	}
}

// OutputPath is where the job's stdout goes.
func (r Resources) OutputPath() string {
	return filepath.Join(r.OutputDir, "slurm_"+r.JobName+".out")
}

// ErrorPath is where the job's stderr goes.
func (r Resources) ErrorPath() string {
	return filepath.Join(r.OutputDir, "slurm_"+r.JobName+".err")
}

// Directives renders the #SBATCH header block, one directive per line
// without a trailing newline. Extra directives follow the standard
// ones in name order.
func (r Resources) Directives() string {
	var lines []string
	add := func(key, value string) {
		lines = append(lines, "#SBATCH --"+key+"="+value)
	}

	add("partition", r.Partition)
	add("ntasks", strconv.Itoa(r.NTasks))
	add("cpus-per-task", strconv.Itoa(r.CPUsPerTask))
	add("mem", r.Memory)
	add("time", r.Time)
	add("job-name", r.JobName)

	names := make([]string, 0, len(r.Extra))
	for name := range r.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(strings.ReplaceAll(name, "_", "-"), r.Extra[name])
	}

	add("output", r.OutputPath())
	add("error", r.ErrorPath())
	if r.GRES != "" {
		add("gres", r.GRES)
	}
	return strings.Join(lines, "\n")
}

// ResourcesFromConfig starts from DefaultResources and applies every
// leaf under section. Keys use the sbatch names with either dashes or
// underscores ("cpus_per_task", "job-name"); unrecognized keys become
// Extra directives.
func ResourcesFromConfig(cfg *config.Config, section string) (Resources, error) {
	resources := DefaultResources()

	prefix := section + config.Delimiter
	for _, key := range cfg.Keys() {
		if section != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		value, err := cfg.String(key)
		if err != nil {
			return Resources{}, err
		}
		name := key
		if section != "" {
			name = strings.TrimPrefix(key, prefix)
		}
		name = strings.ReplaceAll(name, "-", "_")

		switch name {
		case "partition":
			resources.Partition = value
		case "ntasks":
			if resources.NTasks, err = strconv.Atoi(value); err != nil {
				return Resources{}, fmt.Errorf("%s: %w", key, err)
			}
		case "cpus_per_task":
			if resources.CPUsPerTask, err = strconv.Atoi(value); err != nil {
				return Resources{}, fmt.Errorf("%s: %w", key, err)
			}
		case "mem":
			resources.Memory = value
		case "time":
			resources.Time = value
		case "job_name":
			resources.JobName = value
		case "gres":
			resources.GRES = value
		case "output_dir":
			resources.OutputDir = value
		default:
			if resources.Extra == nil {
				resources.Extra = make(map[string]string)
			}
			resources.Extra[name] = value
		}
	}
	return resources, nil
}
