// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package slurm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slurmflow/slurmflow/lib/clock"
	"github.com/slurmflow/slurmflow/lib/config"
	"github.com/slurmflow/slurmflow/lib/testutil"
)

// fakeScheduler answers sbatch, squeue and scancel from in-memory
// state.
type fakeScheduler struct {
	mu       sync.Mutex
	calls    []string
	nextID   int
	states   map[string]string
	scripts  map[string]string
	failNext error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		nextID:  1000,
		states:  make(map[string]string),
		scripts: make(map[string]string),
	}
}

func (f *fakeScheduler) setState(id, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == "" {
		delete(f.states, id)
		return
	}
	f.states[id] = code
}

func (f *fakeScheduler) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))

	if err := f.failNext; err != nil {
		f.failNext = nil
		return []byte("scheduler unavailable"), err
	}

	switch name {
	case "sbatch":
		if len(args) == 1 && args[0] == "--version" {
			return []byte("slurm 23.11.4\n"), nil
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		f.nextID++
		id := strconv.Itoa(f.nextID)
		f.scripts[id] = string(content)
		f.states[id] = "PD"
		return []byte("Submitted batch job " + id + "\n"), nil
	case "squeue":
		if len(args) >= 3 && args[1] == "-j" {
			id := args[2]
			code, ok := f.states[id]
			if !ok {
				return []byte(""), nil
			}
			return []byte(code + "\n"), nil
		}
		var ids []string
		for id, code := range f.states {
			if len(args) == 5 && args[4] != code {
				continue
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return []byte(strings.Join(ids, "\n")), nil
	case "scancel":
		delete(f.states, args[0])
		return nil, nil
	}
	return nil, errors.New("unexpected command " + name)
}

func (f *fakeScheduler) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestDriver(t *testing.T, scheduler *fakeScheduler, c clock.Clock) *Driver {
	t.Helper()
	return New(Config{Runner: scheduler, Clock: c, ScriptDir: t.TempDir()})
}

func TestDirectives(t *testing.T) {
	resources := DefaultResources()
	resources.JobName = "train"
	resources.OutputDir = "/logs"
	resources.GRES = "gpu:2"
	resources.Extra = map[string]string{"account": "lab", "mail_type": "END"}

	want := strings.Join([]string{
		"#SBATCH --partition=standard",
		"#SBATCH --ntasks=1",
		"#SBATCH --cpus-per-task=1",
		"#SBATCH --mem=8G",
		"#SBATCH --time=1:00:00",
		"#SBATCH --job-name=train",
		"#SBATCH --account=lab",
		"#SBATCH --mail-type=END",
		"#SBATCH --output=/logs/slurm_train.out",
		"#SBATCH --error=/logs/slurm_train.err",
		"#SBATCH --gres=gpu:2",
	}, "\n")
	if got := resources.Directives(); got != want {
		t.Errorf("Directives() =\n%s\nwant\n%s", got, want)
	}
}

func TestScriptEnvironmentManagers(t *testing.T) {
	resources := DefaultResources()

	mamba, err := Script("python train.py", resources, SubmitOptions{Env: "ml", Modules: []string{"cuda/12"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"#!/bin/bash", "micromamba activate ml", "module load cuda/12"} {
		if !strings.Contains(mamba, line+"\n") {
			t.Errorf("mamba script missing %q:\n%s", line, mamba)
		}
	}
	if !strings.HasSuffix(mamba, "module load cuda/12\npython train.py\n") {
		t.Errorf("command is not last after modules:\n%s", mamba)
	}

	conda, err := Script("true", resources, SubmitOptions{Env: "ml", EnvManager: EnvConda})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conda, "conda activate ml\n") || strings.Contains(conda, "micromamba") {
		t.Errorf("conda script:\n%s", conda)
	}

	bare, err := Script("true", resources, SubmitOptions{EnvManager: "pixi"})
	if err != nil {
		t.Fatalf("manager without env should be ignored: %v", err)
	}
	if strings.Contains(bare, "activate") {
		t.Errorf("script activates without env:\n%s", bare)
	}

	if _, err := Script("true", resources, SubmitOptions{Env: "ml", EnvManager: "pixi"}); !errors.Is(err, ErrUnknownEnvManager) {
		t.Errorf("got %v, want ErrUnknownEnvManager", err)
	}
}

func TestSubmitTracksJob(t *testing.T) {
	scheduler := newFakeScheduler()
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	resources := DefaultResources()
	resources.JobName = testutil.UniqueID("job")
	resources.OutputDir = filepath.Join(t.TempDir(), "logs", "nested")

	id, err := driver.Submit(ctx, "echo hi", resources, SubmitOptions{Track: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "1001" {
		t.Errorf("job id = %q, want 1001", id)
	}
	if info, err := os.Stat(resources.OutputDir); err != nil || !info.IsDir() {
		t.Errorf("output directory not created: %v", err)
	}
	if script := scheduler.scripts[id]; !strings.Contains(script, "#SBATCH --job-name="+resources.JobName+"\n") {
		t.Errorf("submitted script:\n%s", script)
	}

	jobs := driver.Jobs()
	if len(jobs) != 1 || jobs[0].ID != id || jobs[0].Status != StatusSubmitted {
		t.Fatalf("Jobs() = %+v", jobs)
	}
	if _, err := os.Stat(jobs[0].Script); err != nil {
		t.Errorf("script file: %v", err)
	}

	if _, err := driver.Submit(ctx, "echo untracked", DefaultResources(), SubmitOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(driver.Jobs()) != 1 {
		t.Errorf("untracked submission was registered: %+v", driver.Jobs())
	}
}

func TestSubmitFailure(t *testing.T) {
	scheduler := newFakeScheduler()
	scheduler.failNext = errors.New("exit status 1")
	driver := newTestDriver(t, scheduler, nil)

	_, err := driver.Submit(context.Background(), "true", DefaultResources(), SubmitOptions{Track: true})
	if !errors.Is(err, ErrSubmit) {
		t.Fatalf("got %v, want ErrSubmit", err)
	}
	if len(driver.Jobs()) != 0 {
		t.Errorf("failed submission was registered")
	}
}

func TestStatusTransitions(t *testing.T) {
	scheduler := newFakeScheduler()
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	id, err := driver.Submit(ctx, "true", DefaultResources(), SubmitOptions{Track: true})
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		code string
		want Status
	}{
		{"PD", StatusPending},
		{"R", StatusRunning},
		{"CG", StatusRunning},
		{"", StatusCompleted},
	}
	for _, step := range steps {
		scheduler.setState(id, step.code)
		status, err := driver.Status(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if status != step.want {
			t.Errorf("squeue %q: status %q, want %q", step.code, status, step.want)
		}
	}

	status, err := driver.Status(ctx, "424242")
	if err != nil || status != StatusUnknown {
		t.Errorf("untracked id: status %q, err %v", status, err)
	}
}

func TestParseState(t *testing.T) {
	tests := map[string]Status{
		"":    StatusCompleted,
		"CD":  StatusCompleted,
		"PD":  StatusPending,
		"R":   StatusRunning,
		"CA":  StatusCancelled,
		"TO":  StatusFailed,
		"OOM": StatusFailed,
		"ZZ":  StatusUnknown,
	}
	for code, want := range tests {
		if got := parseState(code); got != want {
			t.Errorf("parseState(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestCancel(t *testing.T) {
	scheduler := newFakeScheduler()
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	ok, err := driver.Cancel(ctx, "77")
	if err != nil || ok {
		t.Fatalf("untracked cancel = %v, %v", ok, err)
	}
	for _, call := range scheduler.callLog() {
		if strings.HasPrefix(call, "scancel") {
			t.Fatal("scancel ran for an untracked job")
		}
	}

	id, err := driver.Submit(ctx, "sleep 100", DefaultResources(), SubmitOptions{Track: true})
	if err != nil {
		t.Fatal(err)
	}
	ok, err = driver.Cancel(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}

	// The job is gone from squeue, but stays cancelled rather than
	// completed.
	status, err := driver.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusCancelled {
		t.Errorf("status after cancel = %q", status)
	}
}

func TestTrackAndQuery(t *testing.T) {
	scheduler := newFakeScheduler()
	scheduler.setState("555", "R")
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	status, err := driver.Query(ctx, "555")
	if err != nil || status != StatusRunning {
		t.Fatalf("Query = %q, %v", status, err)
	}
	if len(driver.Jobs()) != 0 {
		t.Error("Query registered the job")
	}

	driver.Track("555")
	ok, err := driver.Cancel(ctx, "555")
	if err != nil || !ok {
		t.Fatalf("Cancel after Track = %v, %v", ok, err)
	}
}

func TestList(t *testing.T) {
	scheduler := newFakeScheduler()
	scheduler.setState("3", "R")
	scheduler.setState("1", "PD")
	scheduler.setState("2", "R")
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	all, err := driver.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, []string{"1", "2", "3"}) {
		t.Errorf("List() = %v", all)
	}

	running, err := driver.List(ctx, "R")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(running, []string{"2", "3"}) {
		t.Errorf("List(R) = %v", running)
	}
}

func TestRefreshClearsFinished(t *testing.T) {
	scheduler := newFakeScheduler()
	driver := newTestDriver(t, scheduler, nil)
	ctx := context.Background()

	first, _ := driver.Submit(ctx, "a", DefaultResources(), SubmitOptions{Track: true})
	second, _ := driver.Submit(ctx, "b", DefaultResources(), SubmitOptions{Track: true})
	scheduler.setState(first, "")
	scheduler.setState(second, "R")

	jobs, err := driver.Refresh(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []Job{
		{ID: first, Status: StatusCompleted},
		{ID: second, Status: StatusRunning},
	}
	if got := withoutScripts(jobs); !reflect.DeepEqual(got, want) {
		t.Errorf("Refresh(false) = %+v, want %+v", got, want)
	}

	jobs, err = driver.Refresh(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := withoutScripts(jobs); !reflect.DeepEqual(got, want[1:]) {
		t.Errorf("Refresh(true) = %+v, want %+v", got, want[1:])
	}
}

func withoutScripts(jobs []Job) []Job {
	for i := range jobs {
		jobs[i].Script = ""
	}
	return jobs
}

func TestWaitPollsUntilFinished(t *testing.T) {
	scheduler := newFakeScheduler()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	driver := newTestDriver(t, scheduler, fake)
	ctx := context.Background()

	id, err := driver.Submit(ctx, "true", DefaultResources(), SubmitOptions{Track: true})
	if err != nil {
		t.Fatal(err)
	}
	scheduler.setState(id, "R")

	done := make(chan error, 1)
	go func() { done <- driver.Wait(ctx, time.Minute) }()

	// First poll: still running.
	fake.WaitForTimers(1)
	fake.Advance(time.Minute)

	// Second poll: gone from squeue.
	fake.WaitForTimers(1)
	scheduler.setState(id, "")
	fake.Advance(time.Minute)

	if err := testutil.RequireReceive(t, done, 5*time.Second, "Wait did not return"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status := driver.Jobs()[0].Status; status != StatusCompleted {
		t.Errorf("status after Wait = %q", status)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	scheduler := newFakeScheduler()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	driver := newTestDriver(t, scheduler, fake)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := driver.Submit(ctx, "true", DefaultResources(), SubmitOptions{Track: true}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- driver.Wait(ctx, 0) }()
	fake.WaitForTimers(1)
	cancel()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "Wait ignored cancellation"); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestAvailable(t *testing.T) {
	scheduler := newFakeScheduler()
	driver := newTestDriver(t, scheduler, nil)
	if !driver.Available(context.Background()) {
		t.Error("Available() = false with sbatch reporting slurm")
	}

	scheduler.failNext = errors.New("executable file not found")
	if driver.Available(context.Background()) {
		t.Error("Available() = true when sbatch fails")
	}
}

func TestResourcesFromConfig(t *testing.T) {
	cfg, err := config.FromMap(map[string]any{
		"name": "sweep",
		"slurm": map[string]any{
			"partition":     "gpu",
			"cpus-per-task": 8,
			"job_name":      "{{name}}",
			"gres":          "gpu:1",
			"account":       "lab",
		},
	}, config.Options{})
	if err != nil {
		t.Fatal(err)
	}

	resources, err := ResourcesFromConfig(cfg, "slurm")
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultResources()
	want.Partition = "gpu"
	want.CPUsPerTask = 8
	want.JobName = "sweep"
	want.GRES = "gpu:1"
	want.Extra = map[string]string{"account": "lab"}
	if !reflect.DeepEqual(resources, want) {
		t.Errorf("ResourcesFromConfig = %+v, want %+v", resources, want)
	}

	bad, err := config.FromMap(map[string]any{"slurm": map[string]any{"ntasks": "many"}}, config.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ResourcesFromConfig(bad, "slurm"); err == nil {
		t.Error("non-numeric ntasks accepted")
	}
}
