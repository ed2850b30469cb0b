package drm

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"SlurmAdapter/internal/invoke"
)

type invocation struct {
	name string
	args []string
}

// scriptedInvoker records every invocation and answers through respond,
// which receives the zero-based call index.
type scriptedInvoker struct {
	mu      sync.Mutex
	calls   []invocation
	respond func(n int, name string, args []string) (invoke.Result, error)
}

func (f *scriptedInvoker) Run(ctx context.Context, name string, args ...string) (invoke.Result, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, invocation{name: name, args: args})
	f.mu.Unlock()
	return f.respond(n, name, args)
}

func (f *scriptedInvoker) invocations() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestSlurm(opts Options, inv invoke.Invoker) *Slurm {
	return NewSlurm(opts, inv, testLogger())
}

func TestSubmitExtractsJobID(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{Stdout: "Submitted batch job 4821\n"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	dir := t.TempDir()
	task := &Task{
		ScriptPath: filepath.Join(dir, "run.sh"),
		StdoutPath: filepath.Join(dir, "out.txt"),
		StderrPath: filepath.Join(dir, "err.txt"),
	}
	jobID, err := s.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "4821" {
		t.Fatalf("jobID = %q, want 4821", jobID)
	}

	calls := inv.invocations()
	if len(calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(calls))
	}
	if calls[0].name != "sbatch" {
		t.Fatalf("command = %q, want sbatch", calls[0].name)
	}
	wantArgs := []string{"-o", task.StdoutPath, "-e", task.StderrPath, task.ScriptPath}
	if strings.Join(calls[0].args, " ") != strings.Join(wantArgs, " ") {
		t.Fatalf("args = %v, want %v", calls[0].args, wantArgs)
	}
}

func TestSubmitPassesNativeSpecification(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{Stdout: "Submitted batch job 7"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	dir := t.TempDir()
	task := &Task{
		ScriptPath:          filepath.Join(dir, "run.sh"),
		StdoutPath:          filepath.Join(dir, "out.txt"),
		StderrPath:          filepath.Join(dir, "err.txt"),
		NativeSpecification: `--partition normal --comment "two words"`,
	}
	if _, err := s.Submit(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args := inv.invocations()[0].args
	want := []string{
		"-o", task.StdoutPath, "-e", task.StderrPath,
		"--partition", "normal", "--comment", "two words",
		task.ScriptPath,
	}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestSubmitRemovesStaleOutputFiles(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{Stdout: "Submitted batch job 9"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	dir := t.TempDir()
	task := &Task{
		ScriptPath: filepath.Join(dir, "run.sh"),
		StdoutPath: filepath.Join(dir, "out.txt"),
		StderrPath: filepath.Join(dir, "err.txt"),
	}
	for _, path := range []string{task.StdoutPath, task.StderrPath} {
		if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Submit(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, path := range []string{task.StdoutPath, task.StderrPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("stale file %s still present", path)
		}
	}
}

func TestSubmitNonZeroExit(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{ExitCode: 1, Stderr: "sbatch: error: invalid partition\n"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	_, err := s.Submit(context.Background(), &Task{ScriptPath: "run.sh"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.ExitCode != 1 {
		t.Fatalf("ExitCode = %d, want 1", subErr.ExitCode)
	}
	if subErr.Stderr != "sbatch: error: invalid partition" {
		t.Fatalf("Stderr = %q", subErr.Stderr)
	}
}

func TestSubmitMissingJobIDPattern(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{Stdout: "sbatch ran but printed nothing useful"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	_, err := s.Submit(context.Background(), &Task{ScriptPath: "run.sh"})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(parseErr.Raw, "printed nothing useful") {
		t.Fatalf("ParseError.Raw = %q", parseErr.Raw)
	}
}

func TestQueueTableFailOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		respond func(n int, name string, args []string) (invoke.Result, error)
	}{
		{
			name: "tool missing",
			respond: func(n int, name string, args []string) (invoke.Result, error) {
				return invoke.Result{ExitCode: -1}, errors.New("executable file not found in $PATH")
			},
		},
		{
			name: "non-zero exit",
			respond: func(n int, name string, args []string) (invoke.Result, error) {
				return invoke.Result{ExitCode: 1, Stderr: "squeue: error"}, nil
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSlurm(Options{}, &scriptedInvoker{respond: tc.respond})
			table := s.QueueTable(context.Background())
			if len(table) != 0 {
				t.Fatalf("expected empty table, got %v", table)
			}
		})
	}
}

func TestDoneClassification(t *testing.T) {
	t.Parallel()

	s := newTestSlurm(Options{}, &scriptedInvoker{})
	table := StatusTable{
		"1": {"JOBID": "1", "ST": "R"},
		"2": {"JOBID": "2", "ST": "PD"},
		"3": {"JOBID": "3", "ST": "CD"},
	}
	tasks := []*Task{
		{JobID: "1"}, // R is in the stock terminal set
		{JobID: "2"}, // pending, still active
		{JobID: "3"}, // completed
		{JobID: "4"}, // absent from the table
	}

	done := s.Done(tasks, table)
	doneIDs := make(map[string]bool, len(done))
	for _, task := range done {
		doneIDs[task.JobID] = true
	}
	for _, id := range []string{"1", "3", "4"} {
		if !doneIDs[id] {
			t.Fatalf("job %s should be classified done; done set: %v", id, doneIDs)
		}
	}
	if doneIDs["2"] {
		t.Fatalf("pending job 2 misclassified as done")
	}
}

func TestDoneWithOverriddenTerminalStates(t *testing.T) {
	t.Parallel()

	s := newTestSlurm(Options{TerminalStates: []string{"CD", "F"}}, &scriptedInvoker{})
	table := StatusTable{
		"1": {"ST": "R"},
		"2": {"ST": "CD"},
	}
	done := s.Done([]*Task{{JobID: "1"}, {JobID: "2"}}, table)
	if len(done) != 1 || done[0].JobID != "2" {
		t.Fatalf("done = %v, want only job 2", done)
	}
}

func TestStatuses(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{Stdout: "JOBID ST\n1 R\n2 PD\n"}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	statuses := s.Statuses(context.Background(), []*Task{{JobID: "1"}, {JobID: "2"}, {JobID: "99"}})
	want := map[string]string{"1": "R", "2": "PD", "99": "???"}
	for id, status := range want {
		if statuses[id] != status {
			t.Fatalf("statuses[%s] = %q, want %q", id, statuses[id], status)
		}
	}
}

func TestStatusesNoTasks(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		t.Fatal("squeue should not run for an empty task list")
		return invoke.Result{}, nil
	}}
	s := newTestSlurm(Options{}, inv)
	if statuses := s.Statuses(context.Background(), nil); len(statuses) != 0 {
		t.Fatalf("statuses = %v, want empty", statuses)
	}
}

func TestCancelChunking(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	tasks := make([]*Task, 120)
	for i := range tasks {
		tasks[i] = &Task{JobID: strconv.Itoa(1000 + i)}
	}
	s.Cancel(context.Background(), tasks)

	calls := inv.invocations()
	if len(calls) != 3 {
		t.Fatalf("expected 3 scancel invocations, got %d", len(calls))
	}
	wantSizes := []int{50, 50, 20}
	for i, call := range calls {
		if call.name != "scancel" {
			t.Fatalf("command = %q, want scancel", call.name)
		}
		if call.args[0] != "-Q" {
			t.Fatalf("first arg = %q, want -Q", call.args[0])
		}
		ids := strings.Fields(call.args[1])
		if len(ids) != wantSizes[i] {
			t.Fatalf("chunk %d has %d ids, want %d", i, len(ids), wantSizes[i])
		}
	}
}

func TestCancelSkipsEmptyJobIDs(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		return invoke.Result{}, nil
	}}
	s := newTestSlurm(Options{}, inv)

	s.Cancel(context.Background(), []*Task{{JobID: "1"}, nil, {JobID: ""}})
	calls := inv.invocations()
	if len(calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(calls))
	}
	if calls[0].args[1] != "1" {
		t.Fatalf("ids = %q, want %q", calls[0].args[1], "1")
	}
}

func TestCollectFinished(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		switch name {
		case "squeue":
			return invoke.Result{Stdout: "JOBID ST\n2 R\n"}, nil
		case "scontrol":
			return invoke.Result{Stdout: "JobId=1 JobState=COMPLETED"}, nil
		}
		t.Fatalf("unexpected command %q", name)
		return invoke.Result{}, nil
	}}
	s := newTestSlurm(Options{TerminalStates: []string{"CD"}}, inv)

	completions, err := s.CollectFinished(context.Background(),
		[]*Task{{JobID: "1"}, {JobID: "2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(completions))
	}
	if completions[0].Task.JobID != "1" {
		t.Fatalf("completed task = %s, want 1", completions[0].Task.JobID)
	}
	if state, _ := completions[0].Record.Get("JobState"); state != "COMPLETED" {
		t.Fatalf("JobState = %q", state)
	}
}

func TestCollectFinishedNoTasks(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(n int, name string, args []string) (invoke.Result, error) {
		t.Fatal("nothing should run for an empty task list")
		return invoke.Result{}, nil
	}}
	s := newTestSlurm(Options{}, inv)
	completions, err := s.CollectFinished(context.Background(), nil)
	if err != nil || completions != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", completions, err)
	}
}
