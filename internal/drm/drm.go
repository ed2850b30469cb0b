/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package drm submits work to Slurm and tracks it to completion over
// Slurm's command-line interface. The control plane is text-based and
// unreliable: commands fail transiently, return empty output, or deny
// knowledge of jobs that finished a while ago, and every query here is
// written to tolerate that.
package drm

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"SlurmAdapter/internal/invoke"
	"SlurmAdapter/internal/natspec"
	"SlurmAdapter/internal/util"
)

// StatusTable is one poll cycle's snapshot of every job the scheduler
// currently knows, keyed by job id. Rows map squeue header names to the
// column values of that job's line.
type StatusTable map[string]map[string]string

// Task is the adapter's view of one schedulable unit. The workflow
// engine owns the task; the adapter only borrows this reference for the
// duration of a call and never mutates it.
type Task struct {
	// JobID is the scheduler-assigned identifier, opaque to this
	// adapter. Empty until Submit succeeds.
	JobID string

	ScriptPath string
	StdoutPath string
	StderrPath string

	// NativeSpecification holds backend-specific sbatch flags, passed
	// through verbatim and unvalidated.
	NativeSpecification string
}

// Completion pairs a finished task with its accounting detail.
type Completion struct {
	Task   *Task
	Record *AccountingRecord
}

// RetryPolicy bounds the accounting query loop: Timeout is the total
// budget, Quantum the pause between attempts.
type RetryPolicy struct {
	Timeout time.Duration
	Quantum time.Duration
}

// Attempts derives the attempt count as Timeout/Quantum rounded down,
// never less than one.
func (p RetryPolicy) Attempts() int {
	if p.Quantum <= 0 {
		return 1
	}
	n := int(p.Timeout / p.Quantum)
	if n < 1 {
		return 1
	}
	return n
}

// DefaultTerminalStates are the squeue ST codes treated as finished.
// The set is reproduced from the behavior this adapter was ported from;
// note that it contains R, which Slurm uses for running jobs. That
// entry looks unintended but is kept until confirmed otherwise, and the
// whole set can be overridden through Options.
var DefaultTerminalStates = []string{"F", "BF", "CA", "CD", "NF", "PR", "R", "TO"}

// DefaultRetryPolicy matches Slurm accounting's typical lag after a job
// finishes.
var DefaultRetryPolicy = RetryPolicy{Timeout: 600 * time.Second, Quantum: 15 * time.Second}

const (
	// DefaultCancelChunkSize keeps scancel invocations under
	// command-line length limits.
	DefaultCancelChunkSize = 50

	// StatusField is the squeue column consulted by the completion
	// filter and by Statuses.
	StatusField = "ST"

	// jobStateField is the accounting field carrying the final state,
	// and jobStateCompleted its success value.
	jobStateField     = "JobState"
	jobStateCompleted = "COMPLETED"

	// invalidJobIDStderr is the literal scontrol emits once a job has
	// been evicted from scheduler history. Matching it exactly turns
	// "job forgotten" into an expected, non-error outcome.
	invalidJobIDStderr = "slurm_load_jobs error: Invalid job id specified"

	unknownStatus = "???"
)

var jobIDPattern = regexp.MustCompile(`job (\d+)`)

// Options configures a Slurm adapter. Zero values fall back to the
// defaults above and to the standard Slurm command names.
type Options struct {
	SbatchCommand   string
	SqueueCommand   string
	ScontrolCommand string
	ScancelCommand  string

	TerminalStates  []string
	Retry           RetryPolicy
	CancelChunkSize int
}

// OptionsFromConfig maps the YAML-level config onto adapter options.
func OptionsFromConfig(cfg *util.SlurmConfig) Options {
	return Options{
		SbatchCommand:   cfg.SbatchCommand,
		SqueueCommand:   cfg.SqueueCommand,
		ScontrolCommand: cfg.ScontrolCommand,
		ScancelCommand:  cfg.ScancelCommand,
		TerminalStates:  cfg.TerminalStates,
		Retry: RetryPolicy{
			Timeout: time.Duration(cfg.AccountingTimeoutSec) * time.Second,
			Quantum: time.Duration(cfg.AccountingQuantumSec) * time.Second,
		},
		CancelChunkSize: cfg.CancelChunkSize,
	}
}

// Slurm is the adapter. All methods are synchronous; the caller owns
// polling cadence and cross-task concurrency. Methods may be called
// from multiple goroutines, nothing mutable is shared.
type Slurm struct {
	opts     Options
	terminal map[string]struct{}
	invoker  invoke.Invoker
	log      *logrus.Entry
}

func NewSlurm(opts Options, invoker invoke.Invoker, logger *logrus.Entry) *Slurm {
	if opts.SbatchCommand == "" {
		opts.SbatchCommand = "sbatch"
	}
	if opts.SqueueCommand == "" {
		opts.SqueueCommand = "squeue"
	}
	if opts.ScontrolCommand == "" {
		opts.ScontrolCommand = "scontrol"
	}
	if opts.ScancelCommand == "" {
		opts.ScancelCommand = "scancel"
	}
	if opts.TerminalStates == nil {
		opts.TerminalStates = DefaultTerminalStates
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.CancelChunkSize <= 0 {
		opts.CancelChunkSize = DefaultCancelChunkSize
	}

	terminal := make(map[string]struct{}, len(opts.TerminalStates))
	for _, st := range opts.TerminalStates {
		terminal[st] = struct{}{}
	}

	return &Slurm{
		opts:     opts,
		terminal: terminal,
		invoker:  invoker,
		log:      logger,
	}
}

// Submit hands task's command script to sbatch and returns the assigned
// job id. Stale stdout/stderr files from a previous run are deleted
// first so their content cannot be mistaken for this run's output.
func (s *Slurm) Submit(ctx context.Context, task *Task) (string, error) {
	for _, path := range []string{task.StdoutPath, task.StderrPath} {
		if err := util.RemoveFileIfExists(path); err != nil {
			return "", err
		}
	}

	args := []string{"-o", task.StdoutPath, "-e", task.StderrPath}
	if task.NativeSpecification != "" {
		words, err := natspec.Split(task.NativeSpecification)
		if err != nil {
			return "", err
		}
		args = append(args, words...)
	}
	args = append(args, task.ScriptPath)

	result, err := s.invoker.Run(ctx, s.opts.SbatchCommand, args...)
	if err != nil {
		return "", &SubmissionError{ExitCode: result.ExitCode, Stderr: err.Error()}
	}
	if result.ExitCode != 0 {
		return "", &SubmissionError{ExitCode: result.ExitCode, Stderr: strings.TrimSpace(result.Stderr)}
	}

	match := jobIDPattern.FindStringSubmatch(result.Stdout)
	if match == nil {
		return "", &ParseError{Raw: result.Stdout}
	}
	return match[1], nil
}

// QueueTable runs squeue once and returns the snapshot of all known
// jobs.
//
// Fail-open: when squeue cannot be run or exits non-zero the empty
// table is returned instead of an error. Callers cannot distinguish "a
// job is absent because it finished" from "absent because the query
// failed", so a broken squeue makes in-flight jobs look done. This
// trades strict correctness for forward progress and is relied on by
// the completion filter; operators should watch for it.
func (s *Slurm) QueueTable(ctx context.Context) StatusTable {
	result, err := s.invoker.Run(ctx, s.opts.SqueueCommand)
	if err != nil || result.ExitCode != 0 {
		s.log.Debugf("squeue did not run (exit %d, err %v), treating queue as empty",
			result.ExitCode, err)
		return StatusTable{}
	}
	return ParseStatusTable(result.Stdout)
}

// Done returns the tasks classified as finished against the given
// snapshot: the job is gone from the table, or its status code is in
// the terminal set.
func (s *Slurm) Done(tasks []*Task, table StatusTable) []*Task {
	var done []*Task
	for _, task := range tasks {
		row, present := table[task.JobID]
		if !present {
			done = append(done, task)
			continue
		}
		if _, terminal := s.terminal[row[StatusField]]; terminal {
			done = append(done, task)
		}
	}
	return done
}

// CollectFinished takes one squeue snapshot, filters the finished tasks
// and immediately retrieves accounting for each of them. Pairs are
// produced in no particular order and nothing is buffered across calls.
// On a retrieval error the pairs collected so far are returned with it.
func (s *Slurm) CollectFinished(ctx context.Context, tasks []*Task) ([]Completion, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	table := s.QueueTable(ctx)

	var completions []Completion
	for _, task := range s.Done(tasks, table) {
		record, err := s.Accounting(ctx, task)
		if err != nil {
			return completions, err
		}
		completions = append(completions, Completion{Task: task, Record: record})
	}
	return completions, nil
}

// Statuses maps each task's job id to its current squeue status code,
// "???" for jobs the scheduler no longer reports.
func (s *Slurm) Statuses(ctx context.Context, tasks []*Task) map[string]string {
	statuses := make(map[string]string, len(tasks))
	if len(tasks) == 0 {
		return statuses
	}
	table := s.QueueTable(ctx)
	for _, task := range tasks {
		status := unknownStatus
		if row, ok := table[task.JobID]; ok {
			if st, ok := row[StatusField]; ok {
				status = st
			}
		}
		statuses[task.JobID] = status
	}
	return statuses
}

// Cancel asks the scheduler to terminate all given tasks, batching the
// ids to respect command-line length limits. Best-effort by contract:
// no retry, no verification, failures are only logged.
func (s *Slurm) Cancel(ctx context.Context, tasks []*Task) {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task != nil && task.JobID != "" {
			ids = append(ids, task.JobID)
		}
	}
	for _, chunk := range util.Chunk(ids, s.opts.CancelChunkSize) {
		result, err := s.invoker.Run(ctx, s.opts.ScancelCommand, "-Q", strings.Join(chunk, " "))
		if err != nil || result.ExitCode != 0 {
			s.log.Debugf("scancel of %d job(s) did not succeed (exit %d, err %v)",
				len(chunk), result.ExitCode, err)
		}
	}
}

// Kill cancels a single task through the same best-effort path.
func (s *Slurm) Kill(ctx context.Context, task *Task) {
	s.Cancel(ctx, []*Task{task})
}
