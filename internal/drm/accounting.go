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

package drm

import (
	"context"
	"strings"
	"time"

	"SlurmAdapter/internal/util"
)

// Accounting retrieves the detailed per-job record for a finished task.
//
// Slurm's accounting is eventually consistent and can be briefly
// unavailable right after a job ends, so the query is retried on a
// fixed quantum until the policy's budget runs out. Two outcomes end
// the loop early: non-empty stdout (parsed and returned), and the exact
// "invalid job id" stderr, which means the scheduler's history already
// evicted the job; the latter yields a minimal record holding only the
// job id and is not an error. A backend that stays broken past the
// budget surfaces as RetryExhaustedError.
//
// Accounting can block for up to the full retry timeout. Run it off the
// goroutine that drives bulk polling (see the collector package); the
// wait observes ctx at each quantum boundary.
func (s *Slurm) Accounting(ctx context.Context, task *Task) (*AccountingRecord, error) {
	attempts := s.opts.Retry.Attempts()
	start := time.Now()

	for i := 0; i < attempts; i++ {
		result, err := s.invoker.Run(ctx, s.opts.ScontrolCommand,
			"show", "jobid", "-d", "-o", task.JobID)

		stdout := strings.TrimSpace(result.Stdout)
		if err == nil && result.ExitCode == 0 && stdout != "" {
			record, parseErr := ParseAccounting(stdout)
			if parseErr != nil {
				return nil, parseErr
			}
			s.warnOnJobState(task, record)
			return record, nil
		}

		stderr := strings.TrimSpace(result.Stderr)
		if stderr == invalidJobIDStderr {
			// Too many jobs were scheduled since this one finished and
			// the scheduler forgot the id. Expected, not an error.
			record := NewAccountingRecord()
			record.Set("JobId", task.JobID)
			return record, nil
		}

		s.log.Errorf("scontrol show jobid -d -o %s attempt %d/%d failed %.0f sec after first attempt (exit %d, err %v)",
			task.JobID, i+1, attempts, time.Since(start).Seconds(), result.ExitCode, err)
		if stdout != "" {
			s.log.Errorf("scontrol show jobid -d -o %s stdout: %q", task.JobID, stdout)
		}
		if stderr != "" {
			s.log.Errorf("scontrol show jobid -d -o %s stderr: %q", task.JobID, stderr)
		}

		if i+1 < attempts {
			if err := util.SleepThroughInterrupts(ctx, s.opts.Retry.Quantum); err != nil {
				return nil, err
			}
		}
	}

	return nil, &RetryExhaustedError{
		JobID:    task.JobID,
		Attempts: attempts,
		Elapsed:  time.Since(start),
	}
}

// warnOnJobState flags jobs that finished in a non-success state. A
// missing JobState field counts as success (the minimal "forgotten job"
// record has none). The retrieval itself still succeeds either way;
// callers need the accounting data regardless of how the job ended.
func (s *Slurm) warnOnJobState(task *Task, record *AccountingRecord) {
	state, ok := record.Get(jobStateField)
	if !ok {
		state = jobStateCompleted
	}
	if state != jobStateCompleted {
		s.log.Warnf("scontrol show jobid -d -o %s reports JobState %s:\n%s",
			task.JobID, state, record.IndentedJSON())
	}
}
