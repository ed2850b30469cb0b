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
	"fmt"
	"time"
)

// SubmissionError reports a submit command that exited non-zero.
type SubmissionError struct {
	ExitCode int
	Stderr   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("sbatch exited with code %d: %s", e.ExitCode, e.Stderr)
}

// ParseError reports scheduler output that does not have the expected
// shape: submit stdout without a job id, or accounting output whose
// first token carries no key. Raw always holds the full offending text;
// Token is set only for the accounting case.
type ParseError struct {
	Token string
	Raw   string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("could not find \"=\" in token %q of output:\n%s", e.Token, e.Raw)
	}
	return fmt.Sprintf("no job id found in output:\n%s", e.Raw)
}

// RetryExhaustedError reports an accounting query that produced no valid
// output within its attempt budget.
type RetryExhaustedError struct {
	JobID    string
	Attempts int
	Elapsed  time.Duration
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("no valid accounting output for job %s after %d tries and %.0f sec",
		e.JobID, e.Attempts, e.Elapsed.Seconds())
}
