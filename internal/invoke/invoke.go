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

// Package invoke runs external scheduler commands in their own process
// groups and hands back the captured output. It keeps no state of its own.
package invoke

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Result is the captured outcome of one external command. ExitCode is -1
// when the process never ran.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Invoker abstracts process execution so the adapter can be driven by a
// scripted fake in tests.
type Invoker interface {
	// Run blocks until the command exits. A non-nil error means the
	// command could not be executed at all or was cancelled; a command
	// that ran and exited non-zero is reported via Result.ExitCode with
	// a nil error.
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ProcessInvoker executes commands on the local host. Every child is
// placed in a fresh process group so that signals aimed at the calling
// orchestrator do not reach in-flight scheduler commands.
type ProcessInvoker struct{}

func NewProcessInvoker() *ProcessInvoker {
	return &ProcessInvoker{}
}

func (p *ProcessInvoker) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.Command(name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, err
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Kill the whole process group, then reap the child before
		// returning so its output pipes are fully consumed.
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		<-waitCh
		return Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: -1,
		}, ctx.Err()
	case err := <-waitCh:
		result := Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: cmd.ProcessState.ExitCode(),
		}
		if err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				// Ran but exited non-zero; not an execution failure.
				return result, nil
			}
			return result, err
		}
		return result, nil
	}
}
