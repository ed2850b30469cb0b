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

package cdrm

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/nxadm/tail"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"SlurmAdapter/internal/collector"
	"SlurmAdapter/internal/drm"
	"SlurmAdapter/internal/invoke"
	"SlurmAdapter/internal/util"
)

func newAdapter(config *util.Config) *drm.Slurm {
	logger := log.WithField("component", "slurm")
	return drm.NewSlurm(drm.OptionsFromConfig(&config.Slurm), invoke.NewProcessInvoker(), logger)
}

// signalContext is cancelled on SIGINT/SIGTERM so in-flight retries can
// stop at the next quantum boundary instead of being killed mid-query.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func tasksFromJobIDs(ids []string) []*drm.Task {
	tasks := make([]*drm.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, &drm.Task{JobID: id})
	}
	return tasks
}

func submitExecute(cmd *cobra.Command, args []string) error {
	config := util.ParseConfig(FlagConfigFilePath)
	adapter := newAdapter(config)

	ctx, stop := signalContext()
	defer stop()

	task := &drm.Task{
		ScriptPath:          args[0],
		StdoutPath:          FlagStdoutPath,
		StderrPath:          FlagStderrPath,
		NativeSpecification: FlagNativeSpec,
	}
	jobID, err := adapter.Submit(ctx, task)
	if err != nil {
		return &util.DrmError{Code: util.ErrorScheduler, Message: err.Error()}
	}
	fmt.Println(jobID)
	return nil
}

func queueExecute(cmd *cobra.Command, args []string) error {
	config := util.ParseConfig(FlagConfigFilePath)
	adapter := newAdapter(config)

	ctx, stop := signalContext()
	defer stop()

	statuses := make(map[string]string)
	if len(args) > 0 {
		statuses = adapter.Statuses(ctx, tasksFromJobIDs(args))
	} else {
		for jobID, row := range adapter.QueueTable(ctx) {
			statuses[jobID] = row[drm.StatusField]
		}
	}

	jobIDs := make([]string, 0, len(statuses))
	for jobID := range statuses {
		jobIDs = append(jobIDs, jobID)
	}
	sort.Strings(jobIDs)

	table := tablewriter.NewWriter(os.Stdout)
	util.SetBorderlessTable(table)
	table.SetHeader([]string{"JobId", "Status"})
	for _, jobID := range jobIDs {
		table.Append([]string{jobID, statuses[jobID]})
	}
	table.Render()
	return nil
}

func waitExecute(cmd *cobra.Command, args []string) error {
	config := util.ParseConfig(FlagConfigFilePath)
	if FlagLogFile == "" {
		FlagLogFile = config.Log.Path
	}
	if FlagLogFile != "" {
		util.InitFileLogger(FlagLogFile, config.Log.MaxSizeMb, config.Log.MaxBackups)
	}
	adapter := newAdapter(config)

	ctx, stop := signalContext()
	defer stop()

	interval := time.Duration(config.Slurm.PollIntervalSec) * time.Second
	coll := collector.New(adapter, interval, FlagWorkers, log.WithField("component", "collector"))

	failed := 0
	for result := range coll.Run(ctx, tasksFromJobIDs(args)) {
		if result.Err != nil {
			failed++
			continue
		}
		if FlagField != "" {
			value := gjson.Get(result.Record.JSON(), FlagField)
			fmt.Printf("%s\t%s\n", result.Task.JobID, value.String())
		} else {
			fmt.Println(result.Record.JSON())
		}
	}

	if err := ctx.Err(); err != nil {
		return &util.DrmError{Code: util.ErrorExecuteFailed, Message: "interrupted"}
	}
	if failed > 0 {
		return &util.DrmError{
			Code:    util.ErrorScheduler,
			Message: fmt.Sprintf("accounting retrieval failed for %d job(s)", failed),
		}
	}
	return nil
}

func cancelExecute(cmd *cobra.Command, args []string) error {
	config := util.ParseConfig(FlagConfigFilePath)
	adapter := newAdapter(config)

	ctx, stop := signalContext()
	defer stop()

	adapter.Cancel(ctx, tasksFromJobIDs(args))
	fmt.Printf("Cancellation requested for %d job(s).\n", len(args))
	return nil
}

func logsExecute(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	follow := !FlagNoFollow
	t, err := tail.TailFile(args[0], tail.Config{
		Follow: follow,
		ReOpen: follow,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return &util.DrmError{Code: util.ErrorExecuteFailed, Message: err.Error()}
	}

	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()

	for line := range t.Lines {
		if line.Err != nil {
			return &util.DrmError{Code: util.ErrorExecuteFailed, Message: line.Err.Error()}
		}
		fmt.Println(line.Text)
	}
	return nil
}

func configExecute(cmd *cobra.Command, args []string) error {
	config := util.ParseConfig(FlagConfigFilePath)
	out, err := yaml.Marshal(config)
	if err != nil {
		return &util.DrmError{Code: util.ErrorGeneric, Message: err.Error()}
	}
	fmt.Print(string(out))
	return nil
}
