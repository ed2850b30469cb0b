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
	"SlurmAdapter/internal/util"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	FlagConfigFilePath string
	FlagDebugLevel     string

	// submit
	FlagStdoutPath string
	FlagStderrPath string
	FlagNativeSpec string

	// wait
	FlagField   string
	FlagLogFile string
	FlagWorkers int

	// logs
	FlagNoFollow bool

	RootCmd = &cobra.Command{
		Use:     "cdrm",
		Short:   "Submit, watch and cancel Slurm jobs on behalf of a workflow engine",
		Version: util.Version(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := util.ParseLogLevel(FlagDebugLevel)
			if err != nil {
				log.Errorf("Invalid log level %q. Valid levels are: trace, debug, info, warn, error.", FlagDebugLevel)
				level = log.InfoLevel
			}
			util.InitLogger(level)
		},
	}

	SubmitCmd = &cobra.Command{
		Use:   "submit [flags] SCRIPT",
		Short: "Submit a command script through sbatch and print the job id",
		Args:  cobra.ExactArgs(1),
		RunE:  submitExecute,
	}

	QueueCmd = &cobra.Command{
		Use:   "queue [job_id...]",
		Short: "Show the scheduler's current view of jobs",
		RunE:  queueExecute,
	}

	WaitCmd = &cobra.Command{
		Use:   "wait JOB_ID...",
		Short: "Wait for jobs to finish and print their accounting records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  waitExecute,
	}

	CancelCmd = &cobra.Command{
		Use:   "cancel JOB_ID...",
		Short: "Best-effort cancellation of pending or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cancelExecute,
	}

	LogsCmd = &cobra.Command{
		Use:   "logs FILE",
		Short: "Follow a job's stdout or stderr file",
		Args:  cobra.ExactArgs(1),
		RunE:  logsExecute,
	}

	ConfigCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.ExactArgs(0),
		RunE:  configExecute,
	}
)

func ParseCmdArgs() {
	util.RunAndHandleExit(RootCmd)
}

func init() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C",
		util.DefaultConfigPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVarP(&FlagDebugLevel, "debug-level", "D",
		"info", "Available debug level: trace, debug, info, warn, error")

	SubmitCmd.Flags().StringVarP(&FlagStdoutPath, "stdout", "o", "",
		"File to redirect the job's standard output to")
	SubmitCmd.Flags().StringVarP(&FlagStderrPath, "stderr", "e", "",
		"File to redirect the job's standard error to")
	SubmitCmd.Flags().StringVarP(&FlagNativeSpec, "native-spec", "n", "",
		"Extra sbatch flags passed through to the scheduler verbatim")
	if err := SubmitCmd.MarkFlagRequired("stdout"); err != nil {
		log.Fatal(err)
	}
	if err := SubmitCmd.MarkFlagRequired("stderr"); err != nil {
		log.Fatal(err)
	}

	WaitCmd.Flags().StringVarP(&FlagField, "field", "f", "",
		"Print only this accounting field of each finished job")
	WaitCmd.Flags().StringVar(&FlagLogFile, "log-file", "",
		"Also write logs to this file (rotated)")
	WaitCmd.Flags().IntVarP(&FlagWorkers, "workers", "w", 0,
		"Number of concurrent accounting retrievals (default 4)")

	LogsCmd.Flags().BoolVar(&FlagNoFollow, "no-follow", false,
		"Print the file once instead of following it")

	RootCmd.AddCommand(SubmitCmd, QueueCmd, WaitCmd, CancelCmd, LogsCmd, ConfigCmd)
}
