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

package util

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type DrmCmdError = int

// general
const (
	ErrorSuccess       DrmCmdError = 0
	ErrorExecuteFailed DrmCmdError = 1
	ErrorCmdArg        DrmCmdError = 2
	ErrorScheduler     DrmCmdError = 3
	ErrorGeneric       DrmCmdError = 4
)

type DrmError struct {
	Code    DrmCmdError
	Message string
}

func (e *DrmError) Error() string {
	return e.Message
}

// RunAndHandleExit executes the root command and converts any returned
// DrmError into the corresponding process exit code.
func RunAndHandleExit(cmd *cobra.Command) {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	if err == nil {
		os.Exit(ErrorSuccess)
	}

	var drmErr *DrmError
	if errors.As(err, &drmErr) {
		if drmErr.Message != "" {
			log.Error(drmErr.Message)
		}
		os.Exit(drmErr.Code)
	}

	log.Error(err)
	os.Exit(ErrorGeneric)
}
