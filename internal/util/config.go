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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var DefaultConfigPath = "/etc/slurmadapter/config.yaml"

type Config struct {
	Slurm SlurmConfig `mapstructure:"Slurm" yaml:"Slurm"`
	Log   LogConfig   `mapstructure:"Log" yaml:"Log"`
}

type SlurmConfig struct {
	SbatchCommand   string `mapstructure:"SbatchCommand" yaml:"SbatchCommand"`
	SqueueCommand   string `mapstructure:"SqueueCommand" yaml:"SqueueCommand"`
	ScontrolCommand string `mapstructure:"ScontrolCommand" yaml:"ScontrolCommand"`
	ScancelCommand  string `mapstructure:"ScancelCommand" yaml:"ScancelCommand"`

	// TerminalStates lists the squeue ST codes treated as "finished".
	// The stock set matches the behavior this adapter was ported from and
	// includes R, which conventionally means "running" in Slurm. That entry
	// is suspected to be unintended upstream; it is kept for compatibility
	// and can be overridden here.
	TerminalStates []string `mapstructure:"TerminalStates" yaml:"TerminalStates"`

	// Accounting retry policy: total budget and pause between attempts,
	// both in seconds. Attempt count is the integer quotient, minimum 1.
	AccountingTimeoutSec int `mapstructure:"AccountingTimeoutSec" yaml:"AccountingTimeoutSec"`
	AccountingQuantumSec int `mapstructure:"AccountingQuantumSec" yaml:"AccountingQuantumSec"`

	PollIntervalSec int `mapstructure:"PollIntervalSec" yaml:"PollIntervalSec"`
	CancelChunkSize int `mapstructure:"CancelChunkSize" yaml:"CancelChunkSize"`
}

type LogConfig struct {
	Level      string `mapstructure:"Level" yaml:"Level"`
	Path       string `mapstructure:"Path" yaml:"Path"`
	MaxSizeMb  int    `mapstructure:"MaxSizeMb" yaml:"MaxSizeMb"`
	MaxBackups int    `mapstructure:"MaxBackups" yaml:"MaxBackups"`
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("Slurm.SbatchCommand", "sbatch")
	v.SetDefault("Slurm.SqueueCommand", "squeue")
	v.SetDefault("Slurm.ScontrolCommand", "scontrol")
	v.SetDefault("Slurm.ScancelCommand", "scancel")
	v.SetDefault("Slurm.TerminalStates", []string{"F", "BF", "CA", "CD", "NF", "PR", "R", "TO"})
	v.SetDefault("Slurm.AccountingTimeoutSec", 600)
	v.SetDefault("Slurm.AccountingQuantumSec", 15)
	v.SetDefault("Slurm.PollIntervalSec", 5)
	v.SetDefault("Slurm.CancelChunkSize", 50)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.MaxSizeMb", 100)
	v.SetDefault("Log.MaxBackups", 3)
}

// ParseConfig loads path, falling back to built-in defaults when the file
// does not exist. A file that exists but cannot be parsed is fatal.
func ParseConfig(path string) *Config {
	v := viper.New()
	setConfigDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			log.Fatalf("Failed to read config file %s: %s", path, err)
		}
		log.Debugf("Config file %s not found, using defaults", path)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		log.Fatalf("Failed to parse config file %s: %s", path, err)
	}
	return config
}
