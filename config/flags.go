package config

import (
	"github.com/spf13/pflag"
)

type flagValues struct {
	fs             *pflag.FlagSet
	configFile     string
	workers        int
	logLevel       string
	keepWorkspaces bool
}

func parseFlags(args []string) (*flagValues, error) {
	fl := &flagValues{fs: pflag.NewFlagSet("converter", pflag.ContinueOnError)}

	fl.fs.StringVarP(&fl.configFile, "config", "c", "", "path to YAML config file")
	fl.fs.IntVarP(&fl.workers, "workers", "w", 0, "number of conversion workers")
	fl.fs.StringVar(&fl.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.fs.BoolVar(&fl.keepWorkspaces, "keep-workspaces", false, "do not delete workspaces after a run")

	if err := fl.fs.Parse(args); err != nil {
		return nil, err
	}
	return fl, nil
}

// apply overrides only the values that were set explicitly.
func (fl *flagValues) apply(cfg *Config) {
	if fl.fs.Changed("workers") && fl.workers > 0 {
		cfg.WorkerCount = fl.workers
	}
	if fl.fs.Changed("log-level") {
		cfg.LogLevel = fl.logLevel
	}
	if fl.fs.Changed("keep-workspaces") {
		cfg.KeepWorkspaces = fl.keepWorkspaces
	}
}
