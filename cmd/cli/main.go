// Package main implements the sqlpoll CLI for validating configuration, previewing queries,
// running single cycles and administering cursors.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/libs/obs"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sqlpoll",
		Short:         "sqlpoll CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			obs.InitLogger(opts.logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.ConfigPath("config/sqlpoll.yaml"), "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newValidateCmd(opts),
		newQueryCmd(opts),
		newRunCmd(opts),
		newCursorCmd(opts),
		newSpoolCmd(),
	)
	return root
}

// loadSource loads the configuration and returns the named source
func (o *rootOptions) loadSource(id string) (*config.Config, config.Source, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, config.Source{}, err
	}
	src, ok := cfg.Source(id)
	if !ok {
		return nil, config.Source{}, fmt.Errorf("unknown source %q", id)
	}
	return cfg, src, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
