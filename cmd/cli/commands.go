package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/libs/obs"
	"github.com/dsjohal14/sqlpoll/internal/scope/db/cursor"
	"github.com/dsjohal14/sqlpoll/internal/scope/query"
	"github.com/dsjohal14/sqlpoll/internal/sink"
	"github.com/dsjohal14/sqlpoll/internal/streamlite"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and list sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tMODE\tCURSOR\tINTERVAL\tQUERY")
			for _, src := range cfg.Sources {
				spec, err := query.NewBuilder(query.FromConfig(src)).Build(src.StartFrom)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", src.ID, mode(src), src.CursorMode, src.Interval(), spec.SQL)
			}
			return tw.Flush()
		},
	}
}

func mode(src config.Source) string {
	if src.IsCustomQuery() {
		return "custom:" + src.Substitution
	}
	return "table"
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <source>",
		Short: "Print the query the next cycle of a source would run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := opts.loadSource(args[0])
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			store, err := cursor.Open(ctx, cfg.CursorStore.URL, cfg.CursorStore.User, cfg.CursorStore.Password, cfg.CursorStore.Table)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			value, err := store.Read(ctx, src.ID)
			if errors.Is(err, cursor.ErrNotFound) {
				value = src.StartFrom
			} else if err != nil {
				return err
			}

			spec, err := query.NewBuilder(query.FromConfig(src)).Build(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), spec.SQL)
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var configuredSink bool

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run one poll cycle and print the rows",
		Long:  "Run one poll cycle. Rows go to stdout unless --configured-sink is set. The cursor is persisted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := opts.loadSource(args[0])
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			store, err := cursor.Open(ctx, cfg.CursorStore.URL, cfg.CursorStore.User, cfg.CursorStore.Password, cfg.CursorStore.Table)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var out sink.EmitCloser = sink.NewWriter(cmd.OutOrStdout())
			if configuredSink {
				if out, err = sink.New(cfg.Sink, obs.Logger("sink")); err != nil {
					return err
				}
			}
			defer func() { _ = out.Close() }()

			c, err := streamlite.NewIncremental(src, store, out)
			if err != nil {
				return err
			}
			if err := c.Open(ctx); err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			report, err := c.RunCycle(ctx)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s rows=%d cursor=%d->%d query=%q\n",
				report.SourceID, report.Outcome, report.Rows, report.Cursor, report.NextCursor, report.Query)
			return err
		},
	}
	cmd.Flags().BoolVar(&configuredSink, "configured-sink", false, "emit to the sink from the configuration instead of stdout")
	return cmd
}
