package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsjohal14/sqlpoll/internal/scope/spool"
)

func newSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: "Inspect a spool directory",
	}

	var linesOnly bool
	dump := &cobra.Command{
		Use:   "dump <dir>",
		Short: "Print every spooled batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			return spool.Walk(args[0], func(e spool.Entry) error {
				if !linesOnly {
					fmt.Fprintf(w, "# seq=%d source=%s cycle=%s cursor=%d at=%s lines=%d\n",
						e.Seq, e.Batch.SourceID, e.Batch.CycleID, e.Batch.Cursor,
						e.Batch.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"), len(e.Batch.Lines))
				}
				for _, line := range e.Batch.Lines {
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	}
	dump.Flags().BoolVar(&linesOnly, "lines", false, "print only the lines")

	cmd.AddCommand(dump, newSpoolPruneCmd())
	return cmd
}

func newSpoolPruneCmd() *cobra.Command {
	var r spool.Retention

	cmd := &cobra.Command{
		Use:   "prune <dir>",
		Short: "Delete sealed spool segments outside the retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := spool.Prune(args[0], r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d segments\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&r.MaxSegments, "keep", 0, "sealed segments to keep (0 = unlimited)")
	cmd.Flags().DurationVar(&r.MaxAge, "max-age", 0, "delete sealed segments older than this (0 = unlimited)")
	return cmd
}
