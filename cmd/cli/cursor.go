package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/scope/db/cursor"
)

func newCursorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or change persisted cursors",
	}

	withStore := func(fn func(cmd *cobra.Command, store cursor.Store, src config.Source, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, src, err := opts.loadSource(args[0])
			if err != nil {
				return err
			}
			store, err := cursor.Open(commandContext(cmd), cfg.CursorStore.URL, cfg.CursorStore.User, cfg.CursorStore.Password, cfg.CursorStore.Table)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return fn(cmd, store, src, args[1:])
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <source>",
			Short: "Print the persisted cursor",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store cursor.Store, src config.Source, _ []string) error {
				value, err := store.Read(commandContext(cmd), src.ID)
				if errors.Is(err, cursor.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "%d (not persisted, start.from)\n", src.StartFrom)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <source> <value>",
			Short: "Overwrite the persisted cursor",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(func(cmd *cobra.Command, store cursor.Store, src config.Source, args []string) error {
				value, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || value < 0 {
					return fmt.Errorf("invalid cursor value %q", args[0])
				}
				return store.Upsert(commandContext(cmd), src.ID, value)
			}),
		},
		&cobra.Command{
			Use:   "reset <source>",
			Short: "Delete the persisted cursor so the source restarts at start.from",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store cursor.Store, src config.Source, _ []string) error {
				return store.Delete(commandContext(cmd), src.ID)
			}),
		},
	)
	return cmd
}
