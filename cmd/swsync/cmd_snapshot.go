package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/snapshot"
	"github.com/swsync-network/swsync/pkg/util"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect the cached running configs",
	Long: `Inspect and clear the running configurations cached in Redis by
earlier syncs (snapshot.addr in the configuration).

Examples:
  swsync snapshot list
  swsync snapshot show sw-floor1
  swsync snapshot clear sw-floor1
  swsync snapshot clear --all`,
}

var snapshotClearAll bool

// withSnapshotStore opens the configured cache for a command.
func withSnapshotStore(fn func(ctx context.Context, store snapshot.Store) error) error {
	cfg, err := app.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("snapshot cache not configured (set snapshot.addr): %w", util.ErrInvalidConfig)
	}
	defer store.Close()
	return fn(ctx, store)
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSnapshotStore(func(ctx context.Context, store snapshot.Store) error {
			names, err := store.List(ctx)
			if err != nil {
				return err
			}

			var snaps []*snapshot.Snapshot
			for _, name := range names {
				s, err := store.Get(ctx, name)
				if errors.Is(err, util.ErrNotFound) {
					continue // expired or corrupt since List
				}
				if err != nil {
					return err
				}
				s.Config = ""
				snaps = append(snaps, s)
			}

			if app.jsonOutput {
				return printJSON(snaps)
			}
			if len(snaps) == 0 {
				fmt.Println("No cached running configs")
				return nil
			}

			t := cli.NewTable("DEVICE", "HOST", "FETCHED", "AGE", "DIGEST")
			for _, s := range snaps {
				t.Row(s.Device, s.Host, s.FetchedAt.Format("2006-01-02 15:04:05"),
					s.Age().Round(time.Second).String(), s.Digest[:12])
			}
			t.Flush()
			return nil
		})
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <device>",
	Short: "Print a cached running config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSnapshotStore(func(ctx context.Context, store snapshot.Store) error {
			s, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(s.Config)
			return nil
		})
	},
}

var snapshotClearCmd = &cobra.Command{
	Use:   "clear [device...]",
	Short: "Remove cached running configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !snapshotClearAll {
			return fmt.Errorf("name devices to clear, or use --all")
		}
		return withSnapshotStore(func(ctx context.Context, store snapshot.Store) error {
			names := args
			if snapshotClearAll {
				var err error
				if names, err = store.List(ctx); err != nil {
					return err
				}
				if len(names) > 0 && !confirm(fmt.Sprintf("Remove %d cached running configs?", len(names))) {
					return nil
				}
			}
			for _, name := range names {
				if err := store.Delete(ctx, name); err != nil {
					return fmt.Errorf("clearing %s: %w", name, err)
				}
			}
			fmt.Printf("Cleared %d cached running configs.\n", len(names))
			return nil
		})
	},
}

func init() {
	snapshotClearCmd.Flags().BoolVar(&snapshotClearAll, "all", false, "Clear every cached device")

	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotClearCmd)
}
