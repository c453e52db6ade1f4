package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/narrator/internal/provider"
	pgstore "github.com/dwsmith1983/narrator/internal/provider/postgres"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// NewQueueCmd creates the queue command group.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect pipeline queues",
	}
	cmd.AddCommand(newQueueListCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var (
		limit    int
		archived bool
	)
	cmd := &cobra.Command{
		Use:   "list [queue-type]",
		Short: "List recent items, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qts := types.AllQueueTypes
			if len(args) == 1 {
				qts = []types.QueueType{types.QueueType(strings.ToUpper(args[0]))}
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if archived {
				if cfg.Archive == nil || !cfg.Archive.Enabled {
					return fmt.Errorf("archive is not enabled in the project config")
				}
				arc, err := pgstore.Open(ctx, cfg.Archive.DSN, pgstore.WithMaxConns(1))
				if err != nil {
					return err
				}
				defer arc.Close()
				return listArchived(ctx, cmd.OutOrStdout(), arc, qts, limit)
			}
			prov, err := startProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = prov.Stop(ctx) }()
			return listQueues(ctx, cmd.OutOrStdout(), prov, qts, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "items per queue type")
	cmd.Flags().BoolVar(&archived, "archived", false, "read finished items from the Postgres archive")
	return cmd
}

// archivedLister reads items back from the archive.
type archivedLister interface {
	ListArchivedItems(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error)
}

func listArchived(ctx context.Context, w io.Writer, src archivedLister, qts []types.QueueType, limit int) error {
	bold := color.New(color.Bold)
	for _, qt := range qts {
		items, err := src.ListArchivedItems(ctx, qt, limit)
		if err != nil {
			return fmt.Errorf("listing archived %s: %w", qt, err)
		}
		_, _ = bold.Fprintf(w, "%s (archived)\n", qt)
		printItems(w, items)
	}
	return nil
}

func listQueues(ctx context.Context, w io.Writer, store provider.QueueStore, qts []types.QueueType, limit int) error {
	bold := color.New(color.Bold)
	for _, qt := range qts {
		items, err := store.ListByType(ctx, qt, limit)
		if err != nil {
			return fmt.Errorf("listing %s: %w", qt, err)
		}
		pending, err := store.PendingCount(ctx, qt)
		if err != nil {
			return fmt.Errorf("counting %s: %w", qt, err)
		}
		_, _ = bold.Fprintf(w, "%s (%d pending)\n", qt, pending)
		printItems(w, items)
	}
	return nil
}

func printItems(w io.Writer, items []types.QueueItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "  no items")
		return
	}
	for _, it := range items {
		line := fmt.Sprintf("  %s  %-10s  %s", it.ID, statusString(it.Status), it.UpdatedAt.Format(time.RFC3339))
		if it.Error != nil {
			line += "  " + color.RedString(*it.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func statusString(s types.QueueStatus) string {
	switch s {
	case types.StatusCompleted:
		return color.GreenString(string(s))
	case types.StatusFailed:
		return color.RedString(string(s))
	case types.StatusProcessing:
		return color.CyanString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
