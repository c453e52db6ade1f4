package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// NewStagingCmd creates the staging command group.
func NewStagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect NPC stagings",
	}
	cmd.AddCommand(newStagingShowCmd())
	return cmd
}

func newStagingShowCmd() *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "show [region-id]",
		Short: "Show a region's current staging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			prov, err := startProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = prov.Stop(ctx) }()
			return showStaging(ctx, cmd.OutOrStdout(), prov, args[0], history)
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "also list this many past stagings")
	return cmd
}

func showStaging(ctx context.Context, w io.Writer, store provider.StagingStore, regionID string, history int) error {
	bold := color.New(color.Bold)
	current, err := store.GetCurrentStaging(ctx, regionID)
	if err != nil {
		return fmt.Errorf("loading staging: %w", err)
	}
	if current == nil {
		fmt.Fprintf(w, "Region %s has no staging.\n", regionID)
	} else {
		_, _ = bold.Fprintf(w, "Region: %s\n", regionID)
		printStaging(w, *current)
	}

	if history <= 0 {
		return nil
	}
	past, err := store.ListStagingHistory(ctx, regionID, history)
	if err != nil {
		return fmt.Errorf("loading staging history: %w", err)
	}
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "History:")
	for _, s := range past {
		active := ""
		if s.IsActive {
			active = color.GreenString(" active")
		}
		fmt.Fprintf(w, "  %s  %s  %s by %s%s\n", s.ID, s.ApprovedAt.Format(time.RFC3339), s.Source, s.ApprovedBy, active)
	}
	return nil
}

func printStaging(w io.Writer, s types.Staging) {
	fmt.Fprintf(w, "  Staging:   %s (%s)\n", s.ID, s.Source)
	fmt.Fprintf(w, "  Approved:  %s by %s\n", s.ApprovedAt.Format(time.RFC3339), s.ApprovedBy)
	fmt.Fprintf(w, "  Valid:     %s until %s\n", s.GameTime.Format(time.RFC3339), s.ExpiresAt().Format(time.RFC3339))
	if s.Guidance != nil {
		fmt.Fprintf(w, "  Guidance:  %s\n", *s.Guidance)
	}
	for _, n := range s.NPCs {
		switch {
		case !n.IsPresent:
			fmt.Fprintf(w, "    %s %s: absent (%s)\n", color.RedString("✗"), n.Name, n.Reasoning)
		case n.IsHiddenFromPlayers:
			fmt.Fprintf(w, "    %s %s: hidden (%s)\n", color.YellowString("○"), n.Name, n.Reasoning)
		default:
			fmt.Fprintf(w, "    %s %s: present (%s)\n", color.GreenString("✓"), n.Name, n.Reasoning)
		}
	}
}
