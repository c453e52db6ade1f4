package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/narrator/internal/worker"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd() *cobra.Command {
	var queueType string
	cmd := &cobra.Command{
		Use:   "enqueue [file]",
		Short: "Enqueue a JSON payload (stdin when no file is given)",
		Long: `Enqueue writes one pipeline item. The default is a player action;
use --type DIRECTOR_ACTION to answer an approval or stage a region, and
--type STAGING_REQUEST when the party enters a region.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}
			return runEnqueue(types.QueueType(strings.ToUpper(queueType)), data)
		},
	}
	cmd.Flags().StringVarP(&queueType, "type", "t", string(types.QueuePlayerAction), "queue type")
	return cmd
}

func runEnqueue(qt types.QueueType, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

	qopts, err := queueOptions(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	id, err := enqueuePayload(ctx, worker.NewQueues(prov, qopts...), qt, data)
	if err != nil {
		return err
	}
	color.Green("Enqueued %s item %s", qt, id)
	return nil
}

// enqueuePayload decodes data as the payload of qt and enqueues it.
// Decoding first rejects malformed input before it reaches a worker.
func enqueuePayload(ctx context.Context, qs *worker.Queues, qt types.QueueType, data []byte) (string, error) {
	switch qt {
	case types.QueuePlayerAction:
		var p worker.PlayerAction
		if err := decodePayload(data, &p); err != nil {
			return "", err
		}
		if p.WorldID == "" || p.RegionID == "" {
			return "", fmt.Errorf("player action needs worldId and regionId")
		}
		return qs.PlayerAction.Enqueue(ctx, p)
	case types.QueueDirectorAction:
		var p worker.DirectorAction
		if err := decodePayload(data, &p); err != nil {
			return "", err
		}
		return qs.DirectorAction.Enqueue(ctx, p)
	case types.QueueStagingRequest:
		var p worker.StagingRequest
		if err := decodePayload(data, &p); err != nil {
			return "", err
		}
		if p.WorldID == "" || p.RegionID == "" {
			return "", fmt.Errorf("staging request needs worldId and regionId")
		}
		return qs.StagingRequest.Enqueue(ctx, p)
	default:
		return "", fmt.Errorf("cannot enqueue %s items from the CLI", qt)
	}
}

func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
