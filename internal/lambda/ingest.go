package lambda

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/worker"
)

// CorrelationAttribute is the optional SQS message attribute carrying the
// correlation id of the enqueued action.
const CorrelationAttribute = "correlationId"

// HandleIngest enqueues one PLAYER_ACTION per SQS record. Records that
// cannot be decoded are dropped, since a retry would never succeed; records
// that fail to enqueue are returned as batch item failures for redelivery.
func HandleIngest(ctx context.Context, d *Deps, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		var action worker.PlayerAction
		if err := json.Unmarshal([]byte(record.Body), &action); err != nil {
			d.Logger.Warn("dropping malformed player action", "messageId", record.MessageId, "error", err)
			continue
		}
		if action.WorldID == "" || action.RegionID == "" {
			d.Logger.Warn("dropping player action without world or region", "messageId", record.MessageId)
			continue
		}

		var opts []queue.EnqueueOption
		if attr, ok := record.MessageAttributes[CorrelationAttribute]; ok && attr.StringValue != nil && *attr.StringValue != "" {
			opts = append(opts, queue.WithCorrelationID(*attr.StringValue))
		}
		id, err := d.Queues.PlayerAction.Enqueue(ctx, action, opts...)
		if err != nil {
			d.Logger.Error("failed to enqueue player action", "messageId", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		d.Logger.Info("player action enqueued", "messageId", record.MessageId, "item", id, "world", action.WorldID)
	}
	return resp, nil
}
