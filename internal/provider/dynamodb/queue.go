package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Claim tuning: entries inspected per query and queries per ClaimNext.
const (
	claimBatch     = 10
	maxClaimRounds = 5
)

// itemRecord is the truth item of a queue entry. A pending item additionally
// has an index entry under its queue partition, and a correlated item an
// entry under its correlation partition.
type itemRecord struct {
	PK            string  `dynamodbav:"PK"`
	SK            string  `dynamodbav:"SK"`
	GSI1PK        string  `dynamodbav:"GSI1PK"`
	GSI1SK        string  `dynamodbav:"GSI1SK"`
	ID            string  `dynamodbav:"id"`
	QueueType     string  `dynamodbav:"queueType"`
	Payload       string  `dynamodbav:"payload"`
	Status        string  `dynamodbav:"status"`
	CreatedAt     int64   `dynamodbav:"createdAt"`
	UpdatedAt     int64   `dynamodbav:"updatedAt"`
	Error         *string `dynamodbav:"error,omitempty"`
	Result        *string `dynamodbav:"result,omitempty"`
	CorrelationID *string `dynamodbav:"correlationId,omitempty"`
	TTL           int64   `dynamodbav:"ttl,omitempty"`
}

func toRecord(item types.QueueItem) itemRecord {
	rec := itemRecord{
		PK:            itemPK(item.ID),
		SK:            skItem,
		GSI1PK:        typeGSIPK(string(item.Type)),
		GSI1SK:        orderKey(item.CreatedAt, item.ID),
		ID:            item.ID,
		QueueType:     string(item.Type),
		Payload:       string(item.Payload),
		Status:        string(item.Status),
		CreatedAt:     item.CreatedAt.UTC().UnixNano(),
		UpdatedAt:     item.UpdatedAt.UTC().UnixNano(),
		Error:         item.Error,
		CorrelationID: item.CorrelationID,
	}
	if item.Result != nil {
		s := string(item.Result)
		rec.Result = &s
	}
	return rec
}

func (r itemRecord) toItem() types.QueueItem {
	it := types.QueueItem{
		ID:            r.ID,
		Type:          types.QueueType(r.QueueType),
		Payload:       json.RawMessage(r.Payload),
		Status:        types.QueueStatus(r.Status),
		CreatedAt:     time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, r.UpdatedAt).UTC(),
		Error:         r.Error,
		CorrelationID: r.CorrelationID,
	}
	if r.Result != nil {
		it.Result = json.RawMessage(*r.Result)
	}
	return it
}

// Enqueue writes the truth item and its index entries in one transaction.
func (p *DynamoDBProvider) Enqueue(ctx context.Context, item types.QueueItem) error {
	av, err := attributevalue.MarshalMap(toRecord(item))
	if err != nil {
		return fmt.Errorf("marshaling item %s: %w", item.ID, err)
	}

	ops := []ddbtypes.TransactWriteItem{{
		Put: &ddbtypes.Put{
			TableName:           &p.tableName,
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}}
	if item.Status == types.StatusPending {
		ops = append(ops, ddbtypes.TransactWriteItem{Put: &ddbtypes.Put{
			TableName: &p.tableName,
			Item:      pendingEntry(item),
		}})
	}
	if item.CorrelationID != nil {
		entry := key(corrPK(*item.CorrelationID), corrSK(item.ID))
		entry["id"] = strAttr(item.ID)
		ops = append(ops, ddbtypes.TransactWriteItem{Put: &ddbtypes.Put{
			TableName: &p.tableName,
			Item:      entry,
		}})
	}

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: ops})
	if err != nil {
		if reasons := cancelledAt(err); len(reasons) > 0 && reasons[0] {
			return fmt.Errorf("enqueue %s: %w", item.ID, provider.ErrConflict)
		}
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	return nil
}

func pendingEntry(item types.QueueItem) map[string]ddbtypes.AttributeValue {
	entry := key(queuePK(string(item.Type)), pendingSK(item.CreatedAt, item.ID))
	entry["id"] = strAttr(item.ID)
	return entry
}

// ClaimNext reads the oldest pending index entries and claims the first one
// whose transaction succeeds. Losing a race moves on to the next candidate.
func (p *DynamoDBProvider) ClaimNext(ctx context.Context, queueType types.QueueType, now time.Time) (*types.QueueItem, error) {
	for round := 0; round < maxClaimRounds; round++ {
		out, err := p.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &p.tableName,
			ConsistentRead:         aws.Bool(true),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     strAttr(queuePK(string(queueType))),
				":prefix": strAttr(prefixPending),
			},
			Limit: aws.Int32(claimBatch),
		})
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", queueType, err)
		}
		if len(out.Items) == 0 {
			return nil, nil
		}

		for _, entry := range out.Items {
			id := attrString(entry, "id")
			sk := attrString(entry, "SK")
			claimed, err := p.claimEntry(ctx, string(queueType), sk, id, now)
			if err != nil {
				return nil, err
			}
			if claimed {
				return p.GetItem(ctx, id)
			}
		}
	}
	return nil, nil
}

func (p *DynamoDBProvider) claimEntry(ctx context.Context, queueType, sk, id string, now time.Time) (bool, error) {
	_, err := p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Delete: &ddbtypes.Delete{
					TableName:           &p.tableName,
					Key:                 key(queuePK(queueType), sk),
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
			{
				Update: &ddbtypes.Update{
					TableName:           &p.tableName,
					Key:                 key(itemPK(id), skItem),
					UpdateExpression:    aws.String("SET #status = :processing, updatedAt = :now"),
					ConditionExpression: aws.String("#status = :pending"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":processing": strAttr(string(types.StatusProcessing)),
						":pending":    strAttr(string(types.StatusPending)),
						":now":        numAttr(now.UTC().UnixNano()),
					},
				},
			},
		},
	})
	if err == nil {
		return true, nil
	}
	reasons := cancelledAt(err)
	if reasons == nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	if len(reasons) > 1 && reasons[1] && !reasons[0] {
		// The index entry outlived its item; drop it so it stops shadowing newer work.
		_, derr := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &p.tableName,
			Key:       key(queuePK(queueType), sk),
		})
		if derr != nil {
			p.logger.Warn("failed to drop stale pending entry", "item", id, "error", derr)
		}
	}
	return false, nil
}

// GetItem returns the item or nil when it does not exist.
func (p *DynamoDBProvider) GetItem(ctx context.Context, id string) (*types.QueueItem, error) {
	rec, err := p.getRecord(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	it := rec.toItem()
	return &it, nil
}

func (p *DynamoDBProvider) getRecord(ctx context.Context, id string) (*itemRecord, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key:            key(itemPK(id), skItem),
	})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec itemRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling item %s: %w", id, err)
	}
	return &rec, nil
}

// Transition performs a conditional status update. Finished items receive
// an expiry so the table does not grow without bound.
func (p *DynamoDBProvider) Transition(ctx context.Context, id string, from, to types.QueueStatus, errMsg *string, now time.Time) error {
	expr := "SET #status = :to, updatedAt = :now"
	names := map[string]string{"#status": "status"}
	values := map[string]ddbtypes.AttributeValue{
		":to":   strAttr(string(to)),
		":from": strAttr(string(from)),
		":now":  numAttr(now.UTC().UnixNano()),
	}
	if errMsg != nil {
		expr += ", #error = :err"
		names["#error"] = "error"
		values[":err"] = strAttr(*errMsg)
	}
	if to == types.StatusCompleted || to == types.StatusFailed {
		expr += ", #ttl = :ttl"
		names["#ttl"] = "ttl"
		values[":ttl"] = numAttr(ttlEpoch(now, p.retentionTTL))
	}
	update := &ddbtypes.Update{
		TableName:                 &p.tableName,
		Key:                       key(itemPK(id), skItem),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK) AND #status = :from"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	var err error
	if from == types.StatusPending && to != types.StatusPending {
		err = p.transitionFromPending(ctx, id, update)
	} else {
		_, err = p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 update.TableName,
			Key:                       update.Key,
			UpdateExpression:          update.UpdateExpression,
			ConditionExpression:       update.ConditionExpression,
			ExpressionAttributeNames:  update.ExpressionAttributeNames,
			ExpressionAttributeValues: update.ExpressionAttributeValues,
		})
		if isConditionalCheckFailed(err) {
			err = errConditionFailed
		}
	}
	if errors.Is(err, errConditionFailed) {
		return p.missingOrConflict(ctx, id, from)
	}
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	return nil
}

var errConditionFailed = errors.New("condition failed")

// transitionFromPending also drops the pending index entry.
func (p *DynamoDBProvider) transitionFromPending(ctx context.Context, id string, update *ddbtypes.Update) error {
	rec, err := p.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return errConditionFailed
	}
	created := time.Unix(0, rec.CreatedAt)
	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{Update: update},
			{Delete: &ddbtypes.Delete{
				TableName: &p.tableName,
				Key:       key(queuePK(rec.QueueType), pendingSK(created, id)),
			}},
		},
	})
	if reasons := cancelledAt(err); len(reasons) > 0 && reasons[0] {
		return errConditionFailed
	}
	return err
}

func (p *DynamoDBProvider) missingOrConflict(ctx context.Context, id string, from types.QueueStatus) error {
	rec, err := p.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	return fmt.Errorf("item %s is %s, not %s: %w", id, rec.Status, from, provider.ErrConflict)
}

// SetResult stores the item's result payload.
func (p *DynamoDBProvider) SetResult(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &p.tableName,
		Key:                 key(itemPK(id), skItem),
		UpdateExpression:    aws.String("SET #result = :result, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#result": "result",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":result": strAttr(string(result)),
			":now":    numAttr(now.UTC().UnixNano()),
		},
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	return nil
}

// SetResultOnce stores the result unless one is already recorded.
func (p *DynamoDBProvider) SetResultOnce(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	_, err := p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &p.tableName,
		Key:                 key(itemPK(id), skItem),
		UpdateExpression:    aws.String("SET #result = :result, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_not_exists(#result)"),
		ExpressionAttributeNames: map[string]string{
			"#result": "result",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":result": strAttr(string(result)),
			":now":    numAttr(now.UTC().UnixNano()),
		},
	})
	if isConditionalCheckFailed(err) {
		rec, gerr := p.getRecord(ctx, id)
		if gerr != nil {
			return gerr
		}
		if rec == nil {
			return fmt.Errorf("item %s: %w", id, provider.ErrNotFound)
		}
		return fmt.Errorf("item %s already has a result: %w", id, provider.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("set result %s: %w", id, err)
	}
	return nil
}

// ListByType returns items newest first from the type index.
func (p *DynamoDBProvider) ListByType(ctx context.Context, queueType types.QueueType, limit int) ([]types.QueueItem, error) {
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": strAttr(typeGSIPK(string(queueType))),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var out []types.QueueItem
	for {
		page, err := p.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", queueType, err)
		}
		var recs []itemRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshaling %s items: %w", queueType, err)
		}
		for _, r := range recs {
			out = append(out, r.toItem())
		}
		if page.LastEvaluatedKey == nil || (limit > 0 && len(out) >= limit) {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListFinishedSince queries the type index for terminal items updated at or
// after since, then orders them by update time and id for the cursor.
func (p *DynamoDBProvider) ListFinishedSince(ctx context.Context, queueType types.QueueType, since time.Time, afterID string, limit int) ([]types.QueueItem, error) {
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		FilterExpression:       aws.String("#status IN (:completed, :failed) AND updatedAt >= :since"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":        strAttr(typeGSIPK(string(queueType))),
			":completed": strAttr(string(types.StatusCompleted)),
			":failed":    strAttr(string(types.StatusFailed)),
			":since":     numAttr(since.UTC().UnixNano()),
		},
	}

	var out []types.QueueItem
	paginator := dynamodb.NewQueryPaginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list finished %s: %w", queueType, err)
		}
		var recs []itemRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshaling %s items: %w", queueType, err)
		}
		for _, r := range recs {
			if it := r.toItem(); provider.AfterCursor(it, since, afterID) {
				out = append(out, it)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return !provider.AfterCursor(out[i], out[j].UpdatedAt, out[j].ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingCount counts the pending index entries of a type.
func (p *DynamoDBProvider) PendingCount(ctx context.Context, queueType types.QueueType) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     strAttr(queuePK(string(queueType))),
			":prefix": strAttr(prefixPending),
		},
		Select: ddbtypes.SelectCount,
	}
	total := 0
	for {
		page, err := p.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", queueType, err)
		}
		total += int(page.Count)
		if page.LastEvaluatedKey == nil {
			return total, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// CancelByCorrelation deletes pending items carrying the correlation id.
// Each item is removed in its own transaction conditioned on still being
// pending, so a concurrent claim wins over the cancel.
func (p *DynamoDBProvider) CancelByCorrelation(ctx context.Context, correlationID string) (int, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": strAttr(corrPK(correlationID)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", correlationID, err)
	}

	n := 0
	for _, entry := range out.Items {
		id := attrString(entry, "id")
		rec, err := p.getRecord(ctx, id)
		if err != nil {
			return n, err
		}
		if rec == nil {
			_, _ = p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: &p.tableName,
				Key:       key(corrPK(correlationID), corrSK(id)),
			})
			continue
		}
		if rec.Status != string(types.StatusPending) {
			continue
		}
		_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []ddbtypes.TransactWriteItem{
				{Delete: &ddbtypes.Delete{
					TableName:           &p.tableName,
					Key:                 key(itemPK(id), skItem),
					ConditionExpression: aws.String("#status = :pending"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":pending": strAttr(string(types.StatusPending)),
					},
				}},
				{Delete: &ddbtypes.Delete{
					TableName: &p.tableName,
					Key:       key(queuePK(rec.QueueType), pendingSK(time.Unix(0, rec.CreatedAt), id)),
				}},
				{Delete: &ddbtypes.Delete{
					TableName: &p.tableName,
					Key:       key(corrPK(correlationID), corrSK(id)),
				}},
			},
		})
		if cancelledAt(err) != nil {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("cancel %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

func attrString(item map[string]ddbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
