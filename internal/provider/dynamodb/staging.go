package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// maxApproveAttempts bounds retries when approvals for one region race on the
// current pointer.
const maxApproveAttempts = 10

// SaveApprovedStaging writes the staging truth item, a history copy and the
// region's current pointer in one transaction. The pointer is versioned, so
// a concurrent approval forces a re-read and retry. A staging is active
// exactly when the pointer names it.
func (p *DynamoDBProvider) SaveApprovedStaging(ctx context.Context, s types.Staging) error {
	s.IsActive = true
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling staging: %w", err)
	}

	for attempt := 0; attempt < maxApproveAttempts; attempt++ {
		_, version, err := p.currentPointer(ctx, s.RegionID)
		if err != nil {
			return err
		}

		pointer := key(regionPK(s.RegionID), skCurrent)
		pointer["stagingId"] = strAttr(s.ID)
		pointer["version"] = numAttr(version + 1)
		pointerPut := &ddbtypes.Put{
			TableName: &p.tableName,
			Item:      pointer,
		}
		if version == 0 {
			pointerPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
		} else {
			pointerPut.ConditionExpression = aws.String("version = :v")
			pointerPut.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
				":v": numAttr(version),
			}
		}

		truth := key(stagingPK(s.ID), skStaging)
		truth["data"] = strAttr(string(data))
		history := key(regionPK(s.RegionID), historySK(s.ApprovedAt, s.ID))
		history["data"] = strAttr(string(data))

		_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []ddbtypes.TransactWriteItem{
				{Put: &ddbtypes.Put{
					TableName:           &p.tableName,
					Item:                truth,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				}},
				{Put: &ddbtypes.Put{TableName: &p.tableName, Item: history}},
				{Put: pointerPut},
			},
		})
		if err == nil {
			return nil
		}
		reasons := cancelledAt(err)
		switch {
		case reasons == nil:
			return fmt.Errorf("approve staging %s: %w", s.ID, err)
		case len(reasons) > 0 && reasons[0]:
			return fmt.Errorf("staging %s: %w", s.ID, provider.ErrConflict)
		}
		p.logger.Debug("staging pointer moved, retrying", "region", s.RegionID, "staging", s.ID, "attempt", attempt+1)
	}
	return fmt.Errorf("approve staging %s: region %s: %w", s.ID, s.RegionID, provider.ErrConflict)
}

// currentPointer returns the staging id the region points at and the
// pointer version. A missing pointer yields version 0.
func (p *DynamoDBProvider) currentPointer(ctx context.Context, regionID string) (string, int64, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key:            key(regionPK(regionID), skCurrent),
	})
	if err != nil {
		return "", 0, fmt.Errorf("current staging %s: %w", regionID, err)
	}
	if out.Item == nil {
		return "", 0, nil
	}
	var version int64
	if n, ok := out.Item["version"].(*ddbtypes.AttributeValueMemberN); ok {
		version, err = strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("current staging %s version: %w", regionID, err)
		}
	}
	return attrString(out.Item, "stagingId"), version, nil
}

// GetCurrentStaging returns the staging the region points at, or nil.
func (p *DynamoDBProvider) GetCurrentStaging(ctx context.Context, regionID string) (*types.Staging, error) {
	id, _, err := p.currentPointer(ctx, regionID)
	if err != nil || id == "" {
		return nil, err
	}
	return p.GetStaging(ctx, id)
}

// GetStaging returns the staging or nil when it does not exist.
func (p *DynamoDBProvider) GetStaging(ctx context.Context, id string) (*types.Staging, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key:            key(stagingPK(id), skStaging),
	})
	if err != nil {
		return nil, fmt.Errorf("get staging %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	s, err := decodeStaging(out.Item)
	if err != nil {
		return nil, err
	}
	current, _, err := p.currentPointer(ctx, s.RegionID)
	if err != nil {
		return nil, err
	}
	s.IsActive = current == s.ID
	return &s, nil
}

// ListStagingHistory returns the region's stagings, newest approval first.
func (p *DynamoDBProvider) ListStagingHistory(ctx context.Context, regionID string, limit int) ([]types.Staging, error) {
	current, _, err := p.currentPointer(ctx, regionID)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     strAttr(regionPK(regionID)),
			":prefix": strAttr(prefixHistory),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var out []types.Staging
	for {
		page, err := p.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("staging history %s: %w", regionID, err)
		}
		for _, item := range page.Items {
			s, err := decodeStaging(item)
			if err != nil {
				return nil, err
			}
			s.IsActive = current == s.ID
			out = append(out, s)
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

func decodeStaging(item map[string]ddbtypes.AttributeValue) (types.Staging, error) {
	var s types.Staging
	if err := json.Unmarshal([]byte(attrString(item, "data")), &s); err != nil {
		return types.Staging{}, fmt.Errorf("unmarshaling staging: %w", err)
	}
	return s, nil
}
