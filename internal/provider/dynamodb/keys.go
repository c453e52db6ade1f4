package dynamodb

import (
	"fmt"
	"strconv"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK/SK prefix constants.
const (
	prefixItem    = "QITEM#"
	prefixQueue   = "QUEUE#"
	prefixPending = "PENDING#"
	prefixCorr    = "CORR#"
	prefixType    = "QTYPE#"
	prefixStaging = "STAGING#"
	prefixRegion  = "REGION#"
	prefixHistory = "HIST#"

	skItem    = "ITEM"
	skStaging = "STAGING"
	skCurrent = "CURRENT"

	gsi1 = "GSI1"
)

// orderKey renders a timestamp so that lexical order matches time order.
func orderKey(t time.Time, id string) string {
	return fmt.Sprintf("%020d#%s", t.UTC().UnixNano(), id)
}

func itemPK(id string) string                 { return prefixItem + id }
func queuePK(qt string) string                { return prefixQueue + qt }
func pendingSK(t time.Time, id string) string { return prefixPending + orderKey(t, id) }
func corrPK(correlationID string) string      { return prefixCorr + correlationID }
func corrSK(id string) string                 { return prefixItem + id }
func typeGSIPK(qt string) string              { return prefixType + qt }
func stagingPK(id string) string              { return prefixStaging + id }
func regionPK(regionID string) string         { return prefixRegion + regionID }
func historySK(t time.Time, id string) string { return prefixHistory + orderKey(t, id) }

func key(pk, sk string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
		"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
	}
}

func strAttr(v string) *ddbtypes.AttributeValueMemberS { return &ddbtypes.AttributeValueMemberS{Value: v} }

func numAttr(v int64) *ddbtypes.AttributeValueMemberN {
	return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func ttlEpoch(now time.Time, d time.Duration) int64 {
	return now.Add(d).Unix()
}
