package types

// QueueType identifies the pipeline stage a queue item belongs to.
type QueueType string

// QueueType values enumerate the pipeline stages.
const (
	QueuePlayerAction    QueueType = "PLAYER_ACTION"
	QueueLlmRequest      QueueType = "LLM_REQUEST"
	QueueDmApproval      QueueType = "DM_APPROVAL"
	QueueDirectorAction  QueueType = "DIRECTOR_ACTION"
	QueueStagingRequest  QueueType = "STAGING_REQUEST"
	QueueBroadcast       QueueType = "BROADCAST"
	QueueAssetGeneration QueueType = "ASSET_GENERATION"
)

// AllQueueTypes lists every queue type in pipeline order.
var AllQueueTypes = []QueueType{
	QueuePlayerAction,
	QueueLlmRequest,
	QueueDmApproval,
	QueueDirectorAction,
	QueueStagingRequest,
	QueueBroadcast,
	QueueAssetGeneration,
}

// QueueStatus represents the lifecycle state of a queue item.
type QueueStatus string

// QueueStatus values represent the lifecycle states of a queue item.
const (
	StatusPending    QueueStatus = "PENDING"
	StatusProcessing QueueStatus = "PROCESSING"
	StatusCompleted  QueueStatus = "COMPLETED"
	StatusFailed     QueueStatus = "FAILED"
)

// StagingSource records how a staging was produced.
type StagingSource string

// StagingSource values enumerate the staging origins.
const (
	SourceRuleBased    StagingSource = "RULE_BASED"
	SourceLlmAssisted  StagingSource = "LLM_ASSISTED"
	SourceDmCustomized StagingSource = "DM_CUSTOMIZED"
	SourcePreStaged    StagingSource = "PRE_STAGED"
	SourceAutoApproved StagingSource = "AUTO_APPROVED"
)

// RegionRelationType describes how an NPC is tied to a region.
type RegionRelationType string

// RegionRelationType values enumerate NPC-region relationships.
const (
	RelationLivesHere RegionRelationType = "LIVES_HERE"
	RelationWorksAt   RegionRelationType = "WORKS_AT"
	RelationFrequents RegionRelationType = "FREQUENTS"
	RelationAvoids    RegionRelationType = "AVOIDS"
)

// WorkShift is the shift an NPC works in a region.
type WorkShift string

// WorkShift values.
const (
	ShiftDay   WorkShift = "day"
	ShiftNight WorkShift = "night"
)

// TimeOfDay is a coarse in-game period.
type TimeOfDay string

// TimeOfDay values enumerate the in-game periods.
const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
)

// TimeOfDayAt maps an in-game clock value to its period.
func TimeOfDayAt(hour int) TimeOfDay {
	switch {
	case hour >= 6 && hour < 12:
		return TimeMorning
	case hour >= 12 && hour < 18:
		return TimeAfternoon
	case hour >= 18 && hour < 22:
		return TimeEvening
	default:
		return TimeNight
	}
}

// MessageRole is the author of a chat message sent to the AI.
type MessageRole string

// MessageRole values.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// DecisionKind is the director's verdict on an approval request.
type DecisionKind string

// DecisionKind values enumerate director verdicts.
const (
	DecisionAccept DecisionKind = "ACCEPT"
	DecisionModify DecisionKind = "MODIFY"
	DecisionReject DecisionKind = "REJECT"
)
