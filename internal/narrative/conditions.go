package narrative

// TriggerKind tags a TriggerCondition variant on the wire.
type TriggerKind string

// TriggerKind values enumerate every condition variant.
const (
	KindNpcAction             TriggerKind = "NPC_ACTION"
	KindObjectInteraction     TriggerKind = "OBJECT_INTERACTION"
	KindPlayerEntersLocation  TriggerKind = "PLAYER_ENTERS_LOCATION"
	KindTimeAtLocation        TriggerKind = "TIME_AT_LOCATION"
	KindDialogueTopic         TriggerKind = "DIALOGUE_TOPIC"
	KindChallengeCompleted    TriggerKind = "CHALLENGE_COMPLETED"
	KindEventCompleted        TriggerKind = "EVENT_COMPLETED"
	KindRelationshipThreshold TriggerKind = "RELATIONSHIP_THRESHOLD"
	KindStatThreshold         TriggerKind = "STAT_THRESHOLD"
	KindHasItem               TriggerKind = "HAS_ITEM"
	KindMissingItem           TriggerKind = "MISSING_ITEM"
	KindFlagSet               TriggerKind = "FLAG_SET"
	KindFlagNotSet            TriggerKind = "FLAG_NOT_SET"
	KindTurnCount             TriggerKind = "TURN_COUNT"
	KindKnowsSpell            TriggerKind = "KNOWS_SPELL"
	KindHasFeat               TriggerKind = "HAS_FEAT"
	KindHasClass              TriggerKind = "HAS_CLASS"
	KindHasOrigin             TriggerKind = "HAS_ORIGIN"
	KindKnowsCreature         TriggerKind = "KNOWS_CREATURE"
	KindCustom                TriggerKind = "CUSTOM"
)

// TriggerCondition is one condition variant. The set is closed: only types
// in this package implement it.
type TriggerCondition interface {
	Kind() TriggerKind
	Matches(tc *TriggerContext) bool
	isCondition()
}

var conditionFactories = map[TriggerKind]func() TriggerCondition{
	KindNpcAction:             func() TriggerCondition { return &NpcAction{} },
	KindObjectInteraction:     func() TriggerCondition { return &ObjectInteraction{} },
	KindPlayerEntersLocation:  func() TriggerCondition { return &PlayerEntersLocation{} },
	KindTimeAtLocation:        func() TriggerCondition { return &TimeAtLocation{} },
	KindDialogueTopic:         func() TriggerCondition { return &DialogueTopic{} },
	KindChallengeCompleted:    func() TriggerCondition { return &ChallengeCompleted{} },
	KindEventCompleted:        func() TriggerCondition { return &EventCompleted{} },
	KindRelationshipThreshold: func() TriggerCondition { return &RelationshipThreshold{} },
	KindStatThreshold:         func() TriggerCondition { return &StatThreshold{} },
	KindHasItem:               func() TriggerCondition { return &HasItem{} },
	KindMissingItem:           func() TriggerCondition { return &MissingItem{} },
	KindFlagSet:               func() TriggerCondition { return &FlagSet{} },
	KindFlagNotSet:            func() TriggerCondition { return &FlagNotSet{} },
	KindTurnCount:             func() TriggerCondition { return &TurnCount{} },
	KindKnowsSpell:            func() TriggerCondition { return &KnowsSpell{} },
	KindHasFeat:               func() TriggerCondition { return &HasFeat{} },
	KindHasClass:              func() TriggerCondition { return &HasClass{} },
	KindHasOrigin:             func() TriggerCondition { return &HasOrigin{} },
	KindKnowsCreature:         func() TriggerCondition { return &KnowsCreature{} },
	KindCustom:                func() TriggerCondition { return &Custom{} },
}

// NpcAction matches when the recent player action mentions any keyword.
type NpcAction struct {
	NpcID             string   `json:"npcId"`
	NpcName           string   `json:"npcName,omitempty"`
	Keywords          []string `json:"keywords"`
	ActionDescription string   `json:"actionDescription,omitempty"`
}

func (*NpcAction) Kind() TriggerKind { return KindNpcAction }
func (*NpcAction) isCondition()      {}

func (c *NpcAction) Matches(tc *TriggerContext) bool {
	for _, kw := range c.Keywords {
		if containsFolded(tc.RecentAction, kw) {
			return true
		}
	}
	return false
}

// ObjectInteraction matches when the recent player action names the object
// or any of its keywords.
type ObjectInteraction struct {
	ObjectName string   `json:"objectName"`
	Keywords   []string `json:"keywords,omitempty"`
}

func (*ObjectInteraction) Kind() TriggerKind { return KindObjectInteraction }
func (*ObjectInteraction) isCondition()      {}

func (c *ObjectInteraction) Matches(tc *TriggerContext) bool {
	if containsFolded(tc.RecentAction, c.ObjectName) {
		return true
	}
	for _, kw := range c.Keywords {
		if containsFolded(tc.RecentAction, kw) {
			return true
		}
	}
	return false
}

// PlayerEntersLocation matches when the party is at the location.
type PlayerEntersLocation struct {
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName,omitempty"`
}

func (*PlayerEntersLocation) Kind() TriggerKind { return KindPlayerEntersLocation }
func (*PlayerEntersLocation) isCondition()      {}

func (c *PlayerEntersLocation) Matches(tc *TriggerContext) bool {
	return tc.LocationID != "" && tc.LocationID == c.LocationID
}

// TimeAtLocation matches when the party is at the location during the named time.
type TimeAtLocation struct {
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName,omitempty"`
	TimeContext  string `json:"timeContext"`
}

func (*TimeAtLocation) Kind() TriggerKind { return KindTimeAtLocation }
func (*TimeAtLocation) isCondition()      {}

func (c *TimeAtLocation) Matches(tc *TriggerContext) bool {
	if tc.LocationID == "" || tc.LocationID != c.LocationID || tc.TimeContext == "" {
		return false
	}
	return fold(tc.TimeContext) == fold(c.TimeContext)
}

// DialogueTopic matches when a recent dialogue topic contains any keyword.
type DialogueTopic struct {
	Keywords []string `json:"keywords"`
	WithNpc  *string  `json:"withNpc,omitempty"`
	NpcName  *string  `json:"npcName,omitempty"`
}

func (*DialogueTopic) Kind() TriggerKind { return KindDialogueTopic }
func (*DialogueTopic) isCondition()      {}

func (c *DialogueTopic) Matches(tc *TriggerContext) bool {
	for _, topic := range tc.DialogueTopics {
		for _, kw := range c.Keywords {
			if containsFolded(topic, kw) {
				return true
			}
		}
	}
	return false
}

// ChallengeCompleted matches a finished challenge, optionally with a
// required success or failure.
type ChallengeCompleted struct {
	ChallengeID     string `json:"challengeId"`
	ChallengeName   string `json:"challengeName,omitempty"`
	RequiresSuccess *bool  `json:"requiresSuccess,omitempty"`
}

func (*ChallengeCompleted) Kind() TriggerKind { return KindChallengeCompleted }
func (*ChallengeCompleted) isCondition()      {}

func (c *ChallengeCompleted) Matches(tc *TriggerContext) bool {
	succeeded, done := tc.CompletedChallenges[c.ChallengeID]
	if !done {
		return false
	}
	return c.RequiresSuccess == nil || *c.RequiresSuccess == succeeded
}

// EventCompleted matches a finished narrative event, optionally with a
// specific outcome.
type EventCompleted struct {
	EventID   string  `json:"eventId"`
	EventName string  `json:"eventName,omitempty"`
	Outcome   *string `json:"outcome,omitempty"`
}

func (*EventCompleted) Kind() TriggerKind { return KindEventCompleted }
func (*EventCompleted) isCondition()      {}

func (c *EventCompleted) Matches(tc *TriggerContext) bool {
	outcome, done := tc.CompletedEvents[c.EventID]
	if !done {
		return false
	}
	return c.Outcome == nil || *c.Outcome == outcome
}

// RelationshipThreshold matches when how CharacterID feels about
// WithCharacterID lies inside the optional bounds.
type RelationshipThreshold struct {
	CharacterID     string   `json:"characterId"`
	WithCharacterID string   `json:"withCharacterId"`
	MinSentiment    *float64 `json:"minSentiment,omitempty"`
	MaxSentiment    *float64 `json:"maxSentiment,omitempty"`
}

func (*RelationshipThreshold) Kind() TriggerKind { return KindRelationshipThreshold }
func (*RelationshipThreshold) isCondition()      {}

func (c *RelationshipThreshold) Matches(tc *TriggerContext) bool {
	v, ok := tc.Relationship(c.CharacterID, c.WithCharacterID)
	if !ok {
		return false
	}
	return (c.MinSentiment == nil || v >= *c.MinSentiment) &&
		(c.MaxSentiment == nil || v <= *c.MaxSentiment)
}

// StatThreshold matches when a character stat lies inside the optional bounds.
type StatThreshold struct {
	CharacterID string `json:"characterId"`
	Stat        string `json:"stat"`
	Min         *int   `json:"min,omitempty"`
	Max         *int   `json:"max,omitempty"`
}

func (*StatThreshold) Kind() TriggerKind { return KindStatThreshold }
func (*StatThreshold) isCondition()      {}

func (c *StatThreshold) Matches(tc *TriggerContext) bool {
	v, ok := tc.Stat(c.CharacterID, c.Stat)
	if !ok {
		return false
	}
	return (c.Min == nil || v >= *c.Min) && (c.Max == nil || v <= *c.Max)
}

// HasItem matches when the party carries at least Quantity (default 1) of an item.
type HasItem struct {
	ItemName string `json:"itemName"`
	Quantity *int   `json:"quantity,omitempty"`
}

func (*HasItem) Kind() TriggerKind { return KindHasItem }
func (*HasItem) isCondition()      {}

func (c *HasItem) Matches(tc *TriggerContext) bool {
	need := 1
	if c.Quantity != nil {
		need = *c.Quantity
	}
	return itemCount(tc.Inventory, c.ItemName) >= need
}

// MissingItem matches when the party carries none of an item.
type MissingItem struct {
	ItemName string `json:"itemName"`
}

func (*MissingItem) Kind() TriggerKind { return KindMissingItem }
func (*MissingItem) isCondition()      {}

func (c *MissingItem) Matches(tc *TriggerContext) bool {
	return itemCount(tc.Inventory, c.ItemName) == 0
}

// FlagSet matches a flag that is set to true.
type FlagSet struct {
	Flag string `json:"flag"`
}

func (*FlagSet) Kind() TriggerKind { return KindFlagSet }
func (*FlagSet) isCondition()      {}

func (c *FlagSet) Matches(tc *TriggerContext) bool { return tc.Flags[c.Flag] }

// FlagNotSet matches a flag that is false or absent.
type FlagNotSet struct {
	Flag string `json:"flag"`
}

func (*FlagNotSet) Kind() TriggerKind { return KindFlagNotSet }
func (*FlagNotSet) isCondition()      {}

func (c *FlagNotSet) Matches(tc *TriggerContext) bool { return !tc.Flags[c.Flag] }

// TurnCount matches once enough turns passed, either in total or since an
// event completed.
type TurnCount struct {
	Turns      int     `json:"turns"`
	SinceEvent *string `json:"sinceEvent,omitempty"`
}

func (*TurnCount) Kind() TriggerKind { return KindTurnCount }
func (*TurnCount) isCondition()      {}

func (c *TurnCount) Matches(tc *TriggerContext) bool {
	if c.SinceEvent == nil {
		return tc.TurnCount >= c.Turns
	}
	since, ok := tc.TurnsSinceEvent[*c.SinceEvent]
	return ok && since >= c.Turns
}

// KnowsSpell matches a spell the character knows.
type KnowsSpell struct {
	SpellID   string `json:"spellId"`
	SpellName string `json:"spellName,omitempty"`
}

func (*KnowsSpell) Kind() TriggerKind { return KindKnowsSpell }
func (*KnowsSpell) isCondition()      {}

func (c *KnowsSpell) Matches(tc *TriggerContext) bool { return anyEqualFold(tc.KnownSpells, c.SpellID) }

// HasFeat matches a feat the character has acquired.
type HasFeat struct {
	FeatID   string `json:"featId"`
	FeatName string `json:"featName,omitempty"`
}

func (*HasFeat) Kind() TriggerKind { return KindHasFeat }
func (*HasFeat) isCondition()      {}

func (c *HasFeat) Matches(tc *TriggerContext) bool { return anyEqualFold(tc.Feats, c.FeatID) }

// HasClass matches a class, optionally at a minimum level.
type HasClass struct {
	ClassID   string `json:"classId"`
	ClassName string `json:"className,omitempty"`
	MinLevel  *int   `json:"minLevel,omitempty"`
}

func (*HasClass) Kind() TriggerKind { return KindHasClass }
func (*HasClass) isCondition()      {}

func (c *HasClass) Matches(tc *TriggerContext) bool {
	want := fold(c.ClassID)
	for id, level := range tc.ClassLevels {
		if fold(id) == want {
			return c.MinLevel == nil || level >= *c.MinLevel
		}
	}
	return false
}

// HasOrigin matches the character's origin.
type HasOrigin struct {
	OriginID   string `json:"originId"`
	OriginName string `json:"originName,omitempty"`
}

func (*HasOrigin) Kind() TriggerKind { return KindHasOrigin }
func (*HasOrigin) isCondition()      {}

func (c *HasOrigin) Matches(tc *TriggerContext) bool {
	return tc.OriginID != "" && fold(tc.OriginID) == fold(c.OriginID)
}

// KnowsCreature matches a creature the character has learned about.
type KnowsCreature struct {
	CreatureID   string `json:"creatureId"`
	CreatureName string `json:"creatureName,omitempty"`
}

func (*KnowsCreature) Kind() TriggerKind { return KindKnowsCreature }
func (*KnowsCreature) isCondition()      {}

func (c *KnowsCreature) Matches(tc *TriggerContext) bool {
	return anyEqualFold(tc.KnownCreatures, c.CreatureID)
}

// Custom is a free-text condition judged by the AI. Its outcome is looked
// up in TriggerContext.CustomResults; a missing entry is not met.
type Custom struct {
	Description   string `json:"description"`
	LLMEvaluation bool   `json:"llmEvaluation"`
}

func (*Custom) Kind() TriggerKind { return KindCustom }
func (*Custom) isCondition()      {}

func (c *Custom) Matches(tc *TriggerContext) bool {
	if !c.LLMEvaluation {
		return false
	}
	return tc.CustomResults[c.Description]
}

func itemCount(inv map[string]int, name string) int {
	if n, ok := inv[name]; ok {
		return n
	}
	want := fold(name)
	for item, n := range inv {
		if fold(item) == want {
			return n
		}
	}
	return 0
}
