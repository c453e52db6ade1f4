package staging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func at(hour int) time.Time {
	return time.Date(1492, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestRuleVerdict(t *testing.T) {
	tests := []struct {
		name      string
		rel       types.NpcRegionRelation
		hour      int
		present   bool
		reasoning string
		ok        bool
	}{
		{"lives here evening", types.NpcRegionRelation{Type: types.RelationLivesHere}, 19, true, "Lives here", true},
		{"lives here night", types.NpcRegionRelation{Type: types.RelationLivesHere}, 2, true, "Lives here", true},
		{"lives here morning", types.NpcRegionRelation{Type: types.RelationLivesHere}, 9, false, "Lives here, usually out during the morning", true},
		{"day shift on", types.NpcRegionRelation{Type: types.RelationWorksAt, Shift: types.ShiftDay}, 8, true, "Works here (day shift)", true},
		{"day shift off", types.NpcRegionRelation{Type: types.RelationWorksAt, Shift: types.ShiftDay}, 18, false, "Works here (day shift), off shift", true},
		{"night shift late", types.NpcRegionRelation{Type: types.RelationWorksAt, Shift: types.ShiftNight}, 23, true, "Works here (night shift)", true},
		{"night shift early", types.NpcRegionRelation{Type: types.RelationWorksAt, Shift: types.ShiftNight}, 5, true, "Works here (night shift)", true},
		{"night shift off", types.NpcRegionRelation{Type: types.RelationWorksAt, Shift: types.ShiftNight}, 6, false, "Works here (night shift), off shift", true},
		{"no shift means day", types.NpcRegionRelation{Type: types.RelationWorksAt}, 12, true, "Works here", true},
		{"frequents matching time", types.NpcRegionRelation{Type: types.RelationFrequents, Frequency: "often", TimeOfDay: types.TimeEvening}, 20, true, "Frequents this area often (evening)", true},
		{"frequents other time", types.NpcRegionRelation{Type: types.RelationFrequents, Frequency: "often", TimeOfDay: types.TimeEvening}, 10, false, "Frequents this area often (evening), not at this hour", true},
		{"frequents any time", types.NpcRegionRelation{Type: types.RelationFrequents}, 10, true, "Frequents this area sometimes (any time)", true},
		{"avoids", types.NpcRegionRelation{Type: types.RelationAvoids}, 12, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			present, reasoning, ok := ruleVerdict(tt.rel, at(tt.hour))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.present, present)
			assert.Equal(t, tt.reasoning, reasoning)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, normalizeName("  Old   Tom "), normalizeName("old tom"))
	assert.NotEqual(t, normalizeName("Tom"), normalizeName("Tomas"))
}
