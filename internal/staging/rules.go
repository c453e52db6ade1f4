package staging

import (
	"fmt"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

const previouslyStaged = "Previously staged"

// ruleVerdict decides presence for one NPC-region relation at gameTime. ok
// is false for relations that exclude the NPC entirely.
func ruleVerdict(rel types.NpcRegionRelation, gameTime time.Time) (present bool, reasoning string, ok bool) {
	hour := gameTime.Hour()
	tod := types.TimeOfDayAt(hour)

	switch rel.Type {
	case types.RelationLivesHere:
		present = tod == types.TimeEvening || tod == types.TimeNight
		if present {
			return true, "Lives here", true
		}
		return false, fmt.Sprintf("Lives here, usually out during the %s", tod), true

	case types.RelationWorksAt:
		shift := rel.Shift
		if shift == "" {
			shift = types.ShiftDay
		}
		present = onShift(shift, hour)
		label := fmt.Sprintf("Works here (%s shift)", shift)
		if rel.Shift == "" {
			label = "Works here"
		}
		if present {
			return true, label, true
		}
		return false, label + ", off shift", true

	case types.RelationFrequents:
		freq := rel.Frequency
		if freq == "" {
			freq = "sometimes"
		}
		present = rel.TimeOfDay == "" || rel.TimeOfDay == tod
		when := string(rel.TimeOfDay)
		if when == "" {
			when = "any time"
		}
		reasoning = fmt.Sprintf("Frequents this area %s (%s)", freq, when)
		if !present {
			reasoning += ", not at this hour"
		}
		return present, reasoning, true

	default:
		// AVOIDS and unknown relations keep the NPC out of the proposal.
		return false, "", false
	}
}

// onShift reports whether hour falls in the shift. Day runs 08:00-18:00 and
// night runs 18:00-06:00.
func onShift(shift types.WorkShift, hour int) bool {
	if shift == types.ShiftNight {
		return hour >= 18 || hour < 6
	}
	return hour >= 8 && hour < 18
}
