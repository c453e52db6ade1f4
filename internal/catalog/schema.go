package catalog

import (
	"fmt"

	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Bundle is the content of one world file.
type Bundle struct {
	World      types.World
	Regions    []types.Region
	Characters []types.Character
	Relations  []types.NpcRegionRelation
	Events     []narrative.Event
	State      types.WorldState
}

// ValidateBundle checks that a world file is well-formed and internally
// consistent.
func ValidateBundle(b *Bundle) error {
	if b.World.ID == "" {
		return fmt.Errorf("world id is required")
	}
	if b.World.Name == "" {
		return fmt.Errorf("world %q: name is required", b.World.ID)
	}

	regions := make(map[string]bool, len(b.Regions))
	for _, r := range b.Regions {
		if r.ID == "" {
			return fmt.Errorf("region id is required")
		}
		if regions[r.ID] {
			return fmt.Errorf("duplicate region %q", r.ID)
		}
		if r.WorldID != "" && r.WorldID != b.World.ID {
			return fmt.Errorf("region %q belongs to world %q, not %q", r.ID, r.WorldID, b.World.ID)
		}
		regions[r.ID] = true
	}

	characters := make(map[string]bool, len(b.Characters))
	for _, c := range b.Characters {
		if c.ID == "" {
			return fmt.Errorf("character id is required")
		}
		if c.Name == "" {
			return fmt.Errorf("character %q: name is required", c.ID)
		}
		if characters[c.ID] {
			return fmt.Errorf("duplicate character %q", c.ID)
		}
		characters[c.ID] = true
	}

	for _, rel := range b.Relations {
		if !regions[rel.RegionID] {
			return fmt.Errorf("relation references unknown region %q", rel.RegionID)
		}
		if !characters[rel.CharacterID] {
			return fmt.Errorf("relation references unknown character %q", rel.CharacterID)
		}
		switch rel.Type {
		case types.RelationLivesHere, types.RelationWorksAt, types.RelationFrequents, types.RelationAvoids:
		default:
			return fmt.Errorf("relation %s/%s: unsupported type %q", rel.CharacterID, rel.RegionID, rel.Type)
		}
		if rel.Shift != "" && rel.Shift != types.ShiftDay && rel.Shift != types.ShiftNight {
			return fmt.Errorf("relation %s/%s: unsupported shift %q", rel.CharacterID, rel.RegionID, rel.Shift)
		}
	}

	events := make(map[string]bool, len(b.Events))
	for _, e := range b.Events {
		if e.ID == "" {
			return fmt.Errorf("event id is required")
		}
		if events[e.ID] {
			return fmt.Errorf("duplicate event %q", e.ID)
		}
		events[e.ID] = true
		if len(e.Triggers) == 0 {
			return fmt.Errorf("event %q: at least one trigger is needed", e.ID)
		}
		if e.Logic.Mode == narrative.LogicAtLeast && e.Logic.Count > len(e.Triggers) {
			return fmt.Errorf("event %q: AT_LEAST(%d) exceeds %d triggers", e.ID, e.Logic.Count, len(e.Triggers))
		}
	}
	return nil
}
