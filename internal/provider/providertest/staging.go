package providertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

func newStaging(id, regionID string, approved time.Time) types.Staging {
	sprite := "sprites/" + id + ".png"
	return types.Staging{
		ID:         id,
		RegionID:   regionID,
		LocationID: "ct-loc",
		WorldID:    "ct-world",
		GameTime:   base,
		ApprovedAt: approved,
		TTLHours:   8,
		ApprovedBy: "ct-director",
		Source:     types.SourceRuleBased,
		IsActive:   true,
		NPCs: []types.StagedNpc{
			{CharacterID: "ct-npc-1", Name: "Mira", SpriteAsset: &sprite, IsPresent: true, Reasoning: "Lives here"},
			{CharacterID: "ct-npc-2", Name: "Tobin", IsPresent: false, Reasoning: "Previously staged"},
		},
	}
}

// TestStagingExclusivity verifies approving a staging deactivates the
// previous one for the same region.
func TestStagingExclusivity(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	region := "ct-region-excl"

	require.NoError(t, prov.SaveApprovedStaging(ctx, newStaging("ct-stg-a", region, base)))
	require.NoError(t, prov.SaveApprovedStaging(ctx, newStaging("ct-stg-b", region, base.Add(time.Minute))))

	current, err := prov.GetCurrentStaging(ctx, region)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "ct-stg-b", current.ID)
	assert.True(t, current.IsActive)

	first, err := prov.GetStaging(ctx, "ct-stg-a")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.IsActive)

	history, err := prov.ListStagingHistory(ctx, region, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ct-stg-b", history[0].ID)
	assert.Equal(t, "ct-stg-a", history[1].ID)

	history, err = prov.ListStagingHistory(ctx, region, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// TestStagingOptionalFields verifies staging fields and NPC rows survive a
// round trip, keeping absent and empty optionals distinct.
func TestStagingOptionalFields(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	bare := newStaging("ct-stg-bare", "ct-region-opt-1", base)
	require.NoError(t, prov.SaveApprovedStaging(ctx, bare))

	empty := ""
	guided := newStaging("ct-stg-guided", "ct-region-opt-2", base)
	guided.Guidance = &empty
	guided.Source = types.SourceDmCustomized
	guided.NPCs[1].IsHiddenFromPlayers = true
	require.NoError(t, prov.SaveApprovedStaging(ctx, guided))

	got, err := prov.GetStaging(ctx, "ct-stg-bare")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Guidance)
	assert.Equal(t, "ct-loc", got.LocationID)
	assert.Equal(t, "ct-world", got.WorldID)
	assert.Equal(t, 8, got.TTLHours)
	assert.Equal(t, "ct-director", got.ApprovedBy)
	assert.Equal(t, types.SourceRuleBased, got.Source)
	assert.True(t, base.Equal(got.GameTime))
	assert.True(t, base.Equal(got.ApprovedAt))
	require.Len(t, got.NPCs, 2)
	assert.Equal(t, "ct-npc-1", got.NPCs[0].CharacterID)
	require.NotNil(t, got.NPCs[0].SpriteAsset)
	assert.Equal(t, "sprites/ct-stg-bare.png", *got.NPCs[0].SpriteAsset)
	assert.Nil(t, got.NPCs[0].PortraitAsset)
	assert.Nil(t, got.NPCs[1].SpriteAsset)
	assert.Equal(t, "Previously staged", got.NPCs[1].Reasoning)

	got, err = prov.GetStaging(ctx, "ct-stg-guided")
	require.NoError(t, err)
	require.NotNil(t, got.Guidance)
	assert.Equal(t, "", *got.Guidance)
	assert.Equal(t, types.SourceDmCustomized, got.Source)
	assert.True(t, got.NPCs[1].IsHiddenFromPlayers)

	missing, err := prov.GetStaging(ctx, "ct-stg-none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := prov.GetCurrentStaging(ctx, "ct-region-none")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// TestStagingRegionsIndependent verifies approvals in one region leave other
// regions untouched.
func TestStagingRegionsIndependent(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.SaveApprovedStaging(ctx, newStaging("ct-stg-r1", "ct-region-ind-1", base)))
	require.NoError(t, prov.SaveApprovedStaging(ctx, newStaging("ct-stg-r2", "ct-region-ind-2", base)))

	for region, want := range map[string]string{"ct-region-ind-1": "ct-stg-r1", "ct-region-ind-2": "ct-stg-r2"} {
		got, err := prov.GetCurrentStaging(ctx, region)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.ID)
		assert.True(t, got.IsActive)
	}
}

// TestStagingConcurrentApprovals verifies at most one staging stays active
// when approvals for the same region race.
func TestStagingConcurrentApprovals(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	region := "ct-region-race"
	const n = 5

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = prov.SaveApprovedStaging(ctx, newStaging(fmt.Sprintf("ct-stg-race-%d", i), region, base.Add(time.Duration(i)*time.Second)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	current, err := prov.GetCurrentStaging(ctx, region)
	require.NoError(t, err)
	require.NotNil(t, current)

	active := 0
	for i := 0; i < n; i++ {
		got, err := prov.GetStaging(ctx, fmt.Sprintf("ct-stg-race-%d", i))
		require.NoError(t, err)
		require.NotNil(t, got)
		if got.IsActive {
			active++
			assert.Equal(t, current.ID, got.ID)
		}
	}
	assert.Equal(t, 1, active)
}
