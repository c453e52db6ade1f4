// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/narrator/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("QueueFIFO", func(t *testing.T) { TestQueueFIFO(t, prov) })
	t.Run("QueueClaimRace", func(t *testing.T) { TestQueueClaimRace(t, prov) })
	t.Run("QueueConcurrentDrain", func(t *testing.T) { TestQueueConcurrentDrain(t, prov) })
	t.Run("QueueTransition", func(t *testing.T) { TestQueueTransition(t, prov) })
	t.Run("QueueSetResultOnce", func(t *testing.T) { TestQueueSetResultOnce(t, prov) })
	t.Run("QueueListFinishedSince", func(t *testing.T) { TestQueueListFinishedSince(t, prov) })
	t.Run("QueueOptionalFields", func(t *testing.T) { TestQueueOptionalFields(t, prov) })
	t.Run("QueueListAndCount", func(t *testing.T) { TestQueueListAndCount(t, prov) })
	t.Run("QueueCancelByCorrelation", func(t *testing.T) { TestQueueCancelByCorrelation(t, prov) })
	t.Run("StagingExclusivity", func(t *testing.T) { TestStagingExclusivity(t, prov) })
	t.Run("StagingOptionalFields", func(t *testing.T) { TestStagingOptionalFields(t, prov) })
	t.Run("StagingRegionsIndependent", func(t *testing.T) { TestStagingRegionsIndependent(t, prov) })
	t.Run("StagingConcurrentApprovals", func(t *testing.T) { TestStagingConcurrentApprovals(t, prov) })
}
