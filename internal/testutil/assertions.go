package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForItems polls until at least n items of the queue type have the status,
// returning them oldest first.
func WaitForItems(t *testing.T, prov *MockProvider, qt types.QueueType, status types.QueueStatus, n int, timeout time.Duration) []types.QueueItem {
	t.Helper()
	var found []types.QueueItem
	WaitFor(t, timeout, func() bool {
		found = found[:0]
		for _, it := range prov.Items() {
			if it.Type == qt && it.Status == status {
				found = append(found, it)
			}
		}
		return len(found) >= n
	}, string(qt)+" items with status "+string(status))
	return found
}

// WaitForClaimCount polls until ClaimNext has been called at least n times,
// indicating workers have completed that many loop iterations.
func WaitForClaimCount(t *testing.T, prov *MockProvider, n int64, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return prov.ClaimCount() >= n
	}, "claim count >= target")
}
