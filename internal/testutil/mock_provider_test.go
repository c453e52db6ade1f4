package testutil_test

import (
	"testing"

	"github.com/dwsmith1983/narrator/internal/provider/providertest"
	"github.com/dwsmith1983/narrator/internal/testutil"
)

func TestMockProviderConformance(t *testing.T) {
	providertest.RunAll(t, testutil.NewMockProvider())
}
