package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess/ledgertest"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/store"
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/memory"
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/sqlite"
)

func TestDriverRegistry(t *testing.T) {
	assert.Equal(t, []string{"memory", "sqlite"}, store.AvailableDrivers())

	_, err := store.New(&store.DriverConfig{Driver: "postgres"})
	assert.ErrorContains(t, err, "unknown driver")
}

func TestMemoryDriver(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) familyaccess.Ledger {
		d, err := store.Open(context.Background(), &store.DriverConfig{Driver: "memory"})
		require.NoError(t, err)
		assert.Equal(t, "memory", d.Name())
		return d.Ledger()
	})
}
