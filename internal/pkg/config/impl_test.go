package config_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duel/internal/pkg/config"
	"github.com/vreid/duel/internal/pkg/oracle"
)

func newStore(t *testing.T) *config.Store {
	t.Helper()

	store, err := config.New(config.Settings{
		EntranceFee: 5000000,
		Rake:        0,
		Vault:       "vault",
		Operator:    "deployer",
		Oracle: oracle.Parameters{
			KeyHash:        "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc",
			SubscriptionID: 1,
			Coordinator:    "coordinator",
		},
	})
	require.NoError(t, err)

	return store
}

func TestNewInitializesSettings(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	assert.Equal(t, uint64(5000000), store.EntranceFee())
	assert.Equal(t, uint32(0), store.Rake())
	assert.Equal(t, "vault", store.Vault())
	assert.Equal(t, "deployer", store.Operator())
	assert.Equal(t, "coordinator", store.OracleParameters().Coordinator)
	assert.Equal(t, uint64(1), store.OracleParameters().SubscriptionID)
	assert.Equal(t, uint32(1), store.OracleParameters().NumWords)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := config.New(config.Settings{Vault: "v", Operator: "o"})
	require.ErrorIs(t, err, config.ErrInvalidFee)

	_, err = config.New(config.Settings{EntranceFee: 1, Rake: 10001, Vault: "v", Operator: "o"})
	require.ErrorIs(t, err, config.ErrRakeOutOfRange)

	_, err = config.New(config.Settings{EntranceFee: 1, Operator: "o"})
	require.ErrorIs(t, err, config.ErrMissingAccount)
}

func TestSetRake(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.NoError(t, store.SetRake("deployer", 100))
	assert.Equal(t, uint32(100), store.Rake())

	require.NoError(t, store.SetRake("deployer", config.MaxRake))
	assert.Equal(t, uint32(config.MaxRake), store.Rake())
}

func TestSetRakeUnauthorized(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.ErrorIs(t, store.SetRake("bettor", 100), config.ErrUnauthorized)
	assert.Equal(t, uint32(0), store.Rake())
}

func TestSetRakeOutOfRange(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.ErrorIs(t, store.SetRake("deployer", 10001), config.ErrRakeOutOfRange)
	assert.Equal(t, uint32(0), store.Rake())
}

func TestSetVault(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.ErrorIs(t, store.SetVault("bettor", "elsewhere"), config.ErrUnauthorized)
	require.ErrorIs(t, store.SetVault("deployer", ""), config.ErrMissingAccount)
	require.NoError(t, store.SetVault("deployer", "treasury"))

	assert.Equal(t, "treasury", store.Vault())
	assert.Equal(t, "treasury", store.Snapshot().Vault)
}

func TestRakeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), config.RakeOf(10000000, 0))
	assert.Equal(t, uint64(100000), config.RakeOf(10000000, 100))
	assert.Equal(t, uint64(10000000), config.RakeOf(10000000, config.MaxRake))
	assert.Equal(t, uint64(0), config.RakeOf(99, 100))
	assert.Equal(t, uint64(3), config.RakeOf(333, 100))

	pot := uint64(math.MaxUint64)
	assert.Equal(t, pot/2, config.RakeOf(pot, 5000))
}
