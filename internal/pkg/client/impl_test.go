package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duel/internal/pkg/client"
	"github.com/vreid/duel/internal/pkg/config"
	"github.com/vreid/duel/internal/pkg/duel"
	"github.com/vreid/duel/internal/pkg/ledger"
	"github.com/vreid/duel/internal/pkg/oracle"
)

const entranceFee = uint64(5000000)

func newStack(t *testing.T) string {
	t.Helper()

	l := ledger.New(6)
	require.NoError(t, l.Mint("deployer", 100*entranceFee))

	store, err := config.New(config.Settings{
		EntranceFee: entranceFee,
		Vault:       "vault",
		Operator:    "deployer",
		Oracle:      oracle.Parameters{KeyHash: "0xkey", SubscriptionID: 1},
	})
	require.NoError(t, err)

	mock := oracle.NewMockCoordinator()

	engine := duel.NewEngine(duel.Options{
		Ledger:  l,
		Config:  store,
		Broker:  mock,
		Account: "duel",
		Logger:  zerolog.Nop(),
	})

	e := echo.New()
	(&ledger.LedgerService{Ledger: l}).Routes(e)
	oracle.ForMock(mock).Routes(e)
	(&duel.DuelService{Engine: engine, Config: store, Ledger: l}).Routes(e)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return server.URL
}

func TestStagingScenarioWithRake(t *testing.T) {
	t.Parallel()

	url := newStack(t)
	ctx := context.Background()

	deployer := client.New(url, "deployer", time.Second)
	bettor := client.New(url, "bettor", time.Second)

	_, err := deployer.Transfer(ctx, "bettor", entranceFee)
	require.NoError(t, err)

	require.NoError(t, deployer.SetRake(ctx, 100))

	view, err := bettor.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), view.Rake)
	assert.Equal(t, entranceFee, view.EntranceFee)

	deployerStart, err := deployer.Balance(ctx, "deployer")
	require.NoError(t, err)

	_, err = deployer.Enter(ctx)
	require.NoError(t, err)

	receipt, err := bettor.Enter(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.RoundID)

	escrow, err := deployer.Balance(ctx, "duel")
	require.NoError(t, err)
	assert.Equal(t, 2*entranceFee, escrow.Amount)

	require.NoError(t, deployer.Fulfill(ctx, receipt.RoundID, nil))

	round, err := deployer.Round(ctx, receipt.RoundID)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusSettled, round.Status)

	vault, err := deployer.Balance(ctx, "vault")
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), vault.Amount)

	deployerEnd, err := deployer.Balance(ctx, "deployer")
	require.NoError(t, err)

	bettorEnd, err := deployer.Balance(ctx, "bettor")
	require.NoError(t, err)

	if round.Winner == "deployer" {
		assert.Equal(t, deployerStart.Amount+entranceFee-100000, deployerEnd.Amount)
		assert.Equal(t, uint64(0), bettorEnd.Amount)
	} else {
		assert.Equal(t, deployerStart.Amount-entranceFee, deployerEnd.Amount)
		assert.Equal(t, 2*entranceFee-100000, bettorEnd.Amount)
	}

	escrow, err = deployer.Balance(ctx, "duel")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), escrow.Amount)
}

func TestFulfillWithFixedWords(t *testing.T) {
	t.Parallel()

	url := newStack(t)
	ctx := context.Background()

	deployer := client.New(url, "deployer", time.Second)
	bettor := client.New(url, "bettor", time.Second)

	_, err := deployer.Transfer(ctx, "bettor", entranceFee)
	require.NoError(t, err)

	_, err = deployer.Enter(ctx)
	require.NoError(t, err)

	receipt, err := bettor.Enter(ctx)
	require.NoError(t, err)

	require.NoError(t, bettor.Fulfill(ctx, receipt.RoundID, []uint64{1}))

	round, err := bettor.Round(ctx, receipt.RoundID)
	require.NoError(t, err)
	assert.Equal(t, "bettor", round.Winner)

	err = bettor.Fulfill(ctx, receipt.RoundID, []uint64{1})
	require.ErrorIs(t, err, client.ErrRequestFailed)
}

func TestErrorsCarryServerMessage(t *testing.T) {
	t.Parallel()

	url := newStack(t)
	ctx := context.Background()

	broke := client.New(url, "broke", time.Second)

	_, err := broke.Enter(ctx)
	require.ErrorIs(t, err, client.ErrRequestFailed)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "insufficient funds")

	err = broke.SetRake(ctx, 100)
	require.ErrorIs(t, err, client.ErrRequestFailed)
	assert.Contains(t, err.Error(), "403")
}

func TestUnreachableServer(t *testing.T) {
	t.Parallel()

	c := client.New("http://127.0.0.1:1", "deployer", 200*time.Millisecond)

	_, err := c.Config(context.Background())
	require.ErrorIs(t, err, client.ErrRequestFailed)
}
