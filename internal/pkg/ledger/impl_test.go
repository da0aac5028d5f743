package ledger_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duel/internal/pkg/ledger"
)

func TestBalanceOfUnseenAccount(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)

	assert.Equal(t, uint64(0), l.BalanceOf("nobody"))
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("deployer", 100))

	require.NoError(t, l.Transfer("deployer", "bettor", 40))

	assert.Equal(t, uint64(60), l.BalanceOf("deployer"))
	assert.Equal(t, uint64(40), l.BalanceOf("bettor"))
}

func TestTransferInsufficientFunds(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("deployer", 10))

	err := l.Transfer("deployer", "bettor", 11)

	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, uint64(10), l.BalanceOf("deployer"))
	assert.Equal(t, uint64(0), l.BalanceOf("bettor"))
}

func TestTransferToSelf(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("a", 10))

	require.NoError(t, l.Transfer("a", "a", 10))

	assert.Equal(t, uint64(10), l.BalanceOf("a"))
}

func TestDisburseIsAllOrNothing(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("pot", 100))

	err := l.Disburse("pot",
		ledger.Credit{To: "winner", Amount: 99},
		ledger.Credit{To: "vault", Amount: 2},
	)

	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, uint64(100), l.BalanceOf("pot"))
	assert.Equal(t, uint64(0), l.BalanceOf("winner"))
	assert.Equal(t, uint64(0), l.BalanceOf("vault"))

	require.NoError(t, l.Disburse("pot",
		ledger.Credit{To: "winner", Amount: 99},
		ledger.Credit{To: "vault", Amount: 1},
	))

	assert.Equal(t, uint64(0), l.BalanceOf("pot"))
	assert.Equal(t, uint64(99), l.BalanceOf("winner"))
	assert.Equal(t, uint64(1), l.BalanceOf("vault"))
}

func TestDisburseRejectsEmptyRecipient(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("pot", 1))

	require.ErrorIs(t, l.Disburse("pot", ledger.Credit{Amount: 1}), ledger.ErrInvalidAmount)
	assert.Equal(t, uint64(1), l.BalanceOf("pot"))
}

func TestMintOverflow(t *testing.T) {
	t.Parallel()

	l := ledger.New(0)
	require.NoError(t, l.Mint("a", math.MaxUint64))

	require.ErrorIs(t, l.Mint("a", 1), ledger.ErrOverflow)
	assert.Equal(t, uint64(math.MaxUint64), l.BalanceOf("a"))
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	l := ledger.New(6)
	require.NoError(t, l.Mint("b", 5000000))
	require.NoError(t, l.Mint("a", 1))

	snapshot := l.Snapshot()

	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Account)
	assert.Equal(t, "0.000001", snapshot[0].Display)
	assert.Equal(t, "b", snapshot[1].Account)
	assert.Equal(t, "5.000000", snapshot[1].Display)
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5.000000", ledger.FormatAmount(5000000, 6))
	assert.Equal(t, "0.100000", ledger.FormatAmount(100000, 6))
	assert.Equal(t, "42", ledger.FormatAmount(42, 0))
}
