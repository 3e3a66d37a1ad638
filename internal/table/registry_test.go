package table

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feltworks/holdem/internal/wallet"
)

func testRegistry(t *testing.T) (*Registry, *wallet.MemoryLedger) {
	t.Helper()
	ledger := wallet.NewMemoryLedger()
	ledger.Deposit("alice", 1000)
	r := NewRegistry(ledger, nil, nil, log.New(io.Discard))
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r, ledger
}

func TestRegistryCreateAndGet(t *testing.T) {
	r, _ := testRegistry(t)

	tbl, err := r.Create(Config{Name: "low stakes", SmallBlind: 5, BigBlind: 10, MinBuyIn: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, tbl.ID(), "id is generated when omitted")

	got, err := r.Get(tbl.ID())
	require.NoError(t, err)
	assert.Same(t, tbl, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownTable)

	assert.Len(t, r.List(), 1)
}

func TestRegistryRejectsBadBlinds(t *testing.T) {
	r, _ := testRegistry(t)

	_, err := r.Create(Config{SmallBlind: 10, BigBlind: 5})
	require.Error(t, err)

	_, err = r.Create(Config{SmallBlind: 0, BigBlind: 10})
	require.Error(t, err)
}

func TestRegistryCloseRequiresEmptyTable(t *testing.T) {
	ctx := context.Background()
	r, _ := testRegistry(t)

	tbl, err := r.Create(Config{SmallBlind: 5, BigBlind: 10, MinBuyIn: 100, MaxBuyIn: 500})
	require.NoError(t, err)

	require.NoError(t, tbl.Join(ctx, "alice", 1, 200))
	assert.ErrorIs(t, r.Close(ctx, tbl.ID()), ErrTableBusy)

	require.NoError(t, tbl.Leave(ctx, "alice"))
	require.NoError(t, r.Close(ctx, tbl.ID()))

	_, err = r.Get(tbl.ID())
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestRegistryShutdownRefundsPlayers(t *testing.T) {
	ctx := context.Background()
	r, ledger := testRegistry(t)

	tbl, err := r.Create(Config{SmallBlind: 5, BigBlind: 10, MinBuyIn: 100, MaxBuyIn: 500})
	require.NoError(t, err)
	require.NoError(t, tbl.Join(ctx, "alice", 1, 200))

	require.NoError(t, r.Shutdown(ctx))

	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1000, balance)
	assert.Empty(t, r.List())
}
