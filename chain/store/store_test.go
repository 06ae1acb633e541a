package store_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/store"
	"github.com/filecoin-shipyard/filsim/chain/types"
)

func genesisTipset(t *testing.T) *types.TipSet {
	blk := &types.BlockHeader{
		Miner:         build.DefaultMinerAddress,
		Ticket:        &types.Ticket{VRFProof: []byte("genesis vrf proof padding")},
		ElectionProof: &types.ElectionProof{WinCount: build.DefaultWinCount},
		Parents:       []cid.Cid{},
		ParentWeight:  types.NewInt(0),
		Height:        0,
	}

	ts, err := types.NewTipSetWithCids([]*types.BlockHeader{blk}, []cid.Cid{build.GenesisCID})
	require.NoError(t, err)
	return ts
}

func childTipset(t *testing.T, parent *types.TipSet, n int) *types.TipSet {
	blks := make([]*types.BlockHeader, 0, n)
	for i := 0; i < n; i++ {
		blks = append(blks, &types.BlockHeader{
			Miner:         build.DefaultMinerAddress,
			Ticket:        &types.Ticket{VRFProof: []byte{byte(parent.Height()) + 1, byte(i)}},
			ElectionProof: &types.ElectionProof{WinCount: build.DefaultWinCount},
			Parents:       []cid.Cid{parent.Cids()[0]},
			ParentWeight:  types.NewInt(uint64(parent.Height()) + 1),
			Height:        parent.Height() + 1,
		})
	}

	ts, err := types.NewTipSet(blks)
	require.NoError(t, err)
	return ts
}

func TestGenesisRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	cs := store.NewChainStore(ds)
	gents := genesisTipset(t)
	require.NoError(t, cs.SetGenesis(ctx, gents))

	require.True(t, gents.Equals(cs.GetHeaviestTipSet()))
	require.True(t, gents.Equals(cs.GetGenesis()))

	// the genesis block must resolve under its well-known cid
	loaded, err := cs.GetTipsetByHeight(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, build.GenesisCID, loaded.Cids()[0])
}

func TestCommitAndReload(t *testing.T) {
	ctx := context.Background()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	cs := store.NewChainStore(ds)
	gents := genesisTipset(t)
	require.NoError(t, cs.SetGenesis(ctx, gents))

	tip := gents
	for i := 0; i < 5; i++ {
		tip = childTipset(t, tip, 1)
		require.NoError(t, cs.CommitTipset(ctx, tip, nil))
	}
	require.EqualValues(t, 5, cs.GetHeaviestTipSet().Height())

	// the persisted latest-tipset must restore both chain ends
	reloaded := store.NewChainStore(ds)
	require.NoError(t, reloaded.Load(ctx))
	require.EqualValues(t, 5, reloaded.GetHeaviestTipSet().Height())
	require.Equal(t, build.GenesisCID, reloaded.GetGenesis().Cids()[0])

	// every non-genesis tipset links an existing parent
	for h := tip.Height(); h > 0; h-- {
		ts, err := reloaded.GetTipsetByHeight(ctx, h)
		require.NoError(t, err)
		require.NotNil(t, ts)

		parent, err := reloaded.GetBlock(ctx, ts.Parents()[0])
		require.NoError(t, err)
		require.Equal(t, h-1, parent.Height)
	}
}

func TestMissingTipsetIsNil(t *testing.T) {
	ctx := context.Background()
	cs := store.NewChainStore(dssync.MutexWrap(datastore.NewMapDatastore()))

	ts, err := cs.GetTipsetByHeight(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, ts)
}

func TestBlockMessagesJoin(t *testing.T) {
	ctx := context.Background()
	cs := store.NewChainStore(dssync.MutexWrap(datastore.NewMapDatastore()))

	gents := genesisTipset(t)
	require.NoError(t, cs.SetGenesis(ctx, gents))

	sm := &types.SignedMessage{
		Message: types.Message{
			To:         build.DefaultMinerAddress,
			From:       build.BurntFundsAddress,
			Value:      types.NewInt(1),
			GasLimit:   1,
			GasFeeCap:  types.NewInt(1),
			GasPremium: types.NewInt(0),
		},
		Signature: types.Signature{Type: types.SigTypeSecp256k1, Data: []byte("sig")},
	}

	ts := childTipset(t, gents, 2)
	require.NoError(t, cs.CommitTipset(ctx, ts, []*types.SignedMessage{sm}))

	// messages attribute to the first block only
	msgs, err := cs.GetBlockMessages(ctx, ts.Cids()[0])
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, sm.Cid(), msgs[0].Cid())

	msgs, err = cs.GetBlockMessages(ctx, ts.Cids()[1])
	require.NoError(t, err)
	require.Len(t, msgs, 0)

	got, err := cs.GetSignedMessage(ctx, sm.Cid())
	require.NoError(t, err)
	require.Equal(t, sm.Message.From, got.Message.From)
}

func TestTipsetNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs := store.NewChainStore(dssync.MutexWrap(datastore.NewMapDatastore()))
	gents := genesisTipset(t)
	require.NoError(t, cs.SetGenesis(ctx, gents))

	sub := cs.SubTipsetChanges(ctx)

	ts := childTipset(t, gents, 1)
	require.NoError(t, cs.CommitTipset(ctx, ts, nil))
	cs.NotifyTipset(ts)

	got := <-sub
	require.True(t, ts.Equals(got))
}
