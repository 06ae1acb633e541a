package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-fil-markets/storagemarket"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-shipyard/filsim/api"
	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/node"
	"github.com/filecoin-shipyard/filsim/node/config"
	"github.com/filecoin-shipyard/filsim/node/repo"
)

func testConfig(blockTime time.Duration) *config.FullNode {
	cfg := config.DefaultFullNode()
	cfg.Chain.BlockTime = config.Duration(blockTime)
	cfg.Wallet.Seed = 42
	cfg.Wallet.Accounts = 2
	cfg.Wallet.DefaultBalanceFIL = 1
	return cfg
}

func startNode(t *testing.T, r repo.Repo) *node.Node {
	ctx := context.Background()

	nd := node.New(r)
	require.NoError(t, nd.Init(ctx))
	require.NoError(t, nd.WaitForReady(ctx))

	return nd
}

func waitTipset(t *testing.T, ch chan *types.TipSet) *types.TipSet {
	select {
	case ts := <-ch:
		return ts
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a tipset event")
		return nil
	}
}

func TestNotReadyGating(t *testing.T) {
	nd := node.New(repo.NewMemory(testConfig(0)))

	_, err := nd.ChainHead(context.Background())
	require.ErrorIs(t, err, api.ErrNotReady)
}

func TestGenesisIsEnsured(t *testing.T) {
	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(0)))
	defer nd.Stop(ctx) //nolint:errcheck

	gen, err := nd.ChainGetGenesis(ctx)
	require.NoError(t, err)
	require.Equal(t, build.GenesisCID, gen.Cids()[0])
	require.EqualValues(t, 0, gen.Height())

	head, err := nd.ChainHead(ctx)
	require.NoError(t, err)
	require.True(t, gen.Equals(head))

	addrs, err := nd.WalletList(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	for _, a := range addrs {
		bal, err := nd.WalletBalance(ctx, a)
		require.NoError(t, err)
		require.Zero(t, types.BigCmp(types.BigMul(types.NewInt(1), types.NewInt(1_000_000_000_000_000_000)), bal))
	}
}

func TestSeededAccountsAreDeterministic(t *testing.T) {
	ctx := context.Background()

	nd1 := startNode(t, repo.NewMemory(testConfig(0)))
	addrs1, err := nd1.WalletList(ctx)
	require.NoError(t, err)
	require.NoError(t, nd1.Stop(ctx))

	nd2 := startNode(t, repo.NewMemory(testConfig(0)))
	addrs2, err := nd2.WalletList(ctx)
	require.NoError(t, err)
	require.NoError(t, nd2.Stop(ctx))

	require.Equal(t, addrs1, addrs2)
}

func TestInstaminePush(t *testing.T) {
	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(0)))
	defer nd.Stop(ctx) //nolint:errcheck

	addrs, err := nd.WalletList(ctx)
	require.NoError(t, err)

	events := nd.TipsetEvents(ctx)

	sm, err := nd.MpoolPushMessage(ctx, &types.Message{
		To:         addrs[1],
		From:       addrs[0],
		Value:      types.NewInt(10),
		GasLimit:   1,
		GasFeeCap:  types.NewInt(1),
		GasPremium: types.NewInt(0),
	}, nil)
	require.NoError(t, err)

	ts := waitTipset(t, events)
	require.EqualValues(t, 1, ts.Height())

	msgs, err := nd.ChainGetBlockMessages(ctx, ts.Cids()[0])
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, sm.Cid(), msgs[0].Cid())

	bal, err := nd.WalletBalance(ctx, addrs[1])
	require.NoError(t, err)
	require.Zero(t, types.BigCmp(types.BigAdd(types.BigMul(types.NewInt(1), types.NewInt(1_000_000_000_000_000_000)), types.NewInt(10)), bal))
}

func TestNonceMonotonicity(t *testing.T) {
	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(0)))
	defer nd.Stop(ctx) //nolint:errcheck

	addrs, err := nd.WalletList(ctx)
	require.NoError(t, err)

	events := nd.TipsetEvents(ctx)

	var nonces []uint64
	for i := 0; i < 5; i++ {
		sm, err := nd.MpoolPushMessage(ctx, &types.Message{
			To:         addrs[1],
			From:       addrs[0],
			Value:      types.NewInt(1),
			GasLimit:   1,
			GasFeeCap:  types.NewInt(0),
			GasPremium: types.NewInt(0),
		}, nil)
		require.NoError(t, err)
		nonces = append(nonces, sm.Message.Nonce)

		waitTipset(t, events)
	}

	// the applied nonces form the contiguous sequence 0, 1, 2, ...
	for i, nonce := range nonces {
		require.Equal(t, uint64(i), nonce)
	}
}

func TestBalanceConservation(t *testing.T) {
	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(time.Hour)))
	defer nd.Stop(ctx) //nolint:errcheck

	addrs, err := nd.WalletList(ctx)
	require.NoError(t, err)

	total := func() types.BigInt {
		sum := types.NewInt(0)
		watch := append([]address.Address{}, addrs...)
		watch = append(watch, build.DefaultMinerAddress, build.BurntFundsAddress)
		for _, a := range watch {
			bal, err := nd.WalletBalance(ctx, a)
			require.NoError(t, err)
			sum = types.BigAdd(sum, bal)
		}
		return sum
	}

	before := total()

	for i := 0; i < 3; i++ {
		_, err := nd.MpoolPushMessage(ctx, &types.Message{
			To:         addrs[1],
			From:       addrs[0],
			Value:      types.NewInt(100),
			GasLimit:   10,
			GasFeeCap:  types.NewInt(3),
			GasPremium: types.NewInt(2),
		}, nil)
		require.NoError(t, err)
		require.NoError(t, nd.MineTipset(ctx, 1))
	}

	require.Zero(t, types.BigCmp(before, total()))
}

func TestRestartRecovery(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory(testConfig(0))

	nd := startNode(t, r)

	var lastSeen types.TipSet
	events := nd.TipsetEvents(ctx)
	for i := 0; i < 5; i++ {
		require.NoError(t, nd.MineTipset(ctx, 1))
		lastSeen = *waitTipset(t, events)
	}
	require.NoError(t, nd.Stop(ctx))

	// the durable tip must match the last observed tipset event
	nd2 := startNode(t, r)
	defer nd2.Stop(ctx) //nolint:errcheck

	head, err := nd2.ChainHead(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, head.Height())
	require.True(t, lastSeen.Equals(head))

	require.NoError(t, nd2.MineTipset(ctx, 1))
	head, err = nd2.ChainHead(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6, head.Height())
}

func TestTimedMining(t *testing.T) {
	mock := clock.NewMock()
	real := build.Clock
	build.Clock = mock
	defer func() { build.Clock = real }()

	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(time.Second)))
	defer nd.Stop(ctx) //nolint:errcheck

	events := nd.TipsetEvents(ctx)

	// let the mining loop arm its ticker before advancing the clock
	time.Sleep(100 * time.Millisecond)
	mock.Add(time.Second)

	ts := waitTipset(t, events)
	require.EqualValues(t, 1, ts.Height())
}

func TestDealLifecycleThroughNode(t *testing.T) {
	ctx := context.Background()
	nd := startNode(t, repo.NewMemory(testConfig(0)))
	defer nd.Stop(ctx) //nolint:errcheck

	addrs, err := nd.WalletList(ctx)
	require.NoError(t, err)

	root, err := nd.PutObject(ctx, []byte("deal payload bytes"))
	require.NoError(t, err)

	has, err := nd.ClientHasLocal(ctx, root)
	require.NoError(t, err)
	require.True(t, has)

	pcid, err := nd.ClientStartDeal(ctx, &api.StartDealParams{
		Data:              &storagemarket.DataRef{Root: root},
		Wallet:            addrs[0],
		Miner:             build.DefaultMinerAddress,
		EpochPrice:        types.NewInt(1),
		MinBlocksDuration: 10,
	})
	require.NoError(t, err)

	deal, err := nd.ClientGetDealInfo(ctx, *pcid)
	require.NoError(t, err)
	require.Equal(t, storagemarket.StorageDealActive, deal.State)

	list, err := nd.ClientListDeals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	offer, err := nd.ClientMinerQueryOffer(ctx, root)
	require.NoError(t, err)
	require.Zero(t, types.BigCmp(types.NewInt(uint64(len("deal payload bytes"))*2), offer.MinPrice))
}
