package types_test

import (
	"encoding/json"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/types"
)

func testHeader(t *testing.T, height int64, parents []cid.Cid) *types.BlockHeader {
	return &types.BlockHeader{
		Miner:         build.DefaultMinerAddress,
		Ticket:        &types.Ticket{VRFProof: []byte{byte(height), 1, 2, 3}},
		ElectionProof: &types.ElectionProof{WinCount: build.DefaultWinCount},
		Parents:       parents,
		ParentWeight:  types.NewInt(uint64(height)),
		Height:        abi.ChainEpoch(height),
		Timestamp:     1700000000,
	}
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	blk := testHeader(t, 3, []cid.Cid{build.GenesisCID})

	data, err := blk.Serialize()
	require.NoError(t, err)

	got, err := types.DecodeBlock(data)
	require.NoError(t, err)

	require.Equal(t, blk.Cid(), got.Cid())
	require.Equal(t, blk.Miner, got.Miner)
	require.Equal(t, blk.Parents, got.Parents)
	require.EqualValues(t, 3, got.Height)
	require.Equal(t, build.DefaultWinCount, got.ElectionProof.WinCount)
	require.True(t, blk.Ticket.Equals(got.Ticket))
	require.Zero(t, types.BigCmp(blk.ParentWeight, got.ParentWeight))
}

func TestSignedMessageCidCoversSignature(t *testing.T) {
	msg := types.Message{
		To:         build.DefaultMinerAddress,
		From:       build.BurntFundsAddress,
		Nonce:      7,
		Value:      types.NewInt(10),
		GasLimit:   5,
		GasFeeCap:  types.NewInt(2),
		GasPremium: types.NewInt(1),
	}

	a := types.SignedMessage{Message: msg, Signature: types.Signature{Type: types.SigTypeSecp256k1, Data: []byte("one")}}
	b := types.SignedMessage{Message: msg, Signature: types.Signature{Type: types.SigTypeSecp256k1, Data: []byte("two")}}

	require.NotEqual(t, a.Cid(), b.Cid())
	require.Equal(t, a.Message.Cid(), b.Message.Cid())

	data, err := a.Serialize()
	require.NoError(t, err)

	got, err := types.DecodeSignedMessage(data)
	require.NoError(t, err)
	require.Equal(t, a.Cid(), got.Cid())
	require.Equal(t, uint64(7), got.Message.Nonce)
	require.Equal(t, a.Signature.Data, got.Signature.Data)
}

func TestMessageFunds(t *testing.T) {
	msg := types.Message{
		Value:      types.NewInt(100),
		GasLimit:   10,
		GasFeeCap:  types.NewInt(3),
		GasPremium: types.NewInt(2),
	}

	require.Zero(t, types.BigCmp(types.NewInt(30), msg.GasCost()))
	require.Zero(t, types.BigCmp(types.NewInt(20), msg.BaseFee()))
	require.Zero(t, types.BigCmp(types.NewInt(130), msg.RequiredFunds()))
}

func TestTipsetInvariants(t *testing.T) {
	parents := []cid.Cid{build.GenesisCID}

	_, err := types.NewTipSet(nil)
	require.Error(t, err)

	_, err = types.NewTipSet([]*types.BlockHeader{
		testHeader(t, 1, parents),
		testHeader(t, 2, parents),
	})
	require.Error(t, err)

	a := testHeader(t, 1, parents)
	b := testHeader(t, 1, []cid.Cid{a.Cid()})
	_, err = types.NewTipSet([]*types.BlockHeader{a, b})
	require.Error(t, err)

	c := testHeader(t, 1, parents)
	ts, err := types.NewTipSet([]*types.BlockHeader{a, c})
	require.NoError(t, err)
	require.Len(t, ts.Cids(), 2)
	require.EqualValues(t, 1, ts.Height())
	require.Equal(t, parents, ts.Parents())
}

func TestTipsetJSONRoundTrip(t *testing.T) {
	ts, err := types.NewTipSet([]*types.BlockHeader{testHeader(t, 4, []cid.Cid{build.GenesisCID})})
	require.NoError(t, err)

	data, err := json.Marshal(ts)
	require.NoError(t, err)

	var got types.TipSet
	require.NoError(t, json.Unmarshal(data, &got))
	require.True(t, ts.Equals(&got))
}
