package messagepool_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-shipyard/filsim/chain/messagepool"
	"github.com/filecoin-shipyard/filsim/chain/state"
	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/chain/wallet"
)

func setup(t *testing.T) (*messagepool.MessagePool, *state.AccountStore, *wallet.Wallet) {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	as := state.NewAccountStore(ds)

	w, err := wallet.NewWallet(wallet.NewDSKeyStore(dssync.MutexWrap(datastore.NewMapDatastore())))
	require.NoError(t, err)

	mp, err := messagepool.New(as)
	require.NoError(t, err)

	return mp, as, w
}

func fundedKey(t *testing.T, as *state.AccountStore, w *wallet.Wallet, balance uint64) address.Address {
	addr, err := w.GenerateKey(types.KTSecp256k1)
	require.NoError(t, err)

	_, err = as.CreateAccount(context.Background(), addr, types.NewInt(balance))
	require.NoError(t, err)

	return addr
}

func signedMsg(t *testing.T, w *wallet.Wallet, msg types.Message) *types.SignedMessage {
	data, err := msg.Serialize()
	require.NoError(t, err)

	sig, err := w.Sign(context.Background(), msg.From, data)
	require.NoError(t, err)

	return &types.SignedMessage{Message: msg, Signature: *sig}
}

func transfer(from, to address.Address, value uint64) types.Message {
	return types.Message{
		To:         to,
		From:       from,
		Value:      types.NewInt(value),
		GasLimit:   1,
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
	}
}

func TestRejectsUnsupportedMethod(t *testing.T) {
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	msg := transfer(from, to, 10)
	msg.Method = 2

	_, err := mp.PushSigned(context.Background(), signedMsg(t, w, msg), true)
	require.ErrorIs(t, err, messagepool.ErrUnsupportedMethod)
	require.Len(t, mp.Pending(), 0)
}

func TestRejectsNonZeroNonce(t *testing.T) {
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	msg := transfer(from, to, 10)
	msg.Nonce = 3

	_, err := mp.PushSigned(context.Background(), signedMsg(t, w, msg), true)
	require.ErrorIs(t, err, messagepool.ErrInvalidNonce)
	require.Len(t, mp.Pending(), 0)
}

func TestRejectsInvalidProtocol(t *testing.T) {
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)

	idAddr, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	_, err = mp.PushSigned(context.Background(), signedMsg(t, w, transfer(from, idAddr, 10)), true)
	require.ErrorIs(t, err, messagepool.ErrInvalidProtocol)
	require.Len(t, mp.Pending(), 0)
}

func TestRejectsInvalidSignature(t *testing.T) {
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	// signed by somebody other than the sender
	sm := signedMsg(t, w, transfer(to, from, 1))
	sm.Message.From = from

	_, err := mp.PushSigned(context.Background(), sm, true)
	require.ErrorIs(t, err, messagepool.ErrInvalidSignature)
	require.Len(t, mp.Pending(), 0)
}

func TestRejectsInsufficientFunds(t *testing.T) {
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 5)
	to := fundedKey(t, as, w, 0)

	_, err := mp.PushSigned(context.Background(), signedMsg(t, w, transfer(from, to, 10)), true)
	require.ErrorIs(t, err, messagepool.ErrNotEnoughFunds)
	require.Len(t, mp.Pending(), 0)
}

func TestNonceProjection(t *testing.T) {
	ctx := context.Background()
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	for i := 0; i < 3; i++ {
		_, err := mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 1)), true)
		require.NoError(t, err)
	}

	pending := mp.Pending()
	require.Len(t, pending, 3)
	for i, sm := range pending {
		require.Equal(t, uint64(i), sm.Message.Nonce)
	}

	// the committed nonce moves only at mining time
	acct, err := as.GetAccount(ctx, from)
	require.NoError(t, err)
	require.Equal(t, uint64(0), acct.Nonce)
}

func TestProjectionCountsQueuedFunds(t *testing.T) {
	ctx := context.Background()
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 10)
	to := fundedKey(t, as, w, 0)

	_, err := mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 7)), true)
	require.NoError(t, err)

	// 7 attoFIL are already promised to the queued message
	_, err = mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 7)), true)
	require.ErrorIs(t, err, messagepool.ErrNotEnoughFunds)

	_, err = mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 3)), true)
	require.NoError(t, err)
	require.Len(t, mp.Pending(), 2)
}

func TestDrainAll(t *testing.T) {
	ctx := context.Background()
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	for i := 0; i < 2; i++ {
		_, err := mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 1)), true)
		require.NoError(t, err)
	}

	batch := mp.DrainAll()
	require.Len(t, batch, 2)
	require.Len(t, mp.Pending(), 0)
}

func TestOnAddRunsAfterPush(t *testing.T) {
	ctx := context.Background()
	mp, as, w := setup(t)
	from := fundedKey(t, as, w, 100)
	to := fundedKey(t, as, w, 0)

	var fired int
	mp.SetOnAdd(func() {
		// the pool lock is released before the hook runs; re-entering the
		// pool here must not deadlock
		mp.Pending()
		fired++
	})

	_, err := mp.PushSigned(ctx, signedMsg(t, w, transfer(from, to, 1)), true)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	// a rejected push fires no hook
	msg := transfer(from, to, 1)
	msg.Method = 9
	_, err = mp.PushSigned(ctx, signedMsg(t, w, msg), true)
	require.Error(t, err)
	require.Equal(t, 1, fired)
}
