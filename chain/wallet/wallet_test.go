package wallet_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/chain/wallet"
	"github.com/filecoin-shipyard/filsim/lib/sigs"
)

func TestGenerateAndSign(t *testing.T) {
	ctx := context.Background()

	w, err := wallet.NewWallet(wallet.NewDSKeyStore(dssync.MutexWrap(datastore.NewMapDatastore())))
	require.NoError(t, err)

	for _, typ := range []types.KeyType{types.KTSecp256k1, types.KTBLS} {
		addr, err := w.GenerateKey(typ)
		require.NoError(t, err)

		has, err := w.HasKey(addr)
		require.NoError(t, err)
		require.True(t, has)

		msg := []byte("sign me")
		sig, err := w.Sign(ctx, addr, msg)
		require.NoError(t, err)
		require.NoError(t, sigs.Verify(sig, addr, msg))
	}

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	require.Len(t, addrs, 2)
}

func TestSignUnknownKey(t *testing.T) {
	w, err := wallet.NewWallet(wallet.NewDSKeyStore(dssync.MutexWrap(datastore.NewMapDatastore())))
	require.NoError(t, err)

	stranger, err := address.NewSecp256k1Address([]byte("unmanaged public key material here"))
	require.NoError(t, err)

	_, err = w.Sign(context.Background(), stranger, []byte("msg"))
	require.ErrorIs(t, err, types.ErrKeyInfoNotFound)
}

func TestKeysSurviveRestart(t *testing.T) {
	ctx := context.Background()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	w, err := wallet.NewWallet(wallet.NewDSKeyStore(ds))
	require.NoError(t, err)

	addr, err := w.GenerateKey(types.KTBLS)
	require.NoError(t, err)

	// a wallet rebuilt over the same partition signs with the same key
	w2, err := wallet.NewWallet(wallet.NewDSKeyStore(ds))
	require.NoError(t, err)

	sig, err := w2.Sign(ctx, addr, []byte("still here"))
	require.NoError(t, err)
	require.NoError(t, sigs.Verify(sig, addr, []byte("still here")))
}
