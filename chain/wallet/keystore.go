package wallet

import (
	"context"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

// dsKeyStore persists key material in a namespaced key/value partition.
// Writes are write-through; the wallet keeps the in-memory cache.
type dsKeyStore struct {
	ds datastore.Datastore
}

func NewDSKeyStore(ds datastore.Datastore) types.KeyStore {
	return &dsKeyStore{ds: ds}
}

func (ks *dsKeyStore) List() ([]string, error) {
	res, err := ks.ds.Query(context.TODO(), query.Query{KeysOnly: true})
	if err != nil {
		return nil, xerrors.Errorf("querying keystore: %w", err)
	}
	defer res.Close() //nolint:errcheck

	var out []string
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		out = append(out, datastore.NewKey(r.Key).BaseNamespace())
	}

	return out, nil
}

func (ks *dsKeyStore) Get(name string) (types.KeyInfo, error) {
	data, err := ks.ds.Get(context.TODO(), datastore.NewKey(name))
	if err != nil {
		if err == datastore.ErrNotFound {
			return types.KeyInfo{}, types.ErrKeyInfoNotFound
		}
		return types.KeyInfo{}, err
	}

	ki, err := types.DecodeKeyInfo(data)
	if err != nil {
		return types.KeyInfo{}, xerrors.Errorf("decoding key info: %w", err)
	}

	return *ki, nil
}

func (ks *dsKeyStore) Put(name string, ki types.KeyInfo) error {
	data, err := ki.Serialize()
	if err != nil {
		return xerrors.Errorf("serializing key info: %w", err)
	}

	return ks.ds.Put(context.TODO(), datastore.NewKey(name), data)
}

func (ks *dsKeyStore) Delete(name string) error {
	return ks.ds.Delete(context.TODO(), datastore.NewKey(name))
}
