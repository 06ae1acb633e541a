package wallet

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	_ "github.com/filecoin-shipyard/filsim/lib/sigs/bls"
	_ "github.com/filecoin-shipyard/filsim/lib/sigs/secp"

	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/lib/sigs"
)

var log = logging.Logger("wallet")

const (
	KNamePrefix = "wallet-"
	KDefault    = "default"
)

type Wallet struct {
	keys     map[address.Address]*Key
	keystore types.KeyStore

	lk sync.Mutex
}

func NewWallet(keystore types.KeyStore) (*Wallet, error) {
	w := &Wallet{
		keys:     make(map[address.Address]*Key),
		keystore: keystore,
	}

	return w, nil
}

func (w *Wallet) Sign(ctx context.Context, addr address.Address, msg []byte) (*crypto.Signature, error) {
	ki, err := w.findKey(addr)
	if err != nil {
		return nil, err
	}
	if ki == nil {
		return nil, xerrors.Errorf("signing using key '%s': %w", addr.String(), types.ErrKeyInfoNotFound)
	}

	return sigs.Sign(ActSigType(ki.Type), ki.PrivateKey, msg)
}

func (w *Wallet) findKey(addr address.Address) (*Key, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	k, ok := w.keys[addr]
	if ok {
		return k, nil
	}
	if w.keystore == nil {
		log.Warn("findKey didn't find the key in in-memory wallet")
		return nil, nil
	}

	ki, err := w.keystore.Get(KNamePrefix + addr.String())
	if err != nil {
		if xerrors.Is(err, types.ErrKeyInfoNotFound) {
			return nil, nil
		}
		return nil, xerrors.Errorf("getting from keystore: %w", err)
	}
	k, err = NewKey(ki)
	if err != nil {
		return nil, xerrors.Errorf("decoding from keystore: %w", err)
	}
	w.keys[k.Address] = k
	return k, nil
}

func (w *Wallet) Export(addr address.Address) (*types.KeyInfo, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to find key to export: %w", err)
	}
	if k == nil {
		return nil, types.ErrKeyInfoNotFound
	}

	return &k.KeyInfo, nil
}

func (w *Wallet) Import(ki *types.KeyInfo) (address.Address, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	k, err := NewKey(*ki)
	if err != nil {
		return address.Undef, xerrors.Errorf("failed to make key: %w", err)
	}

	if err := w.keystore.Put(KNamePrefix+k.Address.String(), k.KeyInfo); err != nil {
		return address.Undef, xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[k.Address] = k

	return k.Address, nil
}

func (w *Wallet) ListAddrs() ([]address.Address, error) {
	all, err := w.keystore.List()
	if err != nil {
		return nil, xerrors.Errorf("listing keystore: %w", err)
	}

	sort.Strings(all)

	out := make([]address.Address, 0, len(all))
	for _, a := range all {
		if len(a) <= len(KNamePrefix) || a[:len(KNamePrefix)] != KNamePrefix {
			continue
		}

		addr, err := address.NewFromString(a[len(KNamePrefix):])
		if err != nil {
			return nil, xerrors.Errorf("converting name to address: %w", err)
		}
		out = append(out, addr)
	}

	return out, nil
}

func (w *Wallet) HasKey(addr address.Address) (bool, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return false, err
	}
	return k != nil, nil
}

func (w *Wallet) GenerateKey(typ types.KeyType) (address.Address, error) {
	pk, err := sigs.Generate(ActSigType(typ))
	if err != nil {
		return address.Undef, err
	}

	return w.importGenerated(typ, pk)
}

// GenerateKeyFromSeed derives a key from the given entropy source. Seeding
// with a deterministic reader yields the same address every run.
func (w *Wallet) GenerateKeyFromSeed(typ types.KeyType, seed io.Reader) (address.Address, error) {
	pk, err := sigs.GenerateFromSeed(ActSigType(typ), seed)
	if err != nil {
		return address.Undef, err
	}

	return w.importGenerated(typ, pk)
}

func (w *Wallet) importGenerated(typ types.KeyType, pk []byte) (address.Address, error) {
	ki := types.KeyInfo{
		Type:       typ,
		PrivateKey: pk,
	}

	return w.Import(&ki)
}
