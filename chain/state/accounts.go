package state

import (
	"context"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

var log = logging.Logger("state")

// AccountStore is the in-memory account ledger, a write-through cache over
// the accounts partition of the key/value store.
type AccountStore struct {
	lk       sync.Mutex
	ds       datastore.Datastore
	accounts map[address.Address]*types.Account
}

func NewAccountStore(ds datastore.Datastore) *AccountStore {
	return &AccountStore{
		ds:       ds,
		accounts: make(map[address.Address]*types.Account),
	}
}

// GetAccount returns a snapshot of the account for addr. Unknown addresses
// get a zero-balance record, so recipients do not require prior registration.
func (as *AccountStore) GetAccount(ctx context.Context, addr address.Address) (*types.Account, error) {
	as.lk.Lock()
	defer as.lk.Unlock()

	acct, err := as.getLocked(ctx, addr)
	if err != nil {
		return nil, err
	}

	cp := *acct
	return &cp, nil
}

// HasAccounts reports whether any account has ever been persisted.
func (as *AccountStore) HasAccounts(ctx context.Context) (bool, error) {
	as.lk.Lock()
	defer as.lk.Unlock()

	if len(as.accounts) > 0 {
		return true, nil
	}

	res, err := as.ds.Query(ctx, dsq.Query{KeysOnly: true, Limit: 1})
	if err != nil {
		return false, xerrors.Errorf("querying accounts: %w", err)
	}
	defer res.Close() //nolint:errcheck

	_, ok := res.NextSync()
	return ok, nil
}

// CreateAccount registers addr with the given starting balance.
func (as *AccountStore) CreateAccount(ctx context.Context, addr address.Address, balance types.BigInt) (*types.Account, error) {
	as.lk.Lock()
	defer as.lk.Unlock()

	acct, err := as.getLocked(ctx, addr)
	if err != nil {
		return nil, err
	}

	acct.Balance = balance
	if err := as.flushLocked(ctx, acct); err != nil {
		return nil, err
	}

	cp := *acct
	return &cp, nil
}

// TransferFunds atomically debits from and credits to. It returns false,
// leaving both balances untouched, when from does not hold amount.
func (as *AccountStore) TransferFunds(ctx context.Context, from, to address.Address, amount types.BigInt) (bool, error) {
	as.lk.Lock()
	defer as.lk.Unlock()

	fromAcct, err := as.getLocked(ctx, from)
	if err != nil {
		return false, err
	}

	toAcct, err := as.getLocked(ctx, to)
	if err != nil {
		return false, err
	}

	if types.BigCmp(fromAcct.Balance, amount) < 0 {
		return false, nil
	}

	fromAcct.Balance = types.BigSub(fromAcct.Balance, amount)
	toAcct.Balance = types.BigAdd(toAcct.Balance, amount)

	if err := as.flushLocked(ctx, fromAcct); err != nil {
		return false, err
	}
	if err := as.flushLocked(ctx, toAcct); err != nil {
		return false, err
	}

	return true, nil
}

// IncrementNonce bumps the next nonce for addr.
func (as *AccountStore) IncrementNonce(ctx context.Context, addr address.Address) error {
	as.lk.Lock()
	defer as.lk.Unlock()

	acct, err := as.getLocked(ctx, addr)
	if err != nil {
		return err
	}

	acct.Nonce++
	return as.flushLocked(ctx, acct)
}

func (as *AccountStore) getLocked(ctx context.Context, addr address.Address) (*types.Account, error) {
	if acct, ok := as.accounts[addr]; ok {
		return acct, nil
	}

	data, err := as.ds.Get(ctx, accountKey(addr))
	switch err {
	case nil:
		acct, err := types.DecodeAccount(data)
		if err != nil {
			return nil, xerrors.Errorf("decoding account %s: %w", addr, err)
		}
		as.accounts[addr] = acct
		return acct, nil
	case datastore.ErrNotFound:
		log.Debugf("lazily creating account record for %s", addr)
		acct := &types.Account{
			Address: addr,
			Balance: types.NewInt(0),
		}
		as.accounts[addr] = acct
		return acct, nil
	default:
		return nil, xerrors.Errorf("reading account %s: %w", addr, err)
	}
}

func (as *AccountStore) flushLocked(ctx context.Context, acct *types.Account) error {
	data, err := acct.Serialize()
	if err != nil {
		return xerrors.Errorf("serializing account %s: %w", acct.Address, err)
	}

	if err := as.ds.Put(ctx, accountKey(acct.Address), data); err != nil {
		return xerrors.Errorf("persisting account %s: %w", acct.Address, err)
	}

	return nil
}

func accountKey(addr address.Address) datastore.Key {
	return datastore.NewKey(addr.String())
}
