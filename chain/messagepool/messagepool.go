package messagepool

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

var log = logging.Logger("messagepool")

const sigValCacheSize = 1024

var (
	ErrMessageTooBig = errors.New("message too big")

	ErrUnsupportedMethod = errors.New("only bare value transfers (method 0) are supported")

	ErrInvalidNonce = errors.New("submitted message nonce must be zero; nonces are assigned on admission")

	ErrInvalidProtocol = errors.New("sender and receiver must use the secp256k1 or bls address protocol")

	ErrInvalidSignature = errors.New("message signature failed to verify")

	ErrNotEnoughFunds = errors.New("not enough funds to execute transaction")
)

// Provider is the account ledger surface the pool needs for its nonce and
// balance projection.
type Provider interface {
	GetAccount(ctx context.Context, addr address.Address) (*types.Account, error)
}

// MessagePool is the ordered queue of validated signed messages awaiting
// inclusion. lk is the pool lock; it guards the queue and the per-sender
// nonce projection, and is held across account reads so that concurrent
// submitters serialise.
type MessagePool struct {
	lk      sync.Mutex
	pending []*types.SignedMessage

	api Provider

	sigValCache *lru.TwoQueueCache[cid.Cid, struct{}]

	// onAdd is invoked after a successful push, without the pool lock held.
	// The instamine cascade hangs off it.
	onAdd func()
}

func New(api Provider) (*MessagePool, error) {
	verifcache, err := lru.New2Q[cid.Cid, struct{}](sigValCacheSize)
	if err != nil {
		return nil, xerrors.Errorf("constructing signature validation cache: %w", err)
	}

	return &MessagePool{
		api:         api,
		sigValCache: verifcache,
	}, nil
}

// SetOnAdd installs the hook run after every successful push. Must be called
// before the pool is shared.
func (mp *MessagePool) SetOnAdd(f func()) {
	mp.onAdd = f
}

// PushSigned validates sm, assigns its nonce from the pool projection and
// appends it to the queue. When acquireLock is false the caller already
// holds the pool lock.
func (mp *MessagePool) PushSigned(ctx context.Context, sm *types.SignedMessage, acquireLock bool) (cid.Cid, error) {
	if acquireLock {
		mp.lk.Lock()
	}

	c, err := mp.pushLocked(ctx, sm)

	if acquireLock {
		mp.lk.Unlock()
	}

	if err != nil {
		return cid.Undef, err
	}

	if mp.onAdd != nil {
		mp.onAdd()
	}

	return c, nil
}

func (mp *MessagePool) pushLocked(ctx context.Context, sm *types.SignedMessage) (cid.Cid, error) {
	if err := mp.checkMessage(sm); err != nil {
		return cid.Undef, err
	}

	acct, err := mp.api.GetAccount(ctx, sm.Message.From)
	if err != nil {
		return cid.Undef, xerrors.Errorf("looking up sender account: %w", err)
	}

	// Project the next nonce and the funds already promised by queued
	// messages from this sender, so a sender can queue several messages
	// without racing against block commit.
	nextNonce := acct.Nonce
	required := sm.Message.RequiredFunds()

	for _, p := range mp.pending {
		if p.Message.From != sm.Message.From {
			continue
		}

		if p.Message.Nonce+1 > nextNonce {
			nextNonce = p.Message.Nonce + 1
		}
		required = types.BigAdd(required, p.Message.RequiredFunds())
	}

	if types.BigCmp(acct.Balance, required) < 0 {
		return cid.Undef, xerrors.Errorf("attempting to send %s attoFIL with a balance of %s attoFIL: %w",
			required, acct.Balance, ErrNotEnoughFunds)
	}

	sm.Message.Nonce = nextNonce
	mp.pending = append(mp.pending, sm)

	return sm.Cid(), nil
}

// DrainAll snapshots the queue in submission order and replaces it with an
// empty one.
func (mp *MessagePool) DrainAll() []*types.SignedMessage {
	mp.lk.Lock()
	defer mp.lk.Unlock()

	batch := mp.pending
	mp.pending = nil

	return batch
}

// Pending returns a copy of the queued messages in submission order.
func (mp *MessagePool) Pending() []*types.SignedMessage {
	mp.lk.Lock()
	defer mp.lk.Unlock()

	out := make([]*types.SignedMessage, len(mp.pending))
	copy(out, mp.pending)

	return out
}

// Halt takes the pool lock and never releases it. Part of engine shutdown;
// any submission after Halt blocks forever.
func (mp *MessagePool) Halt() {
	mp.lk.Lock()
}
