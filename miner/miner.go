package miner

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/messagepool"
	"github.com/filecoin-shipyard/filsim/chain/state"
	"github.com/filecoin-shipyard/filsim/chain/store"
	"github.com/filecoin-shipyard/filsim/chain/types"
)

var log = logging.Logger("miner")

// DealTracker advances in-process storage deals once per mined tipset.
type DealTracker interface {
	AdvanceInProcessDeals(ctx context.Context)
}

// Miner seals tipsets. lk is the mining lock: it serialises mining
// invocations (timer ticks, instamine cascades and explicit requests) and is
// held across all persistence and deal advancement.
type Miner struct {
	lk sync.Mutex

	cs       *store.ChainStore
	accounts *state.AccountStore
	mp       *messagepool.MessagePool
	deals    DealTracker

	address address.Address
}

func NewMiner(cs *store.ChainStore, accounts *state.AccountStore, mp *messagepool.MessagePool, addr address.Address) *Miner {
	return &Miner{
		cs:       cs,
		accounts: accounts,
		mp:       mp,
		address:  addr,
	}
}

// SetDealTracker wires the deal engine. Must be called before mining starts.
func (m *Miner) SetDealTracker(d DealTracker) {
	m.deals = d
}

func (m *Miner) Address() address.Address {
	return m.address
}

// MineTipset seals one tipset of n sibling blocks: it drains the message
// pool, applies the batch to the account ledger, durably commits the new
// tipset, advances in-process deals and notifies subscribers. An empty pool
// still produces a tipset.
//
// Transfer failures inside the batch skip the offending message and are not
// rolled back; any persistence failure re-raises after the mining lock is
// released, leaving state partially applied.
func (m *Miner) MineTipset(ctx context.Context, n int) error {
	m.lk.Lock()
	defer m.lk.Unlock()

	if n < 1 {
		n = 1
	}

	batch := m.mp.DrainAll()

	base := m.cs.GetHeaviestTipSet()
	if base == nil {
		return xerrors.New("cannot mine without a genesis tipset")
	}

	height := base.Height() + 1
	parents := []cid.Cid{base.Cids()[0]}

	pblk := base.Blocks()[0]
	winCount := build.DefaultWinCount
	if pblk.ElectionProof != nil {
		winCount = pblk.ElectionProof.WinCount
	}
	weight := types.BigAdd(pblk.ParentWeight, types.NewInt(uint64(winCount)))

	blks := make([]*types.BlockHeader, 0, n)
	for i := 0; i < n; i++ {
		vrf := make([]byte, build.GenesisTicketLen)
		if _, err := rand.Read(vrf); err != nil {
			return xerrors.Errorf("drawing ticket randomness: %w", err)
		}

		blks = append(blks, &types.BlockHeader{
			Miner:         m.address,
			Ticket:        &types.Ticket{VRFProof: vrf},
			ElectionProof: &types.ElectionProof{WinCount: build.DefaultWinCount},
			Parents:       parents,
			ParentWeight:  weight,
			Height:        height,
			Timestamp:     uint64(build.Clock.Now().Unix()),
		})
	}

	var successful []*types.SignedMessage
	for _, sm := range batch {
		applied, err := m.applyMessage(ctx, sm)
		if err != nil {
			return err
		}
		if applied {
			successful = append(successful, sm)
		}
	}

	ts, err := types.NewTipSet(blks)
	if err != nil {
		return xerrors.Errorf("assembling tipset: %w", err)
	}

	if err := m.cs.CommitTipset(ctx, ts, successful); err != nil {
		return xerrors.Errorf("committing tipset at height %d: %w", height, err)
	}

	if m.deals != nil {
		m.deals.AdvanceInProcessDeals(ctx)
	}

	m.cs.NotifyTipset(ts)

	log.Infow("mined tipset", "height", height, "blocks", n, "messages", len(successful))

	return nil
}

// applyMessage charges the base fee, the miner reward and the principal in
// order, then bumps the sender's nonce. A transfer that the sender cannot
// cover skips the message without reversing the earlier charges; admission
// checks should have prevented this, and skipping preserves chain progress.
func (m *Miner) applyMessage(ctx context.Context, sm *types.SignedMessage) (bool, error) {
	msg := sm.VMMessage()

	ok, err := m.accounts.TransferFunds(ctx, msg.From, build.BurntFundsAddress, msg.BaseFee())
	if err != nil {
		return false, xerrors.Errorf("burning base fee: %w", err)
	}
	if !ok {
		log.Warnf("skipping message %s: sender %s cannot cover the base fee", sm.Cid(), msg.From)
		return false, nil
	}

	ok, err = m.accounts.TransferFunds(ctx, msg.From, m.address, msg.GasCost())
	if err != nil {
		return false, xerrors.Errorf("paying miner reward: %w", err)
	}
	if !ok {
		log.Warnf("skipping message %s: sender %s cannot cover the miner reward", sm.Cid(), msg.From)
		return false, nil
	}

	ok, err = m.accounts.TransferFunds(ctx, msg.From, msg.To, msg.Value)
	if err != nil {
		return false, xerrors.Errorf("transferring principal: %w", err)
	}
	if !ok {
		log.Warnf("skipping message %s: sender %s cannot cover the transferred value", sm.Cid(), msg.From)
		return false, nil
	}

	if err := m.accounts.IncrementNonce(ctx, msg.From); err != nil {
		return false, xerrors.Errorf("incrementing nonce for %s: %w", msg.From, err)
	}

	return true, nil
}

// Halt takes the mining lock and never releases it. Part of engine
// shutdown; it waits out any in-flight mining round.
func (m *Miner) Halt() {
	m.lk.Lock()
}
