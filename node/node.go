package node

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/deals"
	"github.com/filecoin-shipyard/filsim/chain/messagepool"
	"github.com/filecoin-shipyard/filsim/chain/state"
	"github.com/filecoin-shipyard/filsim/chain/store"
	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/chain/wallet"
	"github.com/filecoin-shipyard/filsim/lib/objstore"
	"github.com/filecoin-shipyard/filsim/miner"
	"github.com/filecoin-shipyard/filsim/node/config"
	"github.com/filecoin-shipyard/filsim/node/repo"
)

var log = logging.Logger("node")

const attoPerFIL = uint64(1_000_000_000_000_000_000)

// Node is the simulator engine. New returns it in a not-ready state; Init
// waits out the key/value store, wires the managers, ensures genesis and
// flips it ready.
type Node struct {
	repo repo.Repo
	cfg  *config.FullNode

	ds       datastore.Batching
	cs       *store.ChainStore
	accounts *state.AccountStore
	w        *wallet.Wallet
	mp       *messagepool.MessagePool
	mnr      *miner.Miner
	deals    *deals.Client
	objs     *objstore.Store

	instamine bool

	readyLk sync.Mutex
	ready   bool
	readyCh chan struct{}

	closer  chan struct{}
	stopped bool
}

func New(r repo.Repo) *Node {
	return &Node{
		repo:    r,
		readyCh: make(chan struct{}),
		closer:  make(chan struct{}),
	}
}

// Init brings the node up: it opens the durable store, builds the ledger
// managers, seeds accounts on first run, ensures a genesis tipset, starts
// the object store and arms the mining timer.
func (n *Node) Init(ctx context.Context) error {
	cfg, err := n.repo.Config()
	if err != nil {
		return xerrors.Errorf("loading config: %w", err)
	}
	n.cfg = cfg

	ds, err := n.repo.Datastore(ctx)
	if err != nil {
		return xerrors.Errorf("opening datastore: %w", err)
	}
	n.ds = ds

	minerAddr := build.DefaultMinerAddress
	if cfg.Miner.Address != "" {
		minerAddr, err = address.NewFromString(cfg.Miner.Address)
		if err != nil {
			return xerrors.Errorf("parsing miner address: %w", err)
		}
	}

	n.cs = store.NewChainStore(ds)
	n.accounts = state.NewAccountStore(namespace.Wrap(ds, datastore.NewKey("/accounts")))
	n.w, err = wallet.NewWallet(wallet.NewDSKeyStore(namespace.Wrap(ds, datastore.NewKey("/privateKeys"))))
	if err != nil {
		return xerrors.Errorf("constructing wallet: %w", err)
	}

	n.mp, err = messagepool.New(n.accounts)
	if err != nil {
		return xerrors.Errorf("constructing message pool: %w", err)
	}

	n.objs = objstore.New(namespace.Wrap(ds, datastore.NewKey("/objects")))
	n.mnr = miner.NewMiner(n.cs, n.accounts, n.mp, minerAddr)

	n.deals = deals.NewClient(ds, n.w, n.accounts, n.objs, minerAddr)
	n.instamine = time.Duration(cfg.Chain.BlockTime) == 0
	n.deals.SetMiner(n.mnr, n.instamine)
	n.mnr.SetDealTracker(n.deals)

	prng := rand.New(rand.NewSource(cfg.Wallet.Seed))

	if err := n.seedAccounts(ctx, prng); err != nil {
		return err
	}

	if err := n.cs.Load(ctx); err != nil {
		return xerrors.Errorf("loading chain state: %w", err)
	}

	if n.cs.GetGenesis() == nil {
		if err := n.makeGenesis(ctx, minerAddr, prng); err != nil {
			return err
		}
	}

	if err := n.objs.Start(ctx); err != nil {
		return xerrors.Errorf("starting object store: %w", err)
	}

	n.mp.SetOnAdd(func() {
		if !n.instamine {
			return
		}

		go func() {
			if err := n.mnr.MineTipset(context.Background(), 1); err != nil {
				log.Errorf("instamine failed: %s", err)
			}
		}()
	})

	if !n.instamine {
		go n.mineLoop(time.Duration(cfg.Chain.BlockTime))
	}

	n.readyLk.Lock()
	n.ready = true
	n.readyLk.Unlock()
	close(n.readyCh)

	log.Infow("node ready", "miner", minerAddr, "instamine", n.instamine,
		"height", n.cs.GetHeaviestTipSet().Height())

	return nil
}

// seedAccounts funds a deterministic set of accounts on a fresh store, half
// bls and half secp256k1, all derived from the configured wallet seed.
func (n *Node) seedAccounts(ctx context.Context, prng *rand.Rand) error {
	has, err := n.accounts.HasAccounts(ctx)
	if err != nil {
		return xerrors.Errorf("checking for seeded accounts: %w", err)
	}
	if has {
		return nil
	}

	balance := types.BigMul(types.NewInt(n.cfg.Wallet.DefaultBalanceFIL), types.NewInt(attoPerFIL))

	for i := 0; i < n.cfg.Wallet.Accounts; i++ {
		typ := types.KTBLS
		if i%2 == 1 {
			typ = types.KTSecp256k1
		}

		addr, err := n.w.GenerateKeyFromSeed(typ, prng)
		if err != nil {
			return xerrors.Errorf("seeding account %d: %w", i, err)
		}

		if _, err := n.accounts.CreateAccount(ctx, addr, balance); err != nil {
			return err
		}

		log.Infow("seeded account", "address", addr, "balance", balance)
	}

	return nil
}

func (n *Node) makeGenesis(ctx context.Context, minerAddr address.Address, prng *rand.Rand) error {
	vrf := make([]byte, build.GenesisTicketLen)
	if _, err := prng.Read(vrf); err != nil {
		return xerrors.Errorf("drawing genesis randomness: %w", err)
	}

	blk := &types.BlockHeader{
		Miner:         minerAddr,
		Ticket:        &types.Ticket{VRFProof: vrf},
		ElectionProof: &types.ElectionProof{WinCount: build.DefaultWinCount},
		Parents:       []cid.Cid{},
		ParentWeight:  types.NewInt(0),
		Height:        0,
		Timestamp:     uint64(build.Clock.Now().Unix()),
	}

	ts, err := types.NewTipSetWithCids([]*types.BlockHeader{blk}, []cid.Cid{build.GenesisCID})
	if err != nil {
		return xerrors.Errorf("assembling genesis tipset: %w", err)
	}

	if err := n.cs.SetGenesis(ctx, ts); err != nil {
		return xerrors.Errorf("persisting genesis: %w", err)
	}

	log.Infow("created genesis tipset", "cid", build.GenesisCID)
	return nil
}

func (n *Node) mineLoop(blockTime time.Duration) {
	ticker := build.Clock.Ticker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := n.mnr.MineTipset(context.Background(), 1); err != nil {
				log.Errorf("mining tipset: %s", err)
			}
		case <-n.closer:
			return
		}
	}
}

// WaitForReady blocks until genesis is ensured and the object store is up.
func (n *Node) WaitForReady(ctx context.Context) error {
	select {
	case <-n.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TipsetEvents delivers every tipset committed after the subscription.
func (n *Node) TipsetEvents(ctx context.Context) chan *types.TipSet {
	return n.cs.SubTipsetChanges(ctx)
}

// Stop winds the engine down. It takes the mining lock and then the pool
// lock without releasing either, so in-flight work completes and later
// operations block; callers must not invoke engine operations afterwards.
// Collaborator shutdown failures are logged, never raised.
func (n *Node) Stop(ctx context.Context) error {
	n.readyLk.Lock()
	if n.stopped {
		n.readyLk.Unlock()
		return nil
	}
	n.stopped = true
	n.readyLk.Unlock()

	n.mnr.Halt()
	n.mp.Halt()

	close(n.closer)

	var merr *multierror.Error
	merr = multierror.Append(merr, n.objs.Stop())
	merr = multierror.Append(merr, n.cs.Close())
	merr = multierror.Append(merr, n.repo.Close())

	if err := merr.ErrorOrNil(); err != nil {
		log.Warnf("shutdown completed with errors: %s", err)
	}

	return nil
}
