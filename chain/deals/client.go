package deals

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-fil-markets/storagemarket"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-storedcounter"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multihash"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/api"
	"github.com/filecoin-shipyard/filsim/chain/state"
	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/chain/wallet"
	"github.com/filecoin-shipyard/filsim/lib/objstore"
)

var log = logging.Logger("deals")

var ErrNotEnoughFunds = errors.New("not enough funds to cover the deal payment")

// advanceStates is the linear storage-deal lifecycle. A freshly proposed
// deal starts at the head of the table and moves one state per mined tipset
// until it is active.
var advanceStates = []storagemarket.StorageDealStatus{
	storagemarket.StorageDealValidating,
	storagemarket.StorageDealStaged,
	storagemarket.StorageDealSealing,
	storagemarket.StorageDealFinalizing,
	storagemarket.StorageDealActive,
}

// TipsetMiner seals tipsets on demand; the deal client drives it directly
// when the engine runs in instamine mode.
type TipsetMiner interface {
	MineTipset(ctx context.Context, n int) error
}

// Client runs the simplified storage-deal lifecycle against the single
// in-process miner.
type Client struct {
	lk        sync.Mutex
	deals     []*api.DealInfo
	byCid     map[cid.Cid]*api.DealInfo
	inProcess map[cid.Cid]*api.DealInfo

	dealCounter *storedcounter.StoredCounter

	w        *wallet.Wallet
	accounts *state.AccountStore
	objs     *objstore.Store

	miner     address.Address
	tsMiner   TipsetMiner
	instamine bool
}

func NewClient(ds datastore.Batching, w *wallet.Wallet, accounts *state.AccountStore, objs *objstore.Store, miner address.Address) *Client {
	return &Client{
		byCid:       make(map[cid.Cid]*api.DealInfo),
		inProcess:   make(map[cid.Cid]*api.DealInfo),
		dealCounter: storedcounter.New(ds, datastore.NewKey("/deals/counter")),
		w:           w,
		accounts:    accounts,
		objs:        objs,
		miner:       miner,
	}
}

// SetMiner wires the tipset miner used for instamine deal progression.
func (c *Client) SetMiner(m TipsetMiner, instamine bool) {
	c.tsMiner = m
	c.instamine = instamine
}

// StartDeal signs and registers a new storage deal and settles its payment.
// In instamine mode the deal is driven to active before returning.
func (c *Client) StartDeal(ctx context.Context, params *api.StartDealParams) (*cid.Cid, error) {
	if params.Wallet == address.Undef {
		return nil, api.ErrMissingWallet
	}

	has, err := c.w.HasKey(params.Wallet)
	if err != nil {
		return nil, xerrors.Errorf("checking wallet key: %w", err)
	}
	if !has {
		return nil, xerrors.Errorf("wallet %s: %w", params.Wallet, api.ErrUnknownPrivateKey)
	}

	if params.Data == nil {
		return nil, xerrors.New("deal proposal carries no data reference")
	}

	st, err := c.objs.Stat(ctx, params.Data.Root)
	if err != nil {
		return nil, xerrors.Errorf("measuring deal payload: %w", err)
	}

	proposal, err := cbor.DumpObject(params.Data.Root)
	if err != nil {
		return nil, xerrors.Errorf("serializing deal proposal: %w", err)
	}

	sig, err := c.w.Sign(ctx, params.Wallet, proposal)
	if err != nil {
		return nil, xerrors.Errorf("signing deal proposal: %w", err)
	}

	proposalCid, err := proposalCid(sig.Data)
	if err != nil {
		return nil, err
	}

	total := types.BigMul(params.EpochPrice, types.NewInt(params.MinBlocksDuration))
	ok, err := c.accounts.TransferFunds(ctx, params.Wallet, c.miner, total)
	if err != nil {
		return nil, xerrors.Errorf("settling deal payment: %w", err)
	}
	if !ok {
		return nil, xerrors.Errorf("deal payment of %s attoFIL from %s: %w", total, params.Wallet, ErrNotEnoughFunds)
	}

	next, err := c.dealCounter.Next()
	if err != nil {
		return nil, xerrors.Errorf("allocating deal id: %w", err)
	}

	deal := &api.DealInfo{
		DealID:        abi.DealID(next + 1),
		ProposalCid:   proposalCid,
		State:         advanceStates[0],
		Provider:      c.miner,
		Client:        params.Wallet,
		PieceCID:      params.Data.Root,
		Size:          st.Size,
		PricePerEpoch: params.EpochPrice,
		Duration:      params.MinBlocksDuration,
	}

	c.lk.Lock()
	c.deals = append(c.deals, deal)
	c.byCid[proposalCid] = deal
	c.inProcess[proposalCid] = deal
	c.lk.Unlock()

	log.Infow("deal proposed", "deal", deal.DealID, "proposal", proposalCid, "size", st.Size)

	if c.instamine && c.tsMiner != nil {
		for !c.dealActive(proposalCid) {
			if err := c.tsMiner.MineTipset(ctx, 1); err != nil {
				return nil, xerrors.Errorf("driving deal to active: %w", err)
			}
		}
	}

	return &deal.ProposalCid, nil
}

func (c *Client) dealActive(proposalCid cid.Cid) bool {
	c.lk.Lock()
	defer c.lk.Unlock()

	deal, ok := c.byCid[proposalCid]
	return ok && deal.State == storagemarket.StorageDealActive
}

// AdvanceInProcessDeals moves every in-process deal one state forward. Deals
// reaching active leave the in-process set.
func (c *Client) AdvanceInProcessDeals(ctx context.Context) {
	c.lk.Lock()
	defer c.lk.Unlock()

	for pcid, deal := range c.inProcess {
		deal.State = nextState(deal.State)
		log.Infow("deal advanced", "deal", deal.DealID, "state", storagemarket.DealStates[deal.State])

		if deal.State == storagemarket.StorageDealActive {
			delete(c.inProcess, pcid)
		}
	}
}

func nextState(cur storagemarket.StorageDealStatus) storagemarket.StorageDealStatus {
	for i, st := range advanceStates {
		if st == cur && i+1 < len(advanceStates) {
			return advanceStates[i+1]
		}
	}
	return cur
}

// QueryOffer prices local retrieval of the object at root.
func (c *Client) QueryOffer(ctx context.Context, root cid.Cid) (api.QueryOffer, error) {
	st, err := c.objs.Stat(ctx, root)
	if err != nil {
		return api.QueryOffer{}, err
	}

	return api.QueryOffer{
		Root:     root,
		Size:     st.Size,
		MinPrice: types.BigMul(types.NewInt(st.Size), types.NewInt(2)),
		Miner:    c.miner,
	}, nil
}

// Retrieve streams the object at order.Root into ref.Path and settles the
// retrieval payment. The payload lands in a partial file first and is
// renamed into place once complete.
func (c *Client) Retrieve(ctx context.Context, order api.RetrievalOrder, ref *api.FileRef) error {
	if _, err := c.objs.Stat(ctx, order.Root); err != nil {
		return err
	}

	data, err := c.objs.Read(ctx, order.Root)
	if err != nil {
		return err
	}

	partial := ref.Path + ".partial"
	if err := os.WriteFile(partial, data, 0644); err != nil {
		return xerrors.Errorf("writing partial retrieval file: %w", err)
	}

	if err := os.Rename(partial, ref.Path); err != nil {
		return xerrors.Errorf("finalizing retrieval file: %w", err)
	}

	ok, err := c.accounts.TransferFunds(ctx, order.Client, order.Miner, order.Total)
	if err != nil {
		return xerrors.Errorf("settling retrieval payment: %w", err)
	}
	if !ok {
		return xerrors.Errorf("retrieval payment of %s attoFIL from %s: %w", order.Total, order.Client, ErrNotEnoughFunds)
	}

	return nil
}

// ListDeals returns a snapshot of every deal ever started, in creation
// order.
func (c *Client) ListDeals() []api.DealInfo {
	c.lk.Lock()
	defer c.lk.Unlock()

	out := make([]api.DealInfo, 0, len(c.deals))
	for _, d := range c.deals {
		out = append(out, *d)
	}

	return out
}

func (c *Client) GetDeal(proposalCid cid.Cid) (*api.DealInfo, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	deal, ok := c.byCid[proposalCid]
	if !ok {
		return nil, xerrors.Errorf("no deal with proposal cid %s", proposalCid)
	}

	cp := *deal
	return &cp, nil
}

// proposalCid derives the deal's proposal cid by cbor-hashing the
// hex-encoded proposal signature. This is a simulator shortcut kept for
// compatibility with existing client test vectors; it is not the
// protocol-conformant proposal cid derivation.
func proposalCid(sigData []byte) (cid.Cid, error) {
	data, err := cbor.DumpObject(hex.EncodeToString(sigData))
	if err != nil {
		return cid.Undef, xerrors.Errorf("serializing proposal signature: %w", err)
	}

	pref := cid.NewPrefixV1(cid.DagCBOR, multihash.BLAKE2B_MIN+31)
	c, err := pref.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	return c, nil
}
