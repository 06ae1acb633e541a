package node

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/api"
	"github.com/filecoin-shipyard/filsim/chain/types"
)

var _ api.FullNode = (*Node)(nil)

func (n *Node) checkReady() error {
	n.readyLk.Lock()
	defer n.readyLk.Unlock()

	if !n.ready {
		return api.ErrNotReady
	}
	return nil
}

// MpoolPushMessage signs msg with the key managed for its sender and admits
// it to the pool. The returned signed message carries the assigned nonce.
func (n *Node) MpoolPushMessage(ctx context.Context, msg *types.Message, spec *api.MessageSendSpec) (*types.SignedMessage, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	if msg.Value.Nil() {
		msg.Value = types.NewInt(0)
	}
	if msg.GasFeeCap.Nil() {
		msg.GasFeeCap = types.NewInt(0)
	}
	if msg.GasPremium.Nil() {
		msg.GasPremium = types.NewInt(0)
	}

	data, err := msg.Serialize()
	if err != nil {
		return nil, xerrors.Errorf("serializing message: %w", err)
	}

	sig, err := n.w.Sign(ctx, msg.From, data)
	if err != nil {
		return nil, xerrors.Errorf("signing message: %w", err)
	}

	sm := &types.SignedMessage{
		Message:   *msg,
		Signature: *sig,
	}

	if _, err := n.mp.PushSigned(ctx, sm, true); err != nil {
		return nil, err
	}

	return sm, nil
}

// MpoolPush admits an already signed message to the pool and returns its
// cid.
func (n *Node) MpoolPush(ctx context.Context, sm *types.SignedMessage) (cid.Cid, error) {
	if err := n.checkReady(); err != nil {
		return cid.Undef, err
	}

	return n.mp.PushSigned(ctx, sm, true)
}

func (n *Node) MpoolPending(ctx context.Context) ([]*types.SignedMessage, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.mp.Pending(), nil
}

// MineTipset seals one tipset containing n blocks.
func (n *Node) MineTipset(ctx context.Context, count int) error {
	if err := n.checkReady(); err != nil {
		return err
	}

	return n.mnr.MineTipset(ctx, count)
}

func (n *Node) ChainHead(ctx context.Context) (*types.TipSet, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.cs.GetHeaviestTipSet(), nil
}

func (n *Node) ChainGetGenesis(ctx context.Context) (*types.TipSet, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.cs.GetGenesis(), nil
}

func (n *Node) ChainGetTipSetByHeight(ctx context.Context, height abi.ChainEpoch) (*types.TipSet, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.cs.GetTipsetByHeight(ctx, height)
}

func (n *Node) ChainGetBlockMessages(ctx context.Context, blk cid.Cid) ([]*types.SignedMessage, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.cs.GetBlockMessages(ctx, blk)
}

func (n *Node) ChainGetMessage(ctx context.Context, c cid.Cid) (*types.Message, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	sm, err := n.cs.GetSignedMessage(ctx, c)
	if err != nil {
		return nil, err
	}

	return sm.VMMessage(), nil
}

func (n *Node) WalletNew(ctx context.Context, typ types.KeyType) (address.Address, error) {
	if err := n.checkReady(); err != nil {
		return address.Undef, err
	}

	return n.w.GenerateKey(typ)
}

func (n *Node) WalletList(ctx context.Context) ([]address.Address, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.w.ListAddrs()
}

func (n *Node) WalletBalance(ctx context.Context, addr address.Address) (types.BigInt, error) {
	if err := n.checkReady(); err != nil {
		return types.EmptyInt, err
	}

	acct, err := n.accounts.GetAccount(ctx, addr)
	if err != nil {
		return types.EmptyInt, err
	}

	return acct.Balance, nil
}

func (n *Node) WalletDefaultAddress(ctx context.Context) (address.Address, error) {
	if err := n.checkReady(); err != nil {
		return address.Undef, err
	}

	addrs, err := n.w.ListAddrs()
	if err != nil {
		return address.Undef, err
	}
	if len(addrs) == 0 {
		return address.Undef, xerrors.New("no addresses in wallet")
	}

	return addrs[0], nil
}

func (n *Node) ClientStartDeal(ctx context.Context, params *api.StartDealParams) (*cid.Cid, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.deals.StartDeal(ctx, params)
}

func (n *Node) ClientListDeals(ctx context.Context) ([]api.DealInfo, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.deals.ListDeals(), nil
}

func (n *Node) ClientGetDealInfo(ctx context.Context, proposalCid cid.Cid) (*api.DealInfo, error) {
	if err := n.checkReady(); err != nil {
		return nil, err
	}

	return n.deals.GetDeal(proposalCid)
}

func (n *Node) ClientMinerQueryOffer(ctx context.Context, root cid.Cid) (api.QueryOffer, error) {
	if err := n.checkReady(); err != nil {
		return api.QueryOffer{}, err
	}

	return n.deals.QueryOffer(ctx, root)
}

func (n *Node) ClientRetrieve(ctx context.Context, order api.RetrievalOrder, ref *api.FileRef) error {
	if err := n.checkReady(); err != nil {
		return err
	}

	return n.deals.Retrieve(ctx, order, ref)
}

// ClientImport stores the file at ref.Path in the object store and returns
// its root cid.
func (n *Node) ClientImport(ctx context.Context, ref api.FileRef) (cid.Cid, error) {
	if err := n.checkReady(); err != nil {
		return cid.Undef, err
	}

	return n.objs.PutFile(ctx, ref.Path)
}

func (n *Node) ClientHasLocal(ctx context.Context, root cid.Cid) (bool, error) {
	if err := n.checkReady(); err != nil {
		return false, err
	}

	return n.objs.Has(ctx, root)
}

// PutObject stores raw bytes in the object store. Test helper surface.
func (n *Node) PutObject(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := n.checkReady(); err != nil {
		return cid.Undef, err
	}

	return n.objs.Put(ctx, data)
}
