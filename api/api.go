package api

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

// FullNode is the engine surface the RPC layer serves. All operations gate
// on node readiness.
type FullNode interface {
	// MpoolPushMessage signs a message with the key managed for its sender
	// and admits it to the message pool.
	MpoolPushMessage(ctx context.Context, msg *types.Message, spec *MessageSendSpec) (*types.SignedMessage, error)

	// MpoolPush admits an already signed message to the message pool.
	MpoolPush(ctx context.Context, sm *types.SignedMessage) (cid.Cid, error)

	// MpoolPending returns the queued messages in submission order.
	MpoolPending(ctx context.Context) ([]*types.SignedMessage, error)

	// MineTipset seals one tipset containing n blocks.
	MineTipset(ctx context.Context, n int) error

	ChainHead(ctx context.Context) (*types.TipSet, error)
	ChainGetGenesis(ctx context.Context) (*types.TipSet, error)
	ChainGetTipSetByHeight(ctx context.Context, height abi.ChainEpoch) (*types.TipSet, error)
	ChainGetBlockMessages(ctx context.Context, blk cid.Cid) ([]*types.SignedMessage, error)
	ChainGetMessage(ctx context.Context, c cid.Cid) (*types.Message, error)

	WalletNew(ctx context.Context, typ types.KeyType) (address.Address, error)
	WalletList(ctx context.Context) ([]address.Address, error)
	WalletBalance(ctx context.Context, addr address.Address) (types.BigInt, error)
	WalletDefaultAddress(ctx context.Context) (address.Address, error)

	ClientStartDeal(ctx context.Context, params *StartDealParams) (*cid.Cid, error)
	ClientListDeals(ctx context.Context) ([]DealInfo, error)
	ClientGetDealInfo(ctx context.Context, proposalCid cid.Cid) (*DealInfo, error)
	ClientMinerQueryOffer(ctx context.Context, root cid.Cid) (QueryOffer, error)
	ClientRetrieve(ctx context.Context, order RetrievalOrder, ref *FileRef) error
	ClientImport(ctx context.Context, ref FileRef) (cid.Cid, error)
	ClientHasLocal(ctx context.Context, root cid.Cid) (bool, error)
}
