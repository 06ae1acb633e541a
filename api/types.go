package api

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-fil-markets/storagemarket"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

type FileRef struct {
	Path  string
	IsCAR bool
}

type DealInfo struct {
	DealID      abi.DealID
	ProposalCid cid.Cid
	State       storagemarket.StorageDealStatus
	Message     string // more information about deal state, particularly errors
	Provider    address.Address
	Client      address.Address

	PieceCID cid.Cid
	Size     uint64

	PricePerEpoch types.BigInt
	Duration      uint64
}

type StartDealParams struct {
	Data              *storagemarket.DataRef
	Wallet            address.Address
	Miner             address.Address
	EpochPrice        types.BigInt
	MinBlocksDuration uint64
}

type QueryOffer struct {
	Err string

	Root cid.Cid

	Size     uint64
	MinPrice types.BigInt
	Miner    address.Address
}

func (o *QueryOffer) Order(client address.Address) RetrievalOrder {
	return RetrievalOrder{
		Root:   o.Root,
		Size:   o.Size,
		Total:  o.MinPrice,
		Client: client,

		Miner: o.Miner,
	}
}

type RetrievalOrder struct {
	Root  cid.Cid
	Size  uint64
	Total types.BigInt

	Client address.Address
	Miner  address.Address
}

type MessageSendSpec struct {
	MaxFee types.BigInt
}
