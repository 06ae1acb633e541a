package types

import (
	"bytes"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/multiformats/go-multihash"
	"github.com/polydawn/refmt/obj/atlas"
)

func init() {
	cbor.RegisterCborType(atlas.BuildEntry(BlockHeader{}).UseTag(43).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(blk BlockHeader) ([]interface{}, error) {
				if blk.Parents == nil {
					blk.Parents = []cid.Cid{}
				}

				var vrfProof []byte
				if blk.Ticket != nil {
					vrfProof = blk.Ticket.VRFProof
				}

				winCount := int64(0)
				if blk.ElectionProof != nil {
					winCount = blk.ElectionProof.WinCount
				}

				return []interface{}{
					blk.Miner.Bytes(),
					vrfProof,
					uint64(winCount),
					blk.Parents,
					blk.ParentWeight,
					uint64(blk.Height),
					blk.Timestamp,
				}, nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(arr []interface{}) (BlockHeader, error) {
				miner, err := address.NewFromBytes(arr[0].([]byte))
				if err != nil {
					return BlockHeader{}, err
				}

				vrfProof, _ := arr[1].([]byte)
				winCount, _ := cborUint(arr[2])

				parents := []cid.Cid{}
				parentsArr, _ := arr[3].([]interface{})
				for _, p := range parentsArr {
					c, ok := p.(cid.Cid)
					if !ok {
						return BlockHeader{}, fmt.Errorf("block parents contained a non-cid element")
					}
					parents = append(parents, c)
				}

				parentWeight, ok := arr[4].(BigInt)
				if !ok {
					return BlockHeader{}, fmt.Errorf("expected big int parent weight at index 4")
				}

				height, _ := cborUint(arr[5])
				timestamp, _ := cborUint(arr[6])

				return BlockHeader{
					Miner:         miner,
					Ticket:        &Ticket{VRFProof: vrfProof},
					ElectionProof: &ElectionProof{WinCount: int64(winCount)},
					Parents:       parents,
					ParentWeight:  parentWeight,
					Height:        abi.ChainEpoch(height),
					Timestamp:     timestamp,
				}, nil
			})).
		Complete())
}

type Ticket struct {
	VRFProof []byte
}

func (t *Ticket) Equals(ot *Ticket) bool {
	return bytes.Equal(t.VRFProof, ot.VRFProof)
}

type ElectionProof struct {
	WinCount int64
}

type BlockHeader struct {
	Miner address.Address

	Ticket *Ticket

	ElectionProof *ElectionProof

	Parents []cid.Cid

	ParentWeight BigInt

	Height abi.ChainEpoch

	Timestamp uint64
}

func (b *BlockHeader) ToStorageBlock() (block.Block, error) {
	data, err := b.Serialize()
	if err != nil {
		return nil, err
	}

	pref := cid.NewPrefixV1(cid.DagCBOR, multihash.BLAKE2B_MIN+31)
	c, err := pref.Sum(data)
	if err != nil {
		return nil, err
	}

	return block.NewBlockWithCid(data, c)
}

func (b *BlockHeader) Cid() cid.Cid {
	sb, err := b.ToStorageBlock()
	if err != nil {
		panic(err)
	}

	return sb.Cid()
}

func DecodeBlock(b []byte) (*BlockHeader, error) {
	var blk BlockHeader
	if err := cbor.DecodeInto(b, &blk); err != nil {
		return nil, err
	}

	return &blk, nil
}

func (b *BlockHeader) Serialize() ([]byte, error) {
	return cbor.DumpObject(b)
}

func (b *BlockHeader) LastTicket() *Ticket {
	return b.Ticket
}
