package types

import (
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
	cbor.RegisterCborType(atlas.BuildEntry(Message{}).UseTag(44).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(m Message) ([]interface{}, error) {
				return []interface{}{
					m.To.Bytes(),
					m.From.Bytes(),
					m.Nonce,
					m.Value,
					uint64(m.GasLimit),
					m.GasFeeCap,
					m.GasPremium,
					uint64(m.Method),
					m.Params,
				}, nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(arr []interface{}) (Message, error) {
				to, err := address.NewFromBytes(arr[0].([]byte))
				if err != nil {
					return Message{}, err
				}

				from, err := address.NewFromBytes(arr[1].([]byte))
				if err != nil {
					return Message{}, err
				}

				nonce, ok := cborUint(arr[2])
				if !ok {
					return Message{}, fmt.Errorf("expected uint64 nonce at index 2")
				}

				value := arr[3].(BigInt)
				gasLimit, _ := cborUint(arr[4])
				gasFeeCap := arr[5].(BigInt)
				gasPremium := arr[6].(BigInt)
				method, _ := cborUint(arr[7])
				params, _ := arr[8].([]byte)

				if value.Nil() {
					value = NewInt(0)
				}
				if gasFeeCap.Nil() {
					gasFeeCap = NewInt(0)
				}
				if gasPremium.Nil() {
					gasPremium = NewInt(0)
				}

				return Message{
					To:         to,
					From:       from,
					Nonce:      nonce,
					Value:      value,
					GasLimit:   int64(gasLimit),
					GasFeeCap:  gasFeeCap,
					GasPremium: gasPremium,
					Method:     abi.MethodNum(method),
					Params:     params,
				}, nil
			})).
		Complete())
}

type Message struct {
	To   address.Address
	From address.Address

	Nonce uint64

	Value BigInt

	GasLimit   int64
	GasFeeCap  BigInt
	GasPremium BigInt

	Method abi.MethodNum
	Params []byte
}

func DecodeMessage(b []byte) (*Message, error) {
	var msg Message
	if err := cbor.DecodeInto(b, &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

func (m *Message) Serialize() ([]byte, error) {
	return cbor.DumpObject(m)
}

func (m *Message) ToStorageBlock() (block.Block, error) {
	data, err := m.Serialize()
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

func (m *Message) Cid() cid.Cid {
	sb, err := m.ToStorageBlock()
	if err != nil {
		panic(err)
	}

	return sb.Cid()
}

// RequiredFunds is the balance a sender must hold for this message to be
// admitted: the full gas allowance plus the transferred value.
func (m *Message) RequiredFunds() BigInt {
	return BigAdd(m.GasCost(), m.Value)
}

// GasCost is the gas allowance paid to the miner on inclusion.
func (m *Message) GasCost() BigInt {
	return BigMul(m.GasFeeCap, NewInt(uint64(m.GasLimit)))
}

// BaseFee is the portion of the gas charge burned to the burnt funds actor.
func (m *Message) BaseFee() BigInt {
	return BigMul(m.GasPremium, NewInt(uint64(m.GasLimit)))
}

func (m *Message) ValidForBlockInclusion() error {
	if m.To == address.Undef {
		return fmt.Errorf("'To' address cannot be empty")
	}

	if m.From == address.Undef {
		return fmt.Errorf("'From' address cannot be empty")
	}

	if m.Value.Nil() || m.Value.Sign() < 0 {
		return fmt.Errorf("'Value' field cannot be negative")
	}

	if m.GasFeeCap.Nil() || m.GasFeeCap.Sign() < 0 {
		return fmt.Errorf("'GasFeeCap' field cannot be negative")
	}

	if m.GasPremium.Nil() || m.GasPremium.Sign() < 0 {
		return fmt.Errorf("'GasPremium' field cannot be negative")
	}

	if m.GasLimit < 0 {
		return fmt.Errorf("'GasLimit' field cannot be negative")
	}

	return nil
}
