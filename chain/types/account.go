package types

import (
	"fmt"

	"github.com/filecoin-project/go-address"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/polydawn/refmt/obj/atlas"
)

func init() {
	cbor.RegisterCborType(atlas.BuildEntry(Account{}).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(a Account) ([]interface{}, error) {
				return []interface{}{
					a.Address.Bytes(),
					a.Balance,
					a.Nonce,
				}, nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(arr []interface{}) (Account, error) {
				addr, err := address.NewFromBytes(arr[0].([]byte))
				if err != nil {
					return Account{}, err
				}

				balance, ok := arr[1].(BigInt)
				if !ok {
					return Account{}, fmt.Errorf("expected big int balance at index 1")
				}
				if balance.Nil() {
					balance = NewInt(0)
				}

				nonce, _ := cborUint(arr[2])

				return Account{
					Address: addr,
					Balance: balance,
					Nonce:   nonce,
				}, nil
			})).
		Complete())
}

// Account is the ledger record for a single address. Nonce is the next nonce
// to be assigned at commit time.
type Account struct {
	Address address.Address
	Balance BigInt
	Nonce   uint64
}

func DecodeAccount(b []byte) (*Account, error) {
	var acct Account
	if err := cbor.DecodeInto(b, &acct); err != nil {
		return nil, err
	}

	return &acct, nil
}

func (a *Account) Serialize() ([]byte, error) {
	return cbor.DumpObject(a)
}

// cborUint reads an unsigned integer decoded into an interface value, which
// the cbor decoder may hand back as int, int64 or uint64.
func cborUint(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		return uint64(x), x >= 0
	case int:
		return uint64(x), x >= 0
	}
	return 0, false
}
