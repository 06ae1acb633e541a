package types

import (
	"fmt"

	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/polydawn/refmt/obj/atlas"
	"golang.org/x/xerrors"
)

var (
	ErrKeyInfoNotFound = fmt.Errorf("key info not found")
	ErrKeyExists       = fmt.Errorf("key already exists")
)

// KeyType defines a type of a key
type KeyType string

const (
	KTBLS       KeyType = "bls"
	KTSecp256k1 KeyType = "secp256k1"
)

func init() {
	cbor.RegisterCborType(atlas.BuildEntry(KeyInfo{}).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(ki KeyInfo) ([]interface{}, error) {
				return []interface{}{
					string(ki.Type),
					ki.PrivateKey,
				}, nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(arr []interface{}) (KeyInfo, error) {
				typ, ok := arr[0].(string)
				if !ok {
					return KeyInfo{}, xerrors.New("expected string key type at index 0")
				}

				pk, _ := arr[1].([]byte)

				return KeyInfo{
					Type:       KeyType(typ),
					PrivateKey: pk,
				}, nil
			})).
		Complete())
}

// KeyInfo is used for storing keys in the keystore.
type KeyInfo struct {
	Type       KeyType
	PrivateKey []byte
}

func DecodeKeyInfo(b []byte) (*KeyInfo, error) {
	var ki KeyInfo
	if err := cbor.DecodeInto(b, &ki); err != nil {
		return nil, err
	}

	return &ki, nil
}

func (ki *KeyInfo) Serialize() ([]byte, error) {
	return cbor.DumpObject(ki)
}

// KeyStore is used for storing secret keys
type KeyStore interface {
	// List lists all the keys stored in the KeyStore
	List() ([]string, error)
	// Get gets a key out of keystore and returns KeyInfo corresponding to named key
	Get(string) (KeyInfo, error)
	// Put saves a key info under given name
	Put(string, KeyInfo) error
	// Delete removes a key from keystore
	Delete(string) error
}
