package bls

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	blssig "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/util/random"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"

	"github.com/filecoin-shipyard/filsim/lib/sigs"
)

// Pure-go BLS12-381 with public keys on G1 and signatures on G2, matching the
// Filecoin key layout (48 byte public keys, 96 byte signatures).
var suite = bls12381.NewBLS12381Suite()

type blsSigner struct{}

func (b blsSigner) GenPrivate() ([]byte, error) {
	return b.GenPrivateFromSeed(rand.Reader)
}

func (blsSigner) GenPrivateFromSeed(seed io.Reader) ([]byte, error) {
	sk := suite.G1().Scalar().Pick(random.New(seed))
	return sk.MarshalBinary()
}

func (blsSigner) ToPublic(priv []byte) ([]byte, error) {
	sk, err := scalarFromBytes(priv)
	if err != nil {
		return nil, err
	}

	pub := suite.G1().Point().Mul(sk, nil)
	return pub.MarshalBinary()
}

func (blsSigner) Sign(priv []byte, msg []byte) ([]byte, error) {
	sk, err := scalarFromBytes(priv)
	if err != nil {
		return nil, err
	}

	return blssig.NewSchemeOnG2(suite).Sign(sk, msg)
}

func (blsSigner) Verify(sig []byte, a address.Address, msg []byte) error {
	pub := suite.G1().Point()
	if err := pub.UnmarshalBinary(a.Payload()); err != nil {
		return fmt.Errorf("bls signature failed to verify: %w", err)
	}

	if err := blssig.NewSchemeOnG2(suite).Verify(pub, msg, sig); err != nil {
		return fmt.Errorf("bls signature failed to verify: %w", err)
	}

	return nil
}

func scalarFromBytes(priv []byte) (kyber.Scalar, error) {
	sk := suite.G1().Scalar()
	if err := sk.UnmarshalBinary(priv); err != nil {
		return nil, fmt.Errorf("bls signature invalid private key: %w", err)
	}
	return sk, nil
}

func init() {
	sigs.RegisterSignature(crypto.SigTypeBLS, blsSigner{})
}
