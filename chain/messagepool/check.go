package messagepool

import (
	"github.com/filecoin-project/go-address"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/build"
	"github.com/filecoin-shipyard/filsim/chain/types"
	"github.com/filecoin-shipyard/filsim/lib/sigs"
)

const maxMessageSize = 32 * 1024

// checkMessage performs the structural and semantic validation of a signed
// message at the public submission boundary.
func (mp *MessagePool) checkMessage(sm *types.SignedMessage) error {
	data, err := sm.Message.Serialize()
	if err != nil {
		return xerrors.Errorf("serializing message: %w", err)
	}

	if len(data) > maxMessageSize {
		return xerrors.Errorf("mpool message too large (%dB): %w", len(data), ErrMessageTooBig)
	}

	if err := sm.Message.ValidForBlockInclusion(); err != nil {
		return xerrors.Errorf("message not valid for block inclusion: %w", err)
	}

	if sm.Message.GasLimit > build.BlockGasLimit {
		return xerrors.Errorf("message gas limit %d above block gas limit %d: %w",
			sm.Message.GasLimit, build.BlockGasLimit, ErrMessageTooBig)
	}

	if sm.Message.Method != 0 {
		return xerrors.Errorf("method %d: %w", sm.Message.Method, ErrUnsupportedMethod)
	}

	// the engine assigns nonces itself
	if sm.Message.Nonce != 0 {
		return xerrors.Errorf("nonce %d: %w", sm.Message.Nonce, ErrInvalidNonce)
	}

	if !validTransferProtocol(sm.Message.From) || !validTransferProtocol(sm.Message.To) {
		return ErrInvalidProtocol
	}

	if err := mp.verifyMsgSig(sm, data); err != nil {
		return err
	}

	return nil
}

func validTransferProtocol(a address.Address) bool {
	switch a.Protocol() {
	case address.SECP256K1, address.BLS:
		return true
	default:
		return false
	}
}

func (mp *MessagePool) verifyMsgSig(sm *types.SignedMessage, msgData []byte) error {
	sck := sm.Cid()

	if _, ok := mp.sigValCache.Get(sck); ok {
		return nil
	}

	if err := sigs.Verify(&sm.Signature, sm.Message.From, msgData); err != nil {
		log.Debugf("signature verification failed for message from %s: %s", sm.Message.From, err)
		return ErrInvalidSignature
	}

	mp.sigValCache.Add(sck, struct{}{})

	return nil
}
