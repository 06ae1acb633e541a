package api

import "errors"

var (
	// ErrNotReady is returned by engine operations invoked before genesis
	// completion.
	ErrNotReady = errors.New("node is not ready; wait for the ready event")

	// ErrMissingWallet is returned by deal operations that reference no
	// wallet address.
	ErrMissingWallet = errors.New("deal proposal names no wallet address")

	// ErrUnknownPrivateKey is returned when a deal references a wallet the
	// engine holds no key material for.
	ErrUnknownPrivateKey = errors.New("no private key is managed for the given wallet")
)
