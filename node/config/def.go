package config

import (
	"time"
)

// FullNode is the simulator node config.
type FullNode struct {
	API    API
	Chain  Chain
	Wallet Wallet
	Miner  Miner
}

type API struct {
	// ListenAddress is the host:port the JSON-RPC server binds to.
	ListenAddress string
}

type Chain struct {
	// BlockTime is the cadence of the mining timer. Zero selects instamine:
	// every accepted message immediately triggers a new tipset.
	BlockTime Duration
}

type Wallet struct {
	// Seed keys the deterministic generator used for the genesis accounts.
	Seed int64
	// Accounts is the number of accounts seeded at genesis.
	Accounts int
	// DefaultBalanceFIL is the genesis balance of each seeded account, in
	// whole FIL.
	DefaultBalanceFIL uint64
}

type Miner struct {
	// Address overrides the in-process miner address.
	Address string
}

func DefaultFullNode() *FullNode {
	return &FullNode{
		API: API{
			ListenAddress: "127.0.0.1:7777",
		},
		Chain: Chain{
			BlockTime: Duration(0),
		},
		Wallet: Wallet{
			Seed:              1,
			Accounts:          10,
			DefaultBalanceFIL: 1000,
		},
	}
}

// Duration is a wrapper type for time.Duration for decoding and encoding
// from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return nil
}

// MarshalText implements interface for TOML encoding
func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
