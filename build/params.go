package build

import (
	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
)

func init() {
	SetAddressNetwork(address.Testnet)
}

func SetAddressNetwork(n address.Network) {
	address.CurrentNetwork = n
}

// BurntFundsAddress is the well-known sink for base fees.
var BurntFundsAddress = mustParseAddress("t099")

// DefaultMinerAddress is the single in-process miner.
var DefaultMinerAddress = mustParseAddress("t01000")

// GenesisCID addresses the genesis block. The genesis block is stored under
// this well-known cid rather than under its content hash, so that clients
// built against existing test vectors resolve the same chain root.
var GenesisCID = mustParseCid("bafyreiaqpwbbyjo4a42saasj36kkrpv4tsherf2e7bvezkert2a7dhonoi")

const (
	// GenesisTicketLen is the size of the genesis vrf proof.
	GenesisTicketLen = 32

	// BlockGasLimit bounds the gas limit of a single message.
	BlockGasLimit = int64(10_000_000_000)

	// DefaultWinCount is the election win count stamped on simulated blocks.
	DefaultWinCount = int64(1)
)

func mustParseAddress(s string) address.Address {
	a, err := address.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

func mustParseCid(s string) cid.Cid {
	c, err := cid.Decode(s)
	if err != nil {
		panic(err)
	}
	return c
}
