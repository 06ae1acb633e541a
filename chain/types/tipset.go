package types

import (
	"encoding/json"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
)

// TipSet groups blocks at the same height sharing the same parent set; it is
// the unit of chain progress.
type TipSet struct {
	cids   []cid.Cid
	blks   []*BlockHeader
	height abi.ChainEpoch
}

// why didnt i just export the fields? Because the struct has methods with the
// same names already
type expTipSet struct {
	Cids   []cid.Cid
	Blocks []*BlockHeader
	Height abi.ChainEpoch
}

func (ts *TipSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(expTipSet{
		Cids:   ts.cids,
		Blocks: ts.blks,
		Height: ts.height,
	})
}

func (ts *TipSet) UnmarshalJSON(b []byte) error {
	var ets expTipSet
	if err := json.Unmarshal(b, &ets); err != nil {
		return err
	}

	ts.cids = ets.Cids
	ts.blks = ets.Blocks
	ts.height = ets.Height
	return nil
}

func NewTipSet(blks []*BlockHeader) (*TipSet, error) {
	if len(blks) == 0 {
		return nil, fmt.Errorf("cannot create tipset with no blocks")
	}

	var ts TipSet
	ts.cids = []cid.Cid{blks[0].Cid()}
	ts.blks = blks
	for _, b := range blks[1:] {
		if b.Height != blks[0].Height {
			return nil, fmt.Errorf("cannot create tipset with mismatching heights")
		}
		if !CidArrsEqual(b.Parents, blks[0].Parents) {
			return nil, fmt.Errorf("cannot create tipset with mismatching parents")
		}
		ts.cids = append(ts.cids, b.Cid())
	}
	ts.height = blks[0].Height

	return &ts, nil
}

// NewTipSetWithCids trusts the caller-supplied block cids instead of deriving
// them from the headers. Used for the genesis tipset, whose block is
// addressed by a well-known cid rather than by its content hash.
func NewTipSetWithCids(blks []*BlockHeader, cids []cid.Cid) (*TipSet, error) {
	if len(blks) == 0 || len(blks) != len(cids) {
		return nil, fmt.Errorf("blocks and cids must be non-empty and of equal length")
	}

	return &TipSet{
		cids:   cids,
		blks:   blks,
		height: blks[0].Height,
	}, nil
}

func (ts *TipSet) Cids() []cid.Cid {
	return ts.cids
}

func (ts *TipSet) Height() abi.ChainEpoch {
	return ts.height
}

func (ts *TipSet) Parents() []cid.Cid {
	return ts.blks[0].Parents
}

func (ts *TipSet) Blocks() []*BlockHeader {
	return ts.blks
}

func (ts *TipSet) Equals(ots *TipSet) bool {
	if ts == nil && ots == nil {
		return true
	}
	if ts == nil || ots == nil {
		return false
	}

	if len(ts.cids) != len(ots.cids) {
		return false
	}

	for i, c := range ts.cids {
		if c != ots.cids[i] {
			return false
		}
	}

	return true
}

func (ts *TipSet) MinTicket() *Ticket {
	return ts.blks[0].Ticket
}

func CidArrsEqual(a, b []cid.Cid) bool {
	if len(a) != len(b) {
		return false
	}

	s := make(map[cid.Cid]bool)
	for _, c := range a {
		s[c] = true
	}

	for _, c := range b {
		if !s[c] {
			return false
		}
	}
	return true
}
