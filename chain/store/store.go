package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/filecoin-project/go-state-types/abi"
	pubsub "github.com/filecoin-project/pubsub"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/chain/types"
)

var log = logging.Logger("chainstore")

var latestTipsetKey = datastore.NewKey("latest-tipset")

var (
	blocksPrefix        = datastore.NewKey("/blocks")
	tipsetsPrefix       = datastore.NewKey("/tipsets")
	signedMsgsPrefix    = datastore.NewKey("/signedMessages")
	blockMessagesPrefix = datastore.NewKey("/blockMessages")
)

// ChainStore holds the block header, tipset, signed message and
// block→messages partitions of the key/value store, and tracks the earliest
// (genesis) and latest tipset references. All writes are write-through; the
// tipset commit is a single atomic batch.
type ChainStore struct {
	ds datastore.Batching

	lk       sync.Mutex
	earliest *types.TipSet
	latest   *types.TipSet

	bestTips *pubsub.PubSub
}

func NewChainStore(ds datastore.Batching) *ChainStore {
	return &ChainStore{
		ds:       ds,
		bestTips: pubsub.New(64),
	}
}

// Load restores the earliest and latest tipset references from the store.
// A store with no latest-tipset key is fresh; both references stay nil.
func (cs *ChainStore) Load(ctx context.Context) error {
	data, err := cs.ds.Get(ctx, latestTipsetKey)
	if err == datastore.ErrNotFound {
		log.Warn("no previous chain state found")
		return nil
	}
	if err != nil {
		return xerrors.Errorf("loading latest tipset: %w", err)
	}

	height := abi.ChainEpoch(binary.BigEndian.Uint64(data))

	latest, err := cs.GetTipsetByHeight(ctx, height)
	if err != nil {
		return xerrors.Errorf("loading tipset at height %d: %w", height, err)
	}
	if latest == nil {
		return xerrors.Errorf("latest-tipset points at height %d but no tipset is persisted there", height)
	}

	earliest, err := cs.GetTipsetByHeight(ctx, 0)
	if err != nil {
		return xerrors.Errorf("loading genesis tipset: %w", err)
	}

	cs.lk.Lock()
	cs.earliest = earliest
	cs.latest = latest
	cs.lk.Unlock()

	return nil
}

// SetGenesis persists ts as the genesis tipset and sets it as the chain tip.
func (cs *ChainStore) SetGenesis(ctx context.Context, ts *types.TipSet) error {
	if ts.Height() != 0 {
		return xerrors.Errorf("genesis tipset must have height 0, got %d", ts.Height())
	}

	if err := cs.commitTipset(ctx, ts, nil); err != nil {
		return err
	}

	cs.lk.Lock()
	cs.earliest = ts
	cs.latest = ts
	cs.lk.Unlock()

	return nil
}

// CommitTipset durably persists a newly mined tipset together with the
// messages it includes, then advances the in-memory tip. Block headers, the
// signed messages, the block→messages index, the tipset record and the
// latest-tipset key are committed in one write batch, so a crash cannot
// leave the tip pointing at a partially persisted tipset.
func (cs *ChainStore) CommitTipset(ctx context.Context, ts *types.TipSet, msgs []*types.SignedMessage) error {
	if err := cs.commitTipset(ctx, ts, msgs); err != nil {
		return err
	}

	cs.lk.Lock()
	cs.latest = ts
	cs.lk.Unlock()

	return nil
}

func (cs *ChainStore) commitTipset(ctx context.Context, ts *types.TipSet, msgs []*types.SignedMessage) error {
	batch, err := cs.ds.Batch(ctx)
	if err != nil {
		return xerrors.Errorf("creating write batch: %w", err)
	}

	for i, blk := range ts.Blocks() {
		data, err := blk.Serialize()
		if err != nil {
			return xerrors.Errorf("serializing block header: %w", err)
		}

		if err := batch.Put(ctx, blockKey(ts.Cids()[i]), data); err != nil {
			return err
		}
	}

	msgCids := make([]cid.Cid, 0, len(msgs))
	for _, sm := range msgs {
		data, err := sm.Serialize()
		if err != nil {
			return xerrors.Errorf("serializing signed message: %w", err)
		}

		c := sm.Cid()
		if err := batch.Put(ctx, signedMsgKey(c), data); err != nil {
			return err
		}
		msgCids = append(msgCids, c)
	}

	// all included messages are attributed to the first block of the tipset
	idx, err := cbor.DumpObject(msgCids)
	if err != nil {
		return xerrors.Errorf("serializing block message index: %w", err)
	}
	if err := batch.Put(ctx, blockMessagesKey(ts.Cids()[0]), idx); err != nil {
		return err
	}

	tsData, err := cbor.DumpObject(ts.Cids())
	if err != nil {
		return xerrors.Errorf("serializing tipset: %w", err)
	}
	if err := batch.Put(ctx, tipsetKey(ts.Height()), tsData); err != nil {
		return err
	}

	height := make([]byte, 8)
	binary.BigEndian.PutUint64(height, uint64(ts.Height()))
	if err := batch.Put(ctx, latestTipsetKey, height); err != nil {
		return err
	}

	if err := batch.Commit(ctx); err != nil {
		return xerrors.Errorf("committing tipset batch: %w", err)
	}

	return nil
}

// GetTipsetByHeight returns the tipset persisted at the given height with
// its block headers loaded, or nil when no tipset exists there.
func (cs *ChainStore) GetTipsetByHeight(ctx context.Context, height abi.ChainEpoch) (*types.TipSet, error) {
	data, err := cs.ds.Get(ctx, tipsetKey(height))
	if err == datastore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("reading tipset at height %d: %w", height, err)
	}

	var cids []cid.Cid
	if err := cbor.DecodeInto(data, &cids); err != nil {
		return nil, xerrors.Errorf("decoding tipset at height %d: %w", height, err)
	}

	blks := make([]*types.BlockHeader, 0, len(cids))
	for _, c := range cids {
		blk, err := cs.GetBlock(ctx, c)
		if err != nil {
			return nil, err
		}
		blks = append(blks, blk)
	}

	return types.NewTipSetWithCids(blks, cids)
}

func (cs *ChainStore) GetBlock(ctx context.Context, c cid.Cid) (*types.BlockHeader, error) {
	data, err := cs.ds.Get(ctx, blockKey(c))
	if err != nil {
		return nil, xerrors.Errorf("reading block %s: %w", c, err)
	}

	return types.DecodeBlock(data)
}

func (cs *ChainStore) GetSignedMessage(ctx context.Context, c cid.Cid) (*types.SignedMessage, error) {
	data, err := cs.ds.Get(ctx, signedMsgKey(c))
	if err != nil {
		return nil, xerrors.Errorf("reading signed message %s: %w", c, err)
	}

	return types.DecodeSignedMessage(data)
}

// GetBlockMessages joins the block→messages index against the signed
// message partition.
func (cs *ChainStore) GetBlockMessages(ctx context.Context, blk cid.Cid) ([]*types.SignedMessage, error) {
	data, err := cs.ds.Get(ctx, blockMessagesKey(blk))
	if err == datastore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("reading block message index for %s: %w", blk, err)
	}

	var cids []cid.Cid
	if err := cbor.DecodeInto(data, &cids); err != nil {
		return nil, xerrors.Errorf("decoding block message index for %s: %w", blk, err)
	}

	out := make([]*types.SignedMessage, 0, len(cids))
	for _, c := range cids {
		sm, err := cs.GetSignedMessage(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}

	return out, nil
}

// GetHeaviestTipSet returns the current chain tip.
func (cs *ChainStore) GetHeaviestTipSet() *types.TipSet {
	cs.lk.Lock()
	defer cs.lk.Unlock()
	return cs.latest
}

// GetGenesis returns the earliest tipset.
func (cs *ChainStore) GetGenesis() *types.TipSet {
	cs.lk.Lock()
	defer cs.lk.Unlock()
	return cs.earliest
}

// NotifyTipset publishes ts to tipset subscribers. Callers invoke it after
// the commit is durable.
func (cs *ChainStore) NotifyTipset(ts *types.TipSet) {
	cs.bestTips.Pub(ts, "tipset")
}

// SubTipsetChanges delivers every tipset committed after the subscription.
// The channel closes when ctx is done.
func (cs *ChainStore) SubTipsetChanges(ctx context.Context) chan *types.TipSet {
	subch := cs.bestTips.Sub("tipset")
	out := make(chan *types.TipSet, 16)

	go func() {
		defer close(out)

		for {
			select {
			case val, ok := <-subch:
				if !ok {
					return
				}

				select {
				case out <- val.(*types.TipSet):
				case <-ctx.Done():
					go cs.bestTips.Unsub(subch)
					return
				}
			case <-ctx.Done():
				go cs.bestTips.Unsub(subch)
				return
			}
		}
	}()

	return out
}

func (cs *ChainStore) Close() error {
	cs.bestTips.Shutdown()
	return nil
}

func blockKey(c cid.Cid) datastore.Key {
	return blocksPrefix.ChildString(c.String())
}

func tipsetKey(height abi.ChainEpoch) datastore.Key {
	return tipsetsPrefix.ChildString(fmt.Sprintf("%d", height))
}

func signedMsgKey(c cid.Cid) datastore.Key {
	return signedMsgsPrefix.ChildString(c.String())
}

func blockMessagesKey(c cid.Cid) datastore.Key {
	return blockMessagesPrefix.ChildString(c.String())
}
