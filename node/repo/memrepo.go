package repo

import (
	"context"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"github.com/filecoin-shipyard/filsim/node/config"
)

// MemRepo is an in-memory repo for tests. Its datastore survives Close, so
// a stopped node can be rebuilt on the same state to exercise restart
// recovery.
type MemRepo struct {
	ds  datastore.Batching
	cfg *config.FullNode
}

func NewMemory(cfg *config.FullNode) *MemRepo {
	if cfg == nil {
		cfg = config.DefaultFullNode()
	}

	return &MemRepo{
		ds:  dssync.MutexWrap(datastore.NewMapDatastore()),
		cfg: cfg,
	}
}

func (mem *MemRepo) Config() (*config.FullNode, error) {
	return mem.cfg, nil
}

func (mem *MemRepo) Datastore(ctx context.Context) (datastore.Batching, error) {
	return mem.ds, nil
}

func (mem *MemRepo) Path() string {
	return ""
}

func (mem *MemRepo) Close() error {
	return nil
}
