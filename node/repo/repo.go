package repo

import (
	"context"

	"github.com/ipfs/go-datastore"

	"github.com/filecoin-shipyard/filsim/node/config"
)

// Repo is the durable home of a node: its config and its key/value store.
type Repo interface {
	// Config loads the node config.
	Config() (*config.FullNode, error)

	// Datastore opens the backing key/value store. The store stays owned by
	// the repo; Close releases it.
	Datastore(ctx context.Context) (datastore.Batching, error)

	// Path is the filesystem location of the repo, if any.
	Path() string

	// Close releases the datastore.
	Close() error
}
