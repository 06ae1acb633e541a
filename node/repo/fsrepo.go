package repo

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	homedir "github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/filecoin-shipyard/filsim/node/config"
)

var log = logging.Logger("repo")

const (
	fsConfig    = "config.toml"
	fsDatastore = "datastore"
)

// FsRepo is a repo rooted in a directory on disk, with a leveldb-backed
// key/value store.
type FsRepo struct {
	path string

	dsLk sync.Mutex
	ds   datastore.Batching
}

func NewFS(path string) (*FsRepo, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	return &FsRepo{path: path}, nil
}

// Init creates the repo directory and a default config if none exists yet.
func (fsr *FsRepo) Init() error {
	exist, err := fsr.exists()
	if err != nil {
		return err
	}
	if exist {
		return nil
	}

	log.Infof("initializing repo at '%s'", fsr.path)
	if err := os.MkdirAll(fsr.path, 0755); err != nil {
		return err
	}

	return config.WriteFile(filepath.Join(fsr.path, fsConfig), config.DefaultFullNode())
}

func (fsr *FsRepo) exists() (bool, error) {
	_, err := os.Stat(filepath.Join(fsr.path, fsConfig))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (fsr *FsRepo) Config() (*config.FullNode, error) {
	return config.FromFile(filepath.Join(fsr.path, fsConfig))
}

func (fsr *FsRepo) Datastore(ctx context.Context) (datastore.Batching, error) {
	fsr.dsLk.Lock()
	defer fsr.dsLk.Unlock()

	if fsr.ds != nil {
		return fsr.ds, nil
	}

	ds, err := levelds.NewDatastore(filepath.Join(fsr.path, fsDatastore), nil)
	if err != nil {
		return nil, xerrors.Errorf("opening leveldb datastore: %w", err)
	}

	fsr.ds = ds
	return ds, nil
}

func (fsr *FsRepo) Path() string {
	return fsr.path
}

func (fsr *FsRepo) Close() error {
	fsr.dsLk.Lock()
	defer fsr.dsLk.Unlock()

	if fsr.ds == nil {
		return nil
	}

	err := fsr.ds.Close()
	fsr.ds = nil
	return err
}
