package objstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	offline "github.com/ipfs/go-ipfs-exchange-offline"
	format "github.com/ipfs/go-ipld-format"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipfs/go-merkledag"
	"golang.org/x/xerrors"
)

var log = logging.Logger("objstore")

// ReadTimeout bounds lookups against the object store. Operations that do
// not resolve within it report the object as missing.
const ReadTimeout = 500 * time.Millisecond

var ErrObjectNotFound = errors.New("object not found locally")

type Stat struct {
	Size uint64
}

// Store is a content-addressed object store over a blockstore partition of
// the key/value store, served through an offline blockservice.
type Store struct {
	bs   blockstore.Blockstore
	bsvc blockservice.BlockService
	dag  format.DAGService

	lk      sync.Mutex
	started bool
}

func New(ds datastore.Batching) *Store {
	bs := blockstore.NewBlockstore(ds)
	bsvc := blockservice.New(bs, offline.Exchange(bs))

	return &Store{
		bs:   bs,
		bsvc: bsvc,
		dag:  merkledag.NewDAGService(bsvc),
	}
}

func (s *Store) Start(ctx context.Context) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.started {
		return xerrors.New("object store already started")
	}

	s.started = true
	log.Info("object store up")

	return nil
}

func (s *Store) Stop() error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if !s.started {
		return nil
	}

	s.started = false
	return s.bsvc.Close()
}

// Put stores data as a single raw node and returns its cid.
func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	nd := merkledag.NewRawNode(data)
	if err := s.dag.Add(ctx, nd); err != nil {
		return cid.Undef, xerrors.Errorf("adding object: %w", err)
	}

	return nd.Cid(), nil
}

// PutFile imports the file at path.
func (s *Store) PutFile(ctx context.Context, path string) (cid.Cid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cid.Undef, xerrors.Errorf("reading %s: %w", path, err)
	}

	return s.Put(ctx, data)
}

// Stat reports the size of the object at c, failing with ErrObjectNotFound
// when the lookup does not resolve within ReadTimeout.
func (s *Store) Stat(ctx context.Context, c cid.Cid) (Stat, error) {
	nd, err := s.get(ctx, c)
	if err != nil {
		return Stat{}, err
	}

	return Stat{Size: uint64(len(nd.RawData()))}, nil
}

// Read returns the object's bytes.
func (s *Store) Read(ctx context.Context, c cid.Cid) ([]byte, error) {
	nd, err := s.get(ctx, c)
	if err != nil {
		return nil, err
	}

	return nd.RawData(), nil
}

func (s *Store) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return s.bs.Has(ctx, c)
}

func (s *Store) get(ctx context.Context, c cid.Cid) (format.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	nd, err := s.dag.Get(ctx, c)
	if err != nil {
		return nil, xerrors.Errorf("object %s: %w", c, ErrObjectNotFound)
	}

	return nd, nil
}
