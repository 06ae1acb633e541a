package config

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// FromFile loads the config from path, falling back to the defaults when no
// file exists.
func FromFile(path string) (*FullNode, error) {
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return DefaultFullNode(), nil
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck
	return FromReader(file)
}

// FromReader loads the config from a reader instance.
func FromReader(reader io.Reader) (*FullNode, error) {
	cfg := DefaultFullNode()
	if _, err := toml.NewDecoder(reader).Decode(cfg); err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// WriteFile persists cfg at path.
func WriteFile(path string, cfg *FullNode) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck

	return toml.NewEncoder(file).Encode(cfg)
}
