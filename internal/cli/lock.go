package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/gofrs/flock"
)

var lockFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&lockFile, "lock-file", "",
		"maintenance lock file (default: hybridctl-<namespace>.lock in the temp dir)")
}

// lockMaintenance takes the host-wide lock that keeps two hybridctl runs from
// indexing and sweeping the same namespace at once. It does not wait.
func lockMaintenance(cfg *config.Config) (func(), error) {
	path := lockFile
	if path == "" {
		path = filepath.Join(os.TempDir(), "hybridctl-"+cfg.Storage.Namespace+".lock")
	}
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring maintenance lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another hybridctl maintenance task holds %s", path)
	}
	return func() { _ = l.Unlock() }, nil
}
