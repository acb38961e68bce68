package integration

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/leveldb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
)

// LedgerDBName is the directory of the ledger database inside the data dir.
const LedgerDBName = "ledgerdata"

// OpenDB opens the database selected by preset under datadir.
func OpenDB(preset PresetConfig, datadir string) (kvdb.Store, error) {
	switch preset.Backend {
	case BackendMemory:
		return memorydb.New(), nil
	case BackendLevelDB:
		path := filepath.Join(datadir, LedgerDBName)
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		db, err := leveldb.New(path, preset.CacheMB, preset.Handles, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", path, err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", preset.Backend)
}
