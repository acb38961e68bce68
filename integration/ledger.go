package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/custody"
	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/escrow/store"
)

// LedgerConfig describes how to assemble a ledger.
type LedgerConfig struct {
	Rules escrow.Rules
	// Owner is the admin of a freshly created ledger. A restored ledger keeps
	// its persisted owner.
	Owner common.Address
	// Custody is the account holding funds on behalf of the ledger.
	Custody common.Address
	// OpenCustody accepts deposits without debiting payers.
	OpenCustody bool
	Preset      PresetConfig
	DataDir     string
	// Clock overrides the wall clock.
	Clock func() time.Time
}

// Ledger is an engine wired to its database, snapshot store and custody bank.
type Ledger struct {
	DB     kvdb.Store
	Store  *store.Store
	Bank   *custody.Bank
	Host   *ClockHost
	Engine *escrow.Engine

	// Restored is set when the engine was loaded from a snapshot.
	Restored bool

	keep uint64
	log  logrus.FieldLogger
}

// MakeLedger opens the database and either restores the latest snapshot or
// creates a new ledger from cfg.Rules, persisting its genesis state.
func MakeLedger(cfg LedgerConfig, log logrus.FieldLogger) (*Ledger, error) {
	db, err := OpenDB(cfg.Preset, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		DB:    db,
		Store: store.New(db, log),
		Host:  NewClockHost(cfg.Clock, 0),
		keep:  cfg.Preset.KeepSnapshots,
		log:   log,
	}
	if cfg.OpenCustody {
		l.Bank = custody.NewOpenBank(cfg.Custody)
	} else {
		l.Bank = custody.NewBank(cfg.Custody)
	}

	if err := l.load(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load(cfg LedgerConfig) error {
	rec, err := l.Store.Latest()
	if errors.Is(err, store.ErrNotFound) {
		e, err := escrow.New(cfg.Rules, l.Host, l.Bank, escrow.WithLogger(l.log), escrow.WithOwner(cfg.Owner))
		if err != nil {
			return err
		}
		l.Engine = e
		h, err := l.Commit(e)
		if err != nil {
			return err
		}
		l.log.WithFields(logrus.Fields{
			"network": cfg.Rules.Name,
			"owner":   cfg.Owner.Hex(),
			"hash":    h.String(),
		}).Info("New ledger created")
		return nil
	}
	if err != nil {
		return err
	}

	if name := rec.Snapshot.Rules.Name; name != cfg.Rules.Name {
		return fmt.Errorf("database holds ledger of network %q, configured %q", name, cfg.Rules.Name)
	}
	if n := len(rec.Snapshot.Global); n > 0 {
		last := rec.Snapshot.Global[n-1]
		l.Host.Resume(last.Ts, last.Blk)
	}
	l.Bank.Import(rec.Balances)
	e, err := escrow.Restore(rec.Snapshot, l.Host, l.Bank, escrow.WithLogger(l.log))
	if err != nil {
		return fmt.Errorf("restore snapshot %d: %w", rec.Seq, err)
	}
	l.Engine = e
	l.Restored = true
	l.log.WithFields(logrus.Fields{
		"seq":  rec.Seq,
		"hash": rec.Hash.String(),
	}).Info("Ledger restored")
	return nil
}

// Commit persists the state of e and the bank, then prunes old snapshots.
// It has the signature of api.CommitFunc.
func (l *Ledger) Commit(e *escrow.Engine) (hash.Hash, error) {
	_, h, err := l.Store.Save(e.Snapshot(), l.Bank.Export())
	if err != nil {
		return hash.Hash{}, err
	}
	if _, err := l.Store.Prune(l.keep); err != nil {
		return hash.Hash{}, err
	}
	return h, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.DB.Close()
}
