// Package api exposes the escrow ledger over HTTP with a JSON body codec.
//
// The ledger itself is single-threaded; Service serialises every request
// through one mutex, which mirrors how a host executes transactions one at a
// time. Successful mutations are followed by the optional commit hook, which
// the launcher uses to persist a snapshot.
package api

import (
	"net/http"

	"github.com/Fantom-foundation/lachesis-base/hash"
	jsoniter "github.com/json-iterator/go"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/custody"
	"github.com/rony4d/go-opera-escrow/escrow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommitFunc is called after every successful mutation, with the service lock held.
type CommitFunc func(e *escrow.Engine) (hash.Hash, error)

// Service serialises access to one engine.
type Service struct {
	mu     *deadlock.Mutex
	engine *escrow.Engine
	bank   *custody.Bank
	commit CommitFunc
	log    logrus.FieldLogger
}

// NewService wraps engine and the bank holding its custody. commit may be nil.
func NewService(engine *escrow.Engine, bank *custody.Bank, commit CommitFunc, log logrus.FieldLogger) *Service {
	return &Service{
		mu:     &deadlock.Mutex{},
		engine: engine,
		bank:   bank,
		commit: commit,
		log:    log,
	}
}

// View runs fn with exclusive read access to the engine.
func (s *Service) View(fn func(e *escrow.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

// Update runs fn with exclusive access and commits when it succeeds. The
// engine state is the source of truth: once fn has succeeded the mutation
// stands, so a failed commit is logged and left for the next commit, which
// persists the whole state again.
func (s *Service) Update(fn func(e *escrow.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.engine); err != nil {
		return err
	}
	if s.commit == nil {
		return nil
	}
	h, err := s.commit(s.engine)
	if err != nil {
		s.log.WithError(err).Error("Failed to persist ledger state")
		return nil
	}
	s.log.WithField("hash", h.String()).Debug("Ledger state committed")
	return nil
}

// Handler returns the HTTP handler serving every route.
func (s *Service) Handler() http.Handler {
	return NewRouter(s)
}
