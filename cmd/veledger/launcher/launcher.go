package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-escrow/api"
	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/flags"
	"github.com/rony4d/go-opera-escrow/integration"
)

const (
	version = "1.0.0"

	// maxCatchUpRounds bounds the checkpoint calls of one catch-up.
	maxCatchUpRounds = 1000

	shutdownTimeout = 10 * time.Second
)

var app = newApp()

func newApp() *cli.App {
	app := flags.NewApp(version, "voting-escrow ledger with windowed reward distribution")
	app.Flags = flags.AllFlags()
	app.Action = serve
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the ledger over HTTP (default)",
			Action: serve,
		},
		{
			Name:   "checkpoint",
			Usage:  "Catch the ledger history up with the clock and persist it",
			Action: checkpoint,
		},
		{
			Name:   "inspect",
			Usage:  "Dump the persisted ledger state",
			Flags:  flags.InspectFlags(),
			Action: inspect,
		},
	}
	return app
}

// Launch parses the arguments and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}

// setup assembles the config, the logger and the ledger shared by all commands.
func setup(ctx *cli.Context) (Config, *logrus.Entry, *integration.Ledger, error) {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := makeLogger(cfg.Node.Logging, cfg.Node.Name, ctx.App.ErrWriter)
	if err != nil {
		return cfg, nil, nil, err
	}
	lcfg, err := ledgerConfig(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	if lcfg.Preset.Backend != integration.BackendMemory {
		if err := ensureDir(lcfg.DataDir); err != nil {
			return cfg, nil, nil, err
		}
	}
	l, err := integration.MakeLedger(lcfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, log, l, nil
}

// catchUp calls Checkpoint until the history reaches the clock.
func catchUp(e *escrow.Engine, limit int) (int, bool, error) {
	rounds := 0
	for rounds < limit {
		complete, err := e.Checkpoint()
		if err != nil {
			return rounds, false, err
		}
		rounds++
		if complete {
			return rounds, true, nil
		}
	}
	return rounds, false, nil
}

func serve(ctx *cli.Context) error {
	cfg, log, l, err := setup(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	svc := api.NewService(l.Engine, l.Bank, l.Commit, log)
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Node.HTTP.Addr, strconv.Itoa(cfg.Node.HTTP.Port)),
		Handler:      svc.Handler(),
		ReadTimeout:  cfg.Node.HTTP.Timeout,
		WriteTimeout: cfg.Node.HTTP.Timeout,
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	if interval := cfg.Ledger.CheckpointInterval; interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkpointLoop(svc, interval, stop, log)
		}()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.WithFields(logrus.Fields{
		"addr":    srv.Addr,
		"network": l.Engine.Rules().Name,
		"owner":   l.Engine.Owner().Hex(),
	}).Info("Ledger server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err = <-errc:
	}

	close(stop)
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// checkpointLoop keeps the ledger history close to the clock so that user
// operations never hit the boundary backlog after an idle period.
func checkpointLoop(svc *api.Service, interval time.Duration, stop <-chan struct{}, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var rounds int
			err := svc.Update(func(e *escrow.Engine) error {
				var err error
				rounds, _, err = catchUp(e, maxCatchUpRounds)
				return err
			})
			switch {
			case errors.Is(err, escrow.ErrCheckpointTooSoon):
			case err != nil:
				log.WithError(err).Error("Automatic checkpoint failed")
			default:
				log.WithField("rounds", rounds).Debug("Automatic checkpoint")
			}
		}
	}
}

func checkpoint(ctx *cli.Context) error {
	_, log, l, err := setup(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	rounds, complete, err := catchUp(l.Engine, maxCatchUpRounds)
	if err != nil {
		return err
	}
	h, err := l.Commit(l.Engine)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"rounds":   rounds,
		"complete": complete,
	}).Info("Checkpoint persisted")
	fmt.Fprintf(ctx.App.Writer, "epoch=%d complete=%v rounds=%d hash=%s\n", l.Engine.Epoch(), complete, rounds, h.String())
	return nil
}

func inspect(ctx *cli.Context) error {
	_, _, l, err := setup(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	snap := l.Engine.Snapshot()
	if raw := ctx.String("hash"); raw != "" {
		rec, err := l.Store.LoadByHash(hash.HexToHash(raw))
		if err != nil {
			return err
		}
		snap = rec.Snapshot
	}

	w := ctx.App.Writer
	if raw := ctx.String("user"); raw != "" {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("invalid address %q", raw)
		}
		user := common.HexToAddress(raw)
		for _, acc := range snap.Accounts {
			if acc.User == user {
				spew.Fdump(w, acc)
			}
		}
		for _, c := range snap.Cursors {
			if c.User == user {
				spew.Fdump(w, c)
			}
		}
		return nil
	}
	fmt.Fprintf(w, "hash=%s\n", snap.Hash().String())
	spew.Fdump(w, snap)
	return nil
}
