package launcher

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/flags"
	"github.com/rony4d/go-opera-escrow/integration"
)

// helper to run MakeAllConfigs with a synthetic CLI context.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllFlags()

	var (
		got    Config
		runErr error
	)
	app.Action = func(c *cli.Context) error {
		got, runErr = MakeAllConfigs(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"veledger"}, args...)))
	return got, runErr
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "veledger-launcher")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// TestMakeAllConfigs_flagOverrides verifies that command-line flags override
// the corresponding fields of the aggregated Config struct.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dir := tempDir(t)

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			args: nil,
			want: func(t *testing.T, cfg Config) {
				if cfg.Ledger.Network != escrow.FakeNetName {
					t.Fatalf("Network = %q, want %q", cfg.Ledger.Network, escrow.FakeNetName)
				}
				if cfg.Storage.Preset != "default" {
					t.Fatalf("Preset = %q, want default", cfg.Storage.Preset)
				}
				if cfg.Storage.KeepSnapshots != nil {
					t.Fatalf("KeepSnapshots = %d, want unset", *cfg.Storage.KeepSnapshots)
				}
				if cfg.Node.HTTP.Port != 18545 {
					t.Fatalf("HTTP port = %d, want 18545", cfg.Node.HTTP.Port)
				}
			},
		},
		{
			name: "datadir and identity",
			args: []string{"--datadir", dir, "--identity", "ledger-1"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Node.DataDir != dir {
					t.Fatalf("DataDir = %q, want %q", cfg.Node.DataDir, dir)
				}
				if cfg.Node.Name != "ledger-1" {
					t.Fatalf("Name = %q, want ledger-1", cfg.Node.Name)
				}
			},
		},
		{
			name: "ledger parameters",
			args: []string{"--network", "main", "--owner", "0x0e00000000000000000000000000000000000001", "--lock.min", "0x10", "--pool.max", "5", "--claim.maxwindows", "52", "--custody.open"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Ledger.Network != "main" || cfg.Ledger.MinAmount != "0x10" {
					t.Fatalf("Ledger = %+v", cfg.Ledger)
				}
				if cfg.Ledger.MaxPoolMembers != 5 || cfg.Ledger.MaxClaimWindows != 52 || !cfg.Ledger.OpenCustody {
					t.Fatalf("Ledger = %+v", cfg.Ledger)
				}
			},
		},
		{
			name: "storage and logging",
			args: []string{"--preset", "lite", "--snapshots.keep", "0", "--log.verbosity", "5", "--log.format", "json", "--http.timeout", "3s"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Storage.Preset != "lite" {
					t.Fatalf("Preset = %q, want lite", cfg.Storage.Preset)
				}
				if cfg.Storage.KeepSnapshots == nil || *cfg.Storage.KeepSnapshots != 0 {
					t.Fatal("KeepSnapshots should be explicitly zero")
				}
				if cfg.Node.Logging.Verbosity != 5 || cfg.Node.Logging.Format != "json" {
					t.Fatalf("Logging = %+v", cfg.Node.Logging)
				}
				if cfg.Node.HTTP.Timeout != 3*time.Second {
					t.Fatalf("Timeout = %v, want 3s", cfg.Node.HTTP.Timeout)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args)
			require.NoError(t, err)
			test.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_configFile(t *testing.T) {
	require := require.New(t)

	file := filepath.Join(tempDir(t), "ledger.yaml")
	require.NoError(ioutil.WriteFile(file, []byte(`
node:
  name: from-file
  http:
    port: 9999
    timeout: 5s
ledger:
  network: test
  maxclaimwindows: 12
storage:
  preset: full
  keepsnapshots: 3
`), 0o600))

	cfg, err := runConfigFromArgs(t, []string{"--config", file, "--http.port", "7000"})
	require.NoError(err)
	require.Equal("from-file", cfg.Node.Name)
	require.Equal(7000, cfg.Node.HTTP.Port)
	require.Equal(5*time.Second, cfg.Node.HTTP.Timeout)
	require.Equal("test", cfg.Ledger.Network)
	require.Equal(uint32(12), cfg.Ledger.MaxClaimWindows)
	require.Equal("full", cfg.Storage.Preset)
	require.NotNil(cfg.Storage.KeepSnapshots)
	require.Equal(uint64(3), *cfg.Storage.KeepSnapshots)
	// untouched by the file
	require.Equal(DefaultConfig().Ledger.CustodyAccount, cfg.Ledger.CustodyAccount)

	_, err = runConfigFromArgs(t, []string{"--config", filepath.Join(tempDir(t), "missing.yaml")})
	require.Error(err)
}

func TestLedgerConfig(t *testing.T) {
	require := require.New(t)

	cfg := defaultConfig()
	cfg.Ledger.Network = escrow.MainNetName
	cfg.Ledger.Owner = "0x0e00000000000000000000000000000000000001"
	cfg.Ledger.LockToken = "0x1000000000000000000000000000000000000000"
	cfg.Ledger.MinAmount = "250"
	cfg.Ledger.MaxClaimWindows = 10
	keep := uint64(9)
	cfg.Storage.Preset = "lite"
	cfg.Storage.KeepSnapshots = &keep

	lcfg, err := ledgerConfig(cfg)
	require.NoError(err)
	require.Equal(escrow.MainNetName, lcfg.Rules.Name)
	require.Equal(common.HexToAddress(cfg.Ledger.LockToken), lcfg.Rules.Locks.Token)
	require.Equal(int64(250), lcfg.Rules.Locks.MinAmount.Int64())
	require.Equal(uint32(10), lcfg.Rules.Rewards.MaxClaimWindows)
	require.Equal(common.HexToAddress(cfg.Ledger.Owner), lcfg.Owner)
	require.Equal(integration.BackendMemory, lcfg.Preset.Backend)
	require.Equal(uint64(9), lcfg.Preset.KeepSnapshots)
	// presets are not modified
	require.Equal(int64(1e18), escrow.MainNetRules().Locks.MinAmount.Int64())

	bad := cfg
	bad.Ledger.Owner = "alice"
	_, err = ledgerConfig(bad)
	require.Error(err)

	bad = cfg
	bad.Ledger.MinAmount = "-1"
	_, err = ledgerConfig(bad)
	require.Error(err)

	bad = cfg
	bad.Ledger.Network = "moon"
	_, err = ledgerConfig(bad)
	require.Error(err)

	bad = cfg
	bad.Storage.Preset = "archive"
	_, err = ledgerConfig(bad)
	require.Error(err)
}

func TestMakeLogger(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	log, err := makeLogger(LoggingConfig{Verbosity: 2, Format: "json"}, "ledger-1", &buf)
	require.NoError(err)
	require.Equal(logrus.WarnLevel, log.Logger.GetLevel())

	log.Info("hidden")
	require.Empty(buf.String())
	log.Warn("shown")
	require.Contains(buf.String(), `"instance":"ledger-1"`)
	require.Contains(buf.String(), `"msg":"shown"`)

	log, err = makeLogger(LoggingConfig{Verbosity: 5, Format: "text"}, "x", &buf)
	require.NoError(err)
	require.Equal(logrus.TraceLevel, log.Logger.GetLevel())

	_, err = makeLogger(LoggingConfig{Verbosity: 6}, "x", &buf)
	require.Error(err)
	_, err = makeLogger(LoggingConfig{Verbosity: 3, Format: "xml"}, "x", &buf)
	require.Error(err)
}

func TestCommands(t *testing.T) {
	require := require.New(t)

	run := func(args ...string) string {
		var out bytes.Buffer
		a := newApp()
		a.Writer = &out
		a.ErrWriter = ioutil.Discard
		require.NoError(a.Run(append([]string{"veledger", "--preset", "lite", "--log.verbosity", "0"}, args...)))
		return out.String()
	}

	require.Contains(run("checkpoint"), "complete=true")

	out := run("inspect")
	require.Contains(out, "hash=0x")
	require.Contains(out, "escrow.Snapshot")

	require.Empty(run("inspect", "--user", "0xa11ce00000000000000000000000000000000000"))
}
