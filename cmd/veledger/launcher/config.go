// This file maps the CLI context and config file to the Config struct

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/viper"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/integration"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	Ledger  LedgerConfig
	Storage StorageConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	HTTP    HTTPConfig
	Logging LoggingConfig
}

type HTTPConfig struct {
	Addr    string
	Port    int
	Timeout time.Duration
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

// LedgerConfig selects the rules preset and the overrides applied on top of it.
// Addresses and amounts stay strings until validated by ledgerConfig.
type LedgerConfig struct {
	Network            string
	Owner              string
	LockToken          string
	MinAmount          string
	MaxPoolMembers     uint64
	MaxClaimWindows    uint32
	CustodyAccount     string
	OpenCustody        bool
	CheckpointInterval time.Duration
}

type StorageConfig struct {
	Preset        string
	CacheMB       int
	Handles       int
	KeepSnapshots *uint64
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
			HTTP: HTTPConfig{
				Addr:    d.HTTP.Addr,
				Port:    d.HTTP.Port,
				Timeout: d.HTTP.Timeout,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Ledger: LedgerConfig{
			Network:            d.Ledger.Network,
			CustodyAccount:     d.Ledger.CustodyAccount,
			OpenCustody:        d.Ledger.OpenCustody,
			CheckpointInterval: d.Ledger.CheckpointInterval,
		},
		Storage: StorageConfig{
			Preset: d.Storage.Preset,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, then CLI overrides
// into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

// loadConfigFile overlays the values found in the file onto cfg. The format
// follows the file extension.
func loadConfigFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	if v.IsSet("node.datadir") {
		cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	}
	return nil
}

func isSet(ctx *cli.Context, name string) bool {
	return ctx.IsSet(name) || ctx.GlobalIsSet(name)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if isSet(ctx, "datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if isSet(ctx, "identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}

	if isSet(ctx, "http.addr") {
		cfg.Node.HTTP.Addr = ctx.GlobalString("http.addr")
	}
	if isSet(ctx, "http.port") {
		cfg.Node.HTTP.Port = ctx.GlobalInt("http.port")
	}
	if isSet(ctx, "http.timeout") {
		cfg.Node.HTTP.Timeout = ctx.GlobalDuration("http.timeout")
	}

	if isSet(ctx, "log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if isSet(ctx, "log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if isSet(ctx, "log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if isSet(ctx, "sentry.dsn") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if isSet(ctx, "network") {
		cfg.Ledger.Network = ctx.GlobalString("network")
	}
	if isSet(ctx, "owner") {
		cfg.Ledger.Owner = ctx.GlobalString("owner")
	}
	if isSet(ctx, "lock.token") {
		cfg.Ledger.LockToken = ctx.GlobalString("lock.token")
	}
	if isSet(ctx, "lock.min") {
		cfg.Ledger.MinAmount = ctx.GlobalString("lock.min")
	}
	if isSet(ctx, "pool.max") {
		cfg.Ledger.MaxPoolMembers = ctx.GlobalUint64("pool.max")
	}
	if isSet(ctx, "claim.maxwindows") {
		cfg.Ledger.MaxClaimWindows = uint32(ctx.GlobalUint("claim.maxwindows"))
	}
	if isSet(ctx, "custody.account") {
		cfg.Ledger.CustodyAccount = ctx.GlobalString("custody.account")
	}
	if isSet(ctx, "custody.open") {
		cfg.Ledger.OpenCustody = ctx.GlobalBool("custody.open")
	}
	if isSet(ctx, "checkpoint.interval") {
		cfg.Ledger.CheckpointInterval = ctx.GlobalDuration("checkpoint.interval")
	}

	if isSet(ctx, "preset") {
		cfg.Storage.Preset = ctx.GlobalString("preset")
	}
	if isSet(ctx, "cache") {
		cfg.Storage.CacheMB = ctx.GlobalInt("cache")
	}
	if isSet(ctx, "handles") {
		cfg.Storage.Handles = ctx.GlobalInt("handles")
	}
	if isSet(ctx, "snapshots.keep") {
		keep := ctx.GlobalUint64("snapshots.keep")
		cfg.Storage.KeepSnapshots = &keep
	}
}

// -----------------------------------------------------------------------------
// Validation into runtime configs
// -----------------------------------------------------------------------------

func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

// rules returns the selected preset with the configured overrides applied.
func (c LedgerConfig) rules() (escrow.Rules, error) {
	rules, err := escrow.RulesByName(c.Network)
	if err != nil {
		return rules, err
	}
	if c.LockToken != "" {
		if rules.Locks.Token, err = parseAddress("lock token", c.LockToken); err != nil {
			return rules, err
		}
	}
	if c.MinAmount != "" {
		amount, ok := math.ParseBig256(c.MinAmount)
		if !ok {
			return rules, fmt.Errorf("invalid minimum lock amount %q", c.MinAmount)
		}
		rules.Locks.MinAmount = amount
	}
	if c.MaxPoolMembers != 0 {
		rules.Locks.MaxPoolMembers = c.MaxPoolMembers
	}
	if c.MaxClaimWindows != 0 {
		rules.Rewards.MaxClaimWindows = c.MaxClaimWindows
	}
	return rules, rules.Validate()
}

// preset returns the selected storage preset with the configured overrides applied.
func (c StorageConfig) preset() (integration.PresetConfig, error) {
	preset, err := integration.GetPresetByName(c.Preset)
	if err != nil {
		return preset, err
	}
	if c.CacheMB > 0 {
		preset.CacheMB = c.CacheMB
	}
	if c.Handles > 0 {
		preset.Handles = c.Handles
	}
	if c.KeepSnapshots != nil {
		preset.KeepSnapshots = *c.KeepSnapshots
	}
	return preset, nil
}

// ledgerConfig validates cfg into the parameters of integration.MakeLedger.
func ledgerConfig(cfg Config) (integration.LedgerConfig, error) {
	rules, err := cfg.Ledger.rules()
	if err != nil {
		return integration.LedgerConfig{}, err
	}
	preset, err := cfg.Storage.preset()
	if err != nil {
		return integration.LedgerConfig{}, err
	}
	custody, err := parseAddress("custody account", cfg.Ledger.CustodyAccount)
	if err != nil {
		return integration.LedgerConfig{}, err
	}
	var owner common.Address
	if cfg.Ledger.Owner != "" {
		if owner, err = parseAddress("owner", cfg.Ledger.Owner); err != nil {
			return integration.LedgerConfig{}, err
		}
	}
	return integration.LedgerConfig{
		Rules:       rules,
		Owner:       owner,
		Custody:     custody,
		OpenCustody: cfg.Ledger.OpenCustody,
		Preset:      preset,
		DataDir:     cfg.Node.DataDir,
	}, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
