package launcher

import (
	"time"

	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/integration"
)

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Ledger  LedgerDefaults
	Storage StorageDefaults
	HTTP    HTTPDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level process settings.
type NodeDefaults struct {
	DataDir string //	Filesystem root of the ledger database. Changing it lets several ledgers run side by side.
	Name    string //	Instance name attached to every log line.
}

// LedgerDefaults selects the rules of a newly created ledger.
type LedgerDefaults struct {
	Network            string        //	Rules preset name (main, test, fake).
	CustodyAccount     string        //	Account holding locked and reward funds inside the custody bank.
	OpenCustody        bool          //	When true deposits are not debited from payers; convenient on test networks.
	CheckpointInterval time.Duration //	How often the server catches the ledger up with the clock on its own.
}

// StorageDefaults configures the database.
type StorageDefaults struct {
	Preset string //	Storage preset name, see integration.GetPresetByName.
}

// HTTPDefaults configures the JSON API server.
type HTTPDefaults struct {
	Addr    string        //	Interface the server binds to (0.0.0.0 for all, 127.0.0.1 for local-only).
	Port    int           //	TCP port of the server.
	Timeout time.Duration //	Read and write timeout of one request.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs.
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.veledger",
			Name:    "veledger",
		},
		Ledger: LedgerDefaults{
			Network:            escrow.FakeNetName,
			CustodyAccount:     "0x00000000000000000000000000000000000e5c00",
			OpenCustody:        false,
			CheckpointInterval: time.Minute,
		},
		Storage: StorageDefaults{
			Preset: integration.DefaultPreset().Name,
		},
		HTTP: HTTPDefaults{
			Addr:    "127.0.0.1",
			Port:    18545,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
