package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// LedgerFlags select the rules preset and override its parameters.

func LedgerFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Rules preset (main|test|fake)",
			Value: "fake",
		},
		cli.StringFlag{
			Name:  "owner",
			Usage: "Admin address of a newly created ledger",
		},
		cli.StringFlag{
			Name:  "lock.token",
			Usage: "Address of the token accepted for locking, empty for the native coin",
		},
		cli.StringFlag{
			Name:  "lock.min",
			Usage: "Minimum lock amount, decimal or 0x-hex",
		},
		cli.Uint64Flag{
			Name:  "pool.max",
			Usage: "Maximum number of lock holders, 0 for unlimited",
		},
		cli.UintFlag{
			Name:  "claim.maxwindows",
			Usage: "Maximum windows settled by one claim, 0 for unlimited",
		},
		cli.StringFlag{
			Name:  "custody.account",
			Usage: "Account holding funds on behalf of the ledger",
		},
		cli.BoolFlag{
			Name:  "custody.open",
			Usage: "Accept deposits without debiting payers (test networks)",
		},
		cli.DurationFlag{
			Name:  "checkpoint.interval",
			Usage: "Period of automatic checkpoints while serving, 0 to disable",
			Value: time.Minute,
		},
	}
}

// StorageFlags tune the ledger database.

func StorageFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "preset",
			Usage: "Storage preset (lite|default|full)",
			Value: "default",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to database caching",
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "Open file handles of the database",
		},
		cli.Uint64Flag{
			Name:  "snapshots.keep",
			Usage: "Number of snapshots retained, 0 keeps all",
		},
	}
}

// InspectFlags select what the inspect command prints.

func InspectFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "user",
			Usage: "Print the lock and point history of this address only",
		},
		cli.StringFlag{
			Name:  "hash",
			Usage: "Inspect the stored snapshot with this state hash instead of the latest",
		},
	}
}
