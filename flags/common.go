package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.

func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the ledger database",
			Value: "~/.veledger",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML, YAML or JSON configuration file",
		},
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom instance name shown in logs",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  "sentry.dsn",
			Usage: "Report errors to the Sentry project with this DSN",
		},
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "http.port",
			Usage: "HTTP server listening port",
			Value: 18545,
		},
		cli.DurationFlag{
			Name:  "http.timeout",
			Usage: "Read and write timeout of HTTP requests",
			Value: 30 * time.Second,
		},
	}
}
