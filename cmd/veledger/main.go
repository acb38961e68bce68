package main

import (
	"fmt"
	"os"

	"github.com/rony4d/go-opera-escrow/cmd/veledger/launcher"
)

func main() {

	// Call into the launcher and capture any resulting error
	if err := launcher.Launch(os.Args); err != nil {

		// Report the issue so the user sees it
		fmt.Fprintln(os.Stderr, "Error:", err)

		// Exit with a non-zero status code to indicate failure
		os.Exit(1)
	}
}
