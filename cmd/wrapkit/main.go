// Command wrapkit isolates and bundles SDK wrapper packages.
package main

import (
	"os"

	"github.com/conciliate-app/wrapkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
