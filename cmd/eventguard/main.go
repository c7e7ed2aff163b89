// Command eventguard runs check-in stations, the sync relay and the
// operator tools.
package main

import (
	"os"

	"github.com/roach88/eventguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
