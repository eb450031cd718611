// Command sysarch models mechanical systems as hierarchical assemblies.
package main

import (
	"os"

	"github.com/roach88/sysarch/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
