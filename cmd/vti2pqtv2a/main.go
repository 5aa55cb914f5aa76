// Command vti2pqtv2a converts a directory of .vti timesteps into one Parquet
// file holding a row group per timestep.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("vti2pqtv2a", os.Args[1:], os.Stderr))
}
