// Command vti2pqtv2b converts every .vti timestep of a directory into
// Parquet files of at most 25,000,000 rows, named <base>.parquet.<i>.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("vti2pqtv2b", os.Args[1:], os.Stderr))
}
