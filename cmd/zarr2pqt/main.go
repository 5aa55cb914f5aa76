// Command zarr2pqt converts every .zarr snapshot group of a directory into
// its own Parquet file.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("zarr2pqt", os.Args[1:], os.Stderr))
}
