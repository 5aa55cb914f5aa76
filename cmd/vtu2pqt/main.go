// Command vtu2pqt converts every .vtu snapshot of a directory into a zstd
// compressed Parquet file of its cell fields.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("vtu2pqt", os.Args[1:], os.Stderr))
}
