// Command vti2pqt converts every .vti snapshot of a directory into its own
// Parquet file with a row id, the quantized v02 and v03 point fields and the
// grid metadata.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("vti2pqt", os.Args[1:], os.Stderr))
}
