// Command pqt2pqt splits every .parquet file of a directory into parts of at
// most 31,250,000 rows, written next to it as <name>.<i>.
package main

import (
	"os"

	"github.com/lanl-asteroid-impact/xrage-format/internal/cli"
)

func main() {
	os.Exit(cli.Run("pqt2pqt", os.Args[1:], os.Stderr))
}
