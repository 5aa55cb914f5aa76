// Package cli is the command line front end shared by the converter
// programs under cmd/.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanl-asteroid-impact/xrage-format/config"
	"github.com/lanl-asteroid-impact/xrage-format/convert"
)

// Run runs program with args, the command line without the program name,
// and returns the process exit code.
func Run(program string, args []string, stderr io.Writer) int {
	var (
		configPath  string
		logLevel    string
		metricsFile string
	)

	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "YAML or TOML file overriding the program preset")
	fs.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&metricsFile, "metrics.textfile", "", "Write batch metrics to this file in Prometheus text format")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] inputdir [outputdir]\n", program)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	filter, err := levelFilter(logLevel)
	if err != nil {
		level.Error(logger).Log("msg", "invalid flag", "err", err)
		return 1
	}
	logger = level.NewFilter(logger, filter)

	cfg, err := config.Load(program, configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		return 1
	}

	inDir := fs.Arg(0)
	outDir := "."
	if cfg.Mode == string(convert.ModeRepack) {
		outDir = inDir
	}
	if fs.NArg() == 2 {
		outDir = fs.Arg(1)
	}

	reg := prometheus.NewRegistry()
	c, err := convert.New(cfg.Options(), logger, convert.NewMetrics(reg))
	if err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		return 1
	}

	// An interrupt stops the batch before the next source.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := convert.OpenBucket(ctx, outDir)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open output", "dir", outDir, "err", err)
		return 1
	}
	_, runErr := c.Run(ctx, inDir, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output %s: %w", outDir, err)
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			level.Error(logger).Log("msg", "failed to write metrics", "file", metricsFile, "err", err)
			return 1
		}
	}
	if runErr != nil {
		level.Error(logger).Log("msg", "conversion failed", "dir", inDir, "err", runErr)
		return 1
	}
	return 0
}

func levelFilter(s string) (level.Option, error) {
	switch s {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("unknown log level %q", s)
	}
}
