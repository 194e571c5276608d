package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/snowflowstack/snowflow-ranker/internal/config"
	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

const usage = `usage: ranker [-config path] <command> [flags]

commands:
  preprocess   normalize raw tests and write the pairwise dataset
  train        preprocess (or read -dataset) and fit the model
  predict      rank products for a condition query
  explain      report a product's feature importance
  serve        expose the model over gRPC and HTTP
`

// errUsage marks invocation mistakes that should print usage.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("ranker failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("ranker", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "Path to configuration file")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLoggerTo(stderr, cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	app := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "preprocess":
		return app.preprocess(ctx, rest)
	case "train":
		return app.train(ctx, rest)
	case "predict":
		return app.predict(ctx, rest)
	case "explain":
		return app.explain(ctx, rest)
	case "serve":
		return app.serve(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		return errUsage
	}
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}
