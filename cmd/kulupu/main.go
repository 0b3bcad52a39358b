// Command kulupu runs the RandomX proof-of-work node: the mining loop, the
// consensus verification/difficulty machinery, the reward pipeline, and the
// surrounding ambient services (rpcwork, dashboard, metrics).
package main

import (
	"fmt"
	"log/slog"
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

var (
	gitCommit = "unknown"
	gitTag    = "unknown"
)

func main() {
	app := cli.NewApp()
	app.Name = "kulupu"
	app.Usage = "a RandomX proof-of-work node"
	app.Version = fmt.Sprintf("%s (%s)", gitTag, gitCommit)
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		runCommand,
		buildSpecCommand,
		checkBlockCommand,
		exportBlocksCommand,
		exportStateCommand,
		importBlocksCommand,
		purgeChainCommand,
		revertCommand,
		exportBuiltinWasmCommand,
		importMiningKeyCommand,
		generateMiningKeyCommand,
		benchmarkCommand,
		dumpConfigCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("kulupu exited with an error", "err", err)
		os.Exit(1)
	}
}

var globalFlags = []cli.Flag{
	configFileFlag,
	dataDirFlag,
	cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "info",
	},
	cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: text or json",
		Value: "text",
	},
}

func setupLogging(ctx *cli.Context) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(ctx.GlobalString("log-level"))}

	var handler slog.Handler
	if ctx.GlobalString("log-format") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
