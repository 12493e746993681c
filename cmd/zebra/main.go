// Package main provides the zebra CLI: training, dataset generation and
// inspection tools for the Go policy/value network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const version = "v0.1.0-dev"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) error
}

var commands = []command{
	{"train", "Train the dual network on TFRecord shards", runTrain},
	{"gendata", "Convert SGF games into TFRecord shards", runGendata},
	{"inspect", "Show one training record, optionally with predictions", runInspect},
	{"eval", "Measure move prediction accuracy on SGF games", runEval},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "zebra: ", log.LstdFlags)
	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}
	if args[0] == "version" {
		fmt.Fprintf(stdout, "zebra %s\n", version)
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, args[1:], stdout, logger)
		}
	}
	usage(stdout)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "zebra - Go policy/value network tools")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "version", "Show version")
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, stdout io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("zebra "+name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	return fs
}
