// Command crowdheat renders a temporal heatmap of tracked objects over a
// video using a per-frame detection feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/version"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	opts, err := parseOptions(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		log.Printf("crowdheat: %v", err)
		return exitConfig
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return exitOK
	}
	monitoring.SetDebug(opts.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("%s starting", version.String())
	stats, err := run(ctx, opts)
	log.Printf("[pipeline] %s", stats)
	return exitCode(err)
}

// exitCode maps a run error to the process status: configuration problems
// are distinguished from runtime failures.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	log.Printf("crowdheat: %v", err)
	var ce *heatmap.ConfigurationError
	if errors.As(err, &ce) {
		return exitConfig
	}
	if !heatmap.IsFatal(err) {
		return exitOK
	}
	return exitFailed
}
