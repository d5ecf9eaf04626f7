// Command modnetconfd is the NETCONF session-broker daemon: it listens
// on a local UNIX socket, accepts JSON-framed requests from front-end
// callers, and manages the underlying NETCONF sessions to managed
// devices on their behalf.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modnetconf/broker/internal/broker"
	"github.com/modnetconf/broker/internal/config"
	"github.com/modnetconf/broker/internal/logging"
	"github.com/modnetconf/broker/internal/ncadapter"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "path to configuration file")
	socketOverride := flag.String("s", "", "UNIX socket path (overrides configuration file)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "modnetconfd: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *socketOverride != "" {
		cfg.NetconfSocket = *socketOverride
	}

	if err := cfg.WritePid(os.Getpid()); err != nil {
		fmt.Fprintf(os.Stderr, "modnetconfd: writing pid file: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logging.WithTrace(ctx, logging.DefaultTrace)

	sup := broker.New(cfg.NetconfSocket, ncadapter.NewClient())
	log.Printf("modnetconfd: listening on %s", cfg.NetconfSocket)
	if err := sup.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "modnetconfd: %v\n", err)
		return 1
	}
	return 0
}
