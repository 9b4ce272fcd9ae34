package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"bisq-social/go-backend/internal/composition/daemonservice"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for daemon local data (optional)")
	transport := flag.String("transport", "", "Network transport override: go-waku | mock")
	flag.Parse()
	if *showVersion {
		fmt.Printf("bisq-social-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := daemonservice.New(*configPath, *dataDir, *transport)
	if err != nil {
		log.Fatalf("bisq-social-daemon failed to initialize: %v", err)
	}

	log.Println("bisq-social-daemon starting")
	if err := daemon.Run(ctx); err != nil {
		log.Fatalf("bisq-social-daemon failed: %v", err)
	}
	log.Println("bisq-social-daemon stopped")
}
