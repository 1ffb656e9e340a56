package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/virtdash/virtdash/internal/buildinfo"
	"github.com/virtdash/virtdash/internal/config"
	"github.com/virtdash/virtdash/internal/dashboard"
)

func main() {
	var showVersion bool
	var configPath string

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("virtdashd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("virtdashd: starting %s", buildinfo.String())
	if err := dashboard.Run(ctx, cfg); err != nil {
		log.Fatalf("virtdashd: %v", err)
	}
	log.Printf("virtdashd: shutdown complete")
}
