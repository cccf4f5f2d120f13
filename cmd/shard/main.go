package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/enoki-dex/enoki-wrapped-token/config"
	"github.com/enoki-dex/enoki-wrapped-token/internal/shard"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	flag.Parse()

	// Allow environment variable override
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		*configPath = envPath
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Shard: %v", err)
	}

	server := shard.NewServer(cfg)
	if err := server.LoadSnapshot(); err != nil {
		log.Fatalf("Shard %s: failed to load snapshot: %v", cfg.SelfURL, err)
	}

	// Save state on controlled shutdown so balances survive restarts
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		if err := server.SaveSnapshot(); err != nil {
			log.Printf("Shard %s: failed to save snapshot: %v", cfg.SelfURL, err)
		}
		os.Exit(0)
	}()

	log.Fatal(server.Start(cfg.ListenAddr))
}
