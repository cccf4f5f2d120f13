package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/enoki-dex/enoki-wrapped-token/config"
	"github.com/enoki-dex/enoki-wrapped-token/internal/manager"
	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	name := flag.String("name", "Enoki Wrapped Token", "Token name")
	symbol := flag.String("symbol", "eTOKEN", "Token symbol")
	decimals := flag.Uint("decimals", 8, "Token decimals")
	flag.Parse()

	// Allow environment variable override
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		*configPath = envPath
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Manager: %v", err)
	}

	service, err := manager.NewService(cfg, protocol.Metadata{
		Name:     *name,
		Symbol:   *symbol,
		Decimals: uint8(*decimals),
	})
	if err != nil {
		log.Fatalf("Manager: %v", err)
	}
	if err := service.LoadSnapshot(); err != nil {
		log.Fatalf("Manager: failed to load snapshot: %v", err)
	}

	// Save registry and topology on controlled shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		if err := service.SaveSnapshot(); err != nil {
			log.Printf("Manager: failed to save snapshot: %v", err)
		}
		os.Exit(0)
	}()

	log.Fatal(service.Start(cfg.ListenAddr))
}
