package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/n0madic/go-llmbridge/internal/config"
	"github.com/n0madic/go-llmbridge/internal/engine"
	"github.com/n0madic/go-llmbridge/internal/logging"
	"github.com/n0madic/go-llmbridge/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: llmbridge <command> [flags]")
		fmt.Fprintln(os.Stderr, "Commands: serve, check")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(cmdServe())
	case "check":
		os.Exit(cmdCheck())
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Commands: serve, check")
		os.Exit(1)
	}
}

func loadConfig(fs *flag.FlagSet) (*config.ServerConfig, error) {
	envFile := fs.String("env-file", ".env", "Optional .env file")
	cfg := config.DefaultFromEnv()
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable debug logging")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Keep transformation traces and dump upstream traffic")
	fs.StringVar(&cfg.SuppliersFile, "suppliers", cfg.SuppliersFile, "Supplier configuration file")
	fs.Parse(os.Args[2:])

	// Flags win over the environment, which wins over the .env file.
	fileCfg, err := config.LoadServerConfig(*envFile)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			fileCfg.Host = cfg.Host
		case "port":
			fileCfg.Port = cfg.Port
		case "verbose":
			fileCfg.Verbose = cfg.Verbose
		case "debug":
			fileCfg.Debug = cfg.Debug
		case "suppliers":
			fileCfg.SuppliersFile = cfg.SuppliersFile
		}
	})
	if fileCfg.Verbose {
		fileCfg.LogLevel = "debug"
	}
	return fileCfg, nil
}

func loadSuppliers(cfg *config.ServerConfig) (*config.Suppliers, error) {
	sups, err := config.LoadSuppliers(cfg.SuppliersFile, engine.Known)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultSupplier != "" {
		if _, ok := sups.Get(cfg.DefaultSupplier); !ok {
			return nil, fmt.Errorf("default supplier %q is not defined in %s", cfg.DefaultSupplier, cfg.SuppliersFile)
		}
		sups.Default = cfg.DefaultSupplier
	}
	return sups, nil
}

func cmdServe() int {
	cfg, err := loadConfig(flag.NewFlagSet("serve", flag.ExitOnError))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logging.Global(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})

	sups, err := loadSuppliers(cfg)
	if err != nil {
		log.Error().Err(err).Str("file", cfg.SuppliersFile).Msg("failed to load suppliers")
		return 1
	}

	srv := server.New(cfg, sups)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Str("addr", cfg.Addr()).Int("suppliers", len(sups.Suppliers)).Bool("debug", cfg.Debug).Msg("llmbridge starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return 1
	}
	return 0
}

// cmdCheck validates the supplier file and prints the resolved chains.
func cmdCheck() int {
	cfg, err := loadConfig(flag.NewFlagSet("check", flag.ExitOnError))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	sups, err := loadSuppliers(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cfg.SuppliersFile, err)
		return 1
	}
	for _, sup := range sups.Suppliers {
		marker := " "
		if sup.Name == sups.Default {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, sup.Name, sup.BaseURL)
		if sup.Transformer == nil {
			fmt.Println("    passthrough")
			continue
		}
		fmt.Printf("    default: %v\n", sup.Transformer.Default.StepNames())
		for model, chain := range sup.Transformer.Models {
			fmt.Printf("    %s: %v\n", model, chain.StepNames())
		}
	}
	return 0
}
