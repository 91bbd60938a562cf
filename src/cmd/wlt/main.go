package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wlt-go/wlt/src/internal/commands"
	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/log"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	ctx := &commands.AppContext{}

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}
	ctx.Env = env

	defaultConfigPath := config.DefaultConfigPath
	if env.Config != "" {
		defaultConfigPath = env.Config
	}

	// Define flags
	flag.StringVar(&ctx.ConfigPath, "config", defaultConfigPath, "Path to configuration file")
	flag.BoolVar(&ctx.Verbose, "verbose", env.Verbose, "Enable debug logging")

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Per-source outlet selection over an nftables mark map\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  service [--dry-run]                 Run the web page, JSON API and SSH menu\n")
		fmt.Fprintf(os.Stderr, "  status <ip>                         Show the outlets selected for an address\n")
		fmt.Fprintf(os.Stderr, "  apply <ip> <group> <outlet> <hours> Select one outlet of a group for an address\n")
		fmt.Fprintf(os.Stderr, "  reset <ip>                          Remove the entry of an address\n")
		fmt.Fprintf(os.Stderr, "  list                                Show every entry of the mark map\n")
		fmt.Fprintf(os.Stderr, "  check-config                        Validate the configuration file\n")
		fmt.Fprintf(os.Stderr, "  self-check                          Check the configuration, the mark map and the ip rules\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if ctx.Verbose {
		log.SetVerbose(true)
	}

	// Ensure cfg file exists
	if _, err := os.Stat(ctx.ConfigPath); os.IsNotExist(err) {
		log.Fatalf("Configuration file not found: %s", ctx.ConfigPath)
	}

	cmds := []commands.Runner{
		commands.CreateServiceCommand(),
		commands.CreateStatusCommand(),
		commands.CreateApplyCommand(),
		commands.CreateResetCommand(),
		commands.CreateListCommand(),
		commands.CreateCheckConfigCommand(),
		commands.CreateSelfCheckCommand(),
	}

	args := flag.Args()

	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	subcommand := args[0]
	switch subcommand {
	case "status", "list", "self-check":
		// stdout carries the command output
		log.SetForceStdErr(true)
	}
	for _, cmd := range cmds {
		if cmd.Name() == subcommand {
			if err := cmd.Init(args[1:], ctx); err != nil {
				log.Fatalf("Failed to initialize command: %v", err)
			}

			if err := cmd.Run(); err != nil {
				log.Fatalf("Failed to run command: %v", err)
			}

			os.Exit(0)
		}
	}

	log.Fatalf("Unknown subcommand: %s", subcommand)
}
