// Package commands implements CLI command handlers for wlt.
//
// Each subcommand implements the Runner interface and delegates to the
// outlet service built by the core package.
//
// # Command Structure
//
// All commands follow a consistent pattern:
//   - Init(): Parse arguments and load the configuration
//   - Run(): Execute the command
//   - Name(): Return command name for routing
//
// # Available Commands
//
//   - service: Run the web page, JSON API and SSH menu
//   - status: Show the outlets selected for an address
//   - apply: Select one outlet of a group for an address
//   - reset: Remove the entry of an address
//   - list: Show every entry of the mark map
//   - check-config: Validate the configuration file
//   - self-check: Verify the configuration, the mark map and the ip rules
//
// # Example Usage
//
//	cmd := commands.CreateStatusCommand()
//	ctx := &commands.AppContext{
//	    ConfigPath: "/etc/wlt/config.toml",
//	}
//	if err := cmd.Init([]string{"10.0.0.5"}, ctx); err != nil {
//	    log.Fatalf("Init failed: %v", err)
//	}
//	if err := cmd.Run(); err != nil {
//	    log.Fatalf("Run failed: %v", err)
//	}
package commands
