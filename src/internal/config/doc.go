// Package config handles configuration file parsing and validation for wlt.
//
// The configuration file is TOML. It is decoded on top of DefaultConfig,
// so only the outlet groups and time limits are mandatory. Unknown keys
// are rejected.
//
// # Configuration Structure
//
// The configuration file defines:
//   - Front-end listeners (web page and JSON API, SSH menu, metrics)
//   - The nftables table and map holding source address marks
//   - Display labels for durations and the unset state
//   - Allowed durations in hours, 0 meaning permanent
//   - Outlet groups, each owning a disjoint bit mask of the mark
//
// # Older Layout
//
// Files written for the first releases put the web listener under [flask]
// and list outlets as an inline table of name = mark:
//
//	[flask]
//	host = "0.0.0.0"
//	port = 80
//
//	[[outlet_groups]]
//	title = "线路"
//	mask = 0xF00
//	outlets = { "电信" = 0x100, "移动" = 0x200 }
//
// They still load, keeping the outlet order of the file, and a warning is
// logged. To migrate, rename [flask] to [web] (debug has no counterpart) and
// rewrite each outlets table as an array:
//
//	outlets = [
//	  { name = "电信", value = 0x100 },
//	  { name = "移动", value = 0x200 },
//	]
//
// # Example Usage
//
//	cfg, err := config.LoadConfig("/etc/wlt/config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyEnv(env)
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatal(err)
//	}
//
// Validation collects every problem instead of stopping at the first one.
// ValidationErrors carries a dot-notation path for each failing field.
package config
