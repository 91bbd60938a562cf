package commands

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/core"
	"github.com/wlt-go/wlt/src/internal/networking"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool
	Env        config.Env

	// Table replaces the mark table built from the configuration. Used in tests.
	Table networking.MarkTable
	// Out receives command output (default: stdout).
	Out io.Writer
}

func (c *AppContext) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// loadAndValidateConfigOrFail loads configuration from file, applies the
// environment overrides and validates the result.
func loadAndValidateConfigOrFail(ctx *AppContext) (*config.Config, error) {
	cfg, err := config.LoadConfig(ctx.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	cfg.ApplyEnv(ctx.Env)
	if ctx.Verbose {
		cfg.General.Verbose = true
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return cfg, nil
}

// newDependencies builds the dependency container for cfg.
func newDependencies(ctx *AppContext, cfg *config.Config, dryRun bool) (*core.AppDependencies, error) {
	return core.NewAppDependencies(core.AppConfig{
		Config: cfg,
		DryRun: dryRun,
		Table:  ctx.Table,
	})
}

func parseAddr(arg string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(arg)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %v", arg, err)
	}
	return addr, nil
}

func formatExpires(found bool, expires time.Duration) string {
	switch {
	case !found:
		return "-"
	case expires == 0:
		return "permanent"
	default:
		return expires.Truncate(time.Second).String()
	}
}
