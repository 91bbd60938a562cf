package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/core"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/networking"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

func CreateSelfCheckCommand() *SelfCheckCommand {
	gc := &SelfCheckCommand{
		fs:         flag.NewFlagSet("self-check", flag.ExitOnError),
		checkRules: networking.CheckOutletRules,
	}
	return gc
}

type SelfCheckCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	cfg  *config.Config
	deps *core.AppDependencies

	checkRules func(*outlet.Catalog) ([]networking.OutletRules, error)
}

func (g *SelfCheckCommand) Name() string {
	return g.fs.Name()
}

func (g *SelfCheckCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx); err != nil {
		return err
	} else {
		g.cfg = cfg
	}

	// Initialize dependencies
	deps, err := newDependencies(ctx, g.cfg, false)
	if err != nil {
		return err
	}
	g.deps = deps

	return nil
}

func (g *SelfCheckCommand) Run() error {
	log.Infof("Running self-check...")
	log.Infof("---------------- Configuration START -----------------")

	if cfg, err := g.cfg.SerializeConfig(); err != nil {
		log.Errorf("Failed to serialize config: %v", err)
		return err
	} else if _, err := g.ctx.out().Write(cfg.Bytes()); err != nil {
		log.Errorf("Failed to output config: %v", err)
		return err
	}

	log.Infof("----------------- Configuration END ------------------")

	hasFailures := false
	if !g.checkTable() {
		hasFailures = true
	}
	if !g.checkRoutingRules() {
		hasFailures = true
	}

	if hasFailures {
		log.Errorf("Self-check completed with failures")
		return fmt.Errorf("self-check failed")
	}

	log.Infof("Self-check completed successfully")
	return nil
}

// checkTable verifies the mark map exists with the expected key and data types.
func (g *SelfCheckCommand) checkTable() bool {
	ref := networking.NewMapRef(g.cfg.Nftables)
	if err := g.deps.Table().Check(context.Background()); err != nil {
		log.Errorf("[nftables] %s: %v", ref, err)
		return false
	}
	log.Infof("[nftables] %s: map exists", ref)
	return true
}

// checkRoutingRules verifies every marking outlet has an ip rule routing its fwmark.
func (g *SelfCheckCommand) checkRoutingRules() bool {
	results, err := g.checkRules(g.deps.Catalog())
	if err != nil {
		log.Errorf("[ip rule] Failed to list ip rules: %v", err)
		return false
	}

	ok := true
	for _, r := range results {
		if !r.Routed() {
			log.Errorf("[ip rule] %s/%s: no ip rule with fwmark %#x (missing)", r.Group, r.Outlet, r.Mark)
			ok = false
			continue
		}
		for _, rule := range r.Rules {
			log.Infof("[ip rule] %s/%s: %s", r.Group, r.Outlet, rule)
		}
	}
	return ok
}
