package commands

import (
	"flag"
	"fmt"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

func CreateCheckConfigCommand() *CheckConfigCommand {
	return &CheckConfigCommand{
		fs: flag.NewFlagSet("check-config", flag.ExitOnError),
	}
}

// CheckConfigCommand validates the configuration file and prints the outlet groups.
type CheckConfigCommand struct {
	fs      *flag.FlagSet
	ctx     *AppContext
	cfg     *config.Config
	catalog *outlet.Catalog
	labels  *outlet.Labels
}

func (c *CheckConfigCommand) Name() string {
	return c.fs.Name()
}

func (c *CheckConfigCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx
	return c.fs.Parse(args)
}

func (c *CheckConfigCommand) Run() error {
	cfg, err := loadAndValidateConfigOrFail(c.ctx)
	if err != nil {
		return err
	}
	if c.catalog, err = outlet.FromConfig(cfg); err != nil {
		return err
	}
	if c.labels, err = outlet.NewLabels(cfg.Labels); err != nil {
		return err
	}
	c.cfg = cfg

	out := c.ctx.out()
	fmt.Fprintf(out, "Configuration %s is valid\n", c.ctx.ConfigPath)
	fmt.Fprintf(out, "Mark map: %s\n", cfg.Nftables.Family+" "+cfg.Nftables.Table+" "+cfg.Nftables.Map)
	for _, g := range c.catalog.Groups() {
		fmt.Fprintf(out, "Group %q (mask %#x)\n", g.Title, g.Mask)
		for _, o := range g.Outlets {
			fmt.Fprintf(out, "  %-12s %#x\n", o.Name, o.Value)
		}
	}
	fmt.Fprintf(out, "Durations:")
	for _, hours := range c.catalog.Durations() {
		fmt.Fprintf(out, " %s", c.labels.Duration(hours))
	}
	fmt.Fprintln(out)
	return nil
}
