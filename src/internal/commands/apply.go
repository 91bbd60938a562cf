package commands

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/wlt-go/wlt/src/internal/core"
	"github.com/wlt-go/wlt/src/internal/log"
)

func CreateApplyCommand() *ApplyCommand {
	return &ApplyCommand{
		fs: flag.NewFlagSet("apply", flag.ExitOnError),
	}
}

// ApplyCommand selects one outlet of a group for an address.
type ApplyCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	deps *core.AppDependencies

	addr   netip.Addr
	group  string
	outlet string
	hours  int
}

func (c *ApplyCommand) Name() string {
	return c.fs.Name()
}

func (c *ApplyCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.fs.NArg() != 4 {
		return fmt.Errorf("usage: apply <ip> <group> <outlet> <hours>")
	}

	addr, err := parseAddr(c.fs.Arg(0))
	if err != nil {
		return err
	}
	c.addr = addr
	c.group = c.fs.Arg(1)
	c.outlet = c.fs.Arg(2)
	if c.hours, err = strconv.Atoi(c.fs.Arg(3)); err != nil {
		return fmt.Errorf("invalid hours %q: %v", c.fs.Arg(3), err)
	}

	cfg, err := loadAndValidateConfigOrFail(ctx)
	if err != nil {
		return err
	}
	c.deps, err = newDependencies(ctx, cfg, false)
	return err
}

func (c *ApplyCommand) Run() error {
	index, group, ok := c.deps.Catalog().LookupGroup(c.group)
	if !ok {
		return fmt.Errorf("unknown outlet group %q", c.group)
	}

	// Outlets are given by name or by mark value
	o, ok := group.OutletByName(c.outlet)
	if !ok {
		value, err := strconv.ParseUint(c.outlet, 0, 32)
		if err != nil {
			return fmt.Errorf("unknown outlet %q in group %q", c.outlet, group.Title)
		}
		if o, ok = group.Outlet(uint32(value)); !ok {
			return fmt.Errorf("unknown outlet %q in group %q", c.outlet, group.Title)
		}
	}

	res, err := c.deps.Service().Apply(context.Background(), c.addr, index, o.Value, c.hours)
	if err != nil {
		return err
	}

	log.Infof("%s", c.deps.Labels().Opened(c.deps.Catalog(), res.NewMark, res.TTL))
	fmt.Fprintf(c.ctx.out(), "%s: %#x -> %#x (%s)\n", res.Addr, res.OldMark, res.NewMark, formatExpires(true, res.TTL))
	return nil
}
