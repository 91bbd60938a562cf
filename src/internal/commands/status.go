package commands

import (
	"context"
	"flag"
	"fmt"
	"net/netip"

	"github.com/wlt-go/wlt/src/internal/core"
	"github.com/wlt-go/wlt/src/internal/service"
)

func CreateStatusCommand() *StatusCommand {
	return &StatusCommand{
		fs: flag.NewFlagSet("status", flag.ExitOnError),
	}
}

type StatusCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	deps *core.AppDependencies
	addr netip.Addr
}

func (c *StatusCommand) Name() string {
	return c.fs.Name()
}

func (c *StatusCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.fs.NArg() != 1 {
		return fmt.Errorf("usage: status <ip>")
	}

	addr, err := parseAddr(c.fs.Arg(0))
	if err != nil {
		return err
	}
	c.addr = addr

	cfg, err := loadAndValidateConfigOrFail(ctx)
	if err != nil {
		return err
	}
	c.deps, err = newDependencies(ctx, cfg, false)
	return err
}

func (c *StatusCommand) Run() error {
	st, err := c.deps.Service().Status(context.Background(), c.addr)
	if err != nil {
		return err
	}
	printStatus(c.ctx, c.deps, st)
	return nil
}

func printStatus(ctx *AppContext, deps *core.AppDependencies, st service.Status) {
	out := ctx.out()
	labels := deps.Labels()

	fmt.Fprintf(out, "Address:  %s\n", st.Addr)
	if st.Found {
		fmt.Fprintf(out, "Mark:     %#x\n", st.Mark)
	} else {
		fmt.Fprintf(out, "Mark:     -\n")
	}
	fmt.Fprintf(out, "Expires:  %s\n", formatExpires(st.Found, st.Expires))
	fmt.Fprintf(out, "Outlets:  %s\n", labels.Outlets(deps.Catalog(), st.Mark, st.Found))
	for _, g := range st.Groups {
		name := g.Outlet.Name
		if !g.Known {
			name = "unknown"
		}
		fmt.Fprintf(out, "  %s: %s (%#x)\n", g.Title, name, g.Outlet.Value)
	}
}
