package commands

import (
	"context"
	"flag"
	"fmt"
	"net/netip"

	"github.com/wlt-go/wlt/src/internal/core"
)

func CreateResetCommand() *ResetCommand {
	return &ResetCommand{
		fs: flag.NewFlagSet("reset", flag.ExitOnError),
	}
}

// ResetCommand removes the entry of an address.
type ResetCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	deps *core.AppDependencies
	addr netip.Addr
}

func (c *ResetCommand) Name() string {
	return c.fs.Name()
}

func (c *ResetCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.fs.NArg() != 1 {
		return fmt.Errorf("usage: reset <ip>")
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

func (c *ResetCommand) Run() error {
	if err := c.deps.Service().Reset(context.Background(), c.addr); err != nil {
		return err
	}
	fmt.Fprintf(c.ctx.out(), "%s: reset\n", c.addr)
	return nil
}
