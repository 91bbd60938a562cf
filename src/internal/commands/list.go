package commands

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/wlt-go/wlt/src/internal/core"
)

func CreateListCommand() *ListCommand {
	return &ListCommand{
		fs: flag.NewFlagSet("list", flag.ExitOnError),
	}
}

// ListCommand prints every entry of the mark map.
type ListCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	deps *core.AppDependencies
}

func (c *ListCommand) Name() string {
	return c.fs.Name()
}

func (c *ListCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx)
	if err != nil {
		return err
	}
	c.deps, err = newDependencies(ctx, cfg, false)
	return err
}

func (c *ListCommand) Run() error {
	entries, err := c.deps.Service().Entries(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.ctx.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tMARK\tEXPIRES\tOUTLETS")
	for _, st := range entries {
		fmt.Fprintf(w, "%s\t%#x\t%s\t%s\n",
			st.Addr, st.Mark,
			formatExpires(st.Found, st.Expires),
			c.deps.Labels().Outlets(c.deps.Catalog(), st.Mark, st.Found))
	}
	return w.Flush()
}
