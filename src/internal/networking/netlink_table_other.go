//go:build !linux

package networking

import (
	"context"
	"net/netip"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
)

// NetlinkMarkTable is only available on Linux.
type NetlinkMarkTable struct {
	ref MapRef
}

func NewNetlinkMarkTable(ref MapRef) *NetlinkMarkTable {
	return &NetlinkMarkTable{ref: ref}
}

func errNoNetlink() error {
	return errors.NewTableError(errors.TableErrUnsupported, "netlink backend requires linux", nil)
}

func (t *NetlinkMarkTable) Get(ctx context.Context, addr netip.Addr) (MarkEntry, error) {
	return MarkEntry{Addr: addr}, errNoNetlink()
}

func (t *NetlinkMarkTable) Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
	return errNoNetlink()
}

func (t *NetlinkMarkTable) Delete(ctx context.Context, addr netip.Addr) error {
	return errNoNetlink()
}

func (t *NetlinkMarkTable) List(ctx context.Context) ([]MarkEntry, error) {
	return nil, errNoNetlink()
}

func (t *NetlinkMarkTable) Check(ctx context.Context) error {
	return errNoNetlink()
}
