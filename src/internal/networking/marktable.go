package networking

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/errors"
)

// MarkTable is the kernel map from source address to packet mark.
// It is the only store of outlet selections.
type MarkTable interface {
	// Get returns the entry of addr. A missing entry is not an error:
	// it has Found == false and Mark == 0.
	Get(ctx context.Context, addr netip.Addr) (MarkEntry, error)
	// Replace atomically swaps the entry of addr from old to mark. old is the
	// mark read before composing, 0 for a missing entry. If another writer changed
	// the entry since, nothing is written and the error has kind TableErrConflict.
	// ttl == 0 writes a permanent entry.
	Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error
	// Delete removes the entry of addr. Deleting a missing entry succeeds.
	Delete(ctx context.Context, addr netip.Addr) error
	// List returns every entry of the configured maps.
	List(ctx context.Context) ([]MarkEntry, error)
	// Check verifies that the table and maps exist and have the expected types.
	Check(ctx context.Context) error
}

// MarkEntry is one element of the map.
type MarkEntry struct {
	Addr netip.Addr `json:"addr"`
	Mark uint32     `json:"mark"`
	// Expires is the time left before the kernel removes the entry. 0 means permanent.
	Expires time.Duration `json:"expires"`
	Found   bool          `json:"found"`
}

// Permanent reports whether the entry never expires.
func (e MarkEntry) Permanent() bool {
	return e.Found && e.Expires == 0
}

func (e MarkEntry) String() string {
	if !e.Found {
		return fmt.Sprintf("%s: no entry", e.Addr)
	}
	if e.Expires == 0 {
		return fmt.Sprintf("%s: mark %#x, permanent", e.Addr, e.Mark)
	}
	return fmt.Sprintf("%s: mark %#x, expires in %s", e.Addr, e.Mark, e.Expires.Round(time.Second))
}

// MapRef locates the map(s) inside the kernel ruleset.
type MapRef struct {
	Family string
	Table  string
	Map    string
	// Map6 holds IPv6 sources. Empty means IPv6 sources are rejected unless
	// Map itself is keyed by IPv6 addresses.
	Map6 string
}

func NewMapRef(cfg config.NftablesConfig) MapRef {
	return MapRef{
		Family: cfg.Family,
		Table:  cfg.Table,
		Map:    cfg.Map,
		Map6:   cfg.Map6,
	}
}

func (r MapRef) String() string {
	return fmt.Sprintf("%s %s %s", r.Family, r.Table, r.Map)
}

// Maps returns the distinct map names.
func (r MapRef) Maps() []string {
	if r.Map6 == "" || r.Map6 == r.Map {
		return []string{r.Map}
	}
	return []string{r.Map, r.Map6}
}

// resolveKey unmaps IPv4-mapped addresses and picks the map that holds addr.
func (r MapRef) resolveKey(addr netip.Addr) (netip.Addr, string, error) {
	if !addr.IsValid() {
		return addr, "", errors.NewTableError(errors.TableErrMalformedKey, "invalid address", nil)
	}
	addr = addr.Unmap()
	if addr.Zone() != "" {
		addr = addr.WithZone("")
	}

	switch {
	case addr.Is4():
		if r.Family == "ip6" {
			return addr, "", errors.NewTableError(errors.TableErrMalformedKey,
				fmt.Sprintf("IPv4 address %s in ip6 table %s", addr, r.Table), nil)
		}
		return addr, r.Map, nil
	case r.Map6 != "":
		if r.Family == "ip" {
			return addr, "", errors.NewTableError(errors.TableErrMalformedKey,
				fmt.Sprintf("IPv6 address %s in ip table %s", addr, r.Table), nil)
		}
		return addr, r.Map6, nil
	case r.Family == "ip6":
		return addr, r.Map, nil
	default:
		return addr, "", errors.NewTableError(errors.TableErrMalformedKey,
			fmt.Sprintf("no IPv6 map configured for %s", addr), nil)
	}
}

// Backends accepted by NewMarkTable.
const (
	BackendNetlink = "netlink"
	BackendNft     = "nft"
	BackendMemory  = "memory"
)

// NewMarkTable returns the backend selected by cfg.Backend.
func NewMarkTable(cfg config.NftablesConfig) (MarkTable, error) {
	ref := NewMapRef(cfg)
	switch cfg.Backend {
	case "", BackendNetlink:
		return NewNetlinkMarkTable(ref), nil
	case BackendNft:
		return NewNftMarkTable(ref, cfg.NftPath), nil
	case BackendMemory:
		return NewMemoryMarkTable(ref, nil), nil
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown nftables backend %q", cfg.Backend), nil)
	}
}

// mapName formats one map of a MapRef for messages.
type mapName struct {
	ref  MapRef
	name string
}

func (m mapName) String() string {
	return fmt.Sprintf("%s %s %s", m.ref.Family, m.ref.Table, m.name)
}
