//go:build linux

package networking

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
)

// NetlinkMarkTable talks to nf_tables over netlink. Every operation opens its
// own connection, so the table is safe for concurrent use.
type NetlinkMarkTable struct {
	ref MapRef
}

func NewNetlinkMarkTable(ref MapRef) *NetlinkMarkTable {
	return &NetlinkMarkTable{ref: ref}
}

func tableFamily(family string) (nftables.TableFamily, error) {
	switch family {
	case "ip":
		return nftables.TableFamilyIPv4, nil
	case "ip6":
		return nftables.TableFamilyIPv6, nil
	case "inet", "":
		return nftables.TableFamilyINet, nil
	default:
		return 0, errors.NewTableError(errors.TableErrUnsupported, fmt.Sprintf("unsupported table family %q", family), nil)
	}
}

// openMap connects and looks up the map by name.
func (t *NetlinkMarkTable) openMap(name string) (*nftables.Conn, *nftables.Set, error) {
	family, err := tableFamily(t.ref.Family)
	if err != nil {
		return nil, nil, err
	}

	conn, err := nftables.New()
	if err != nil {
		return nil, nil, tableError("connect to", t.ref, err)
	}

	tables, err := conn.ListTablesOfFamily(family)
	if err != nil {
		return nil, nil, tableError("list tables for", t.ref, err)
	}

	var table *nftables.Table
	for _, tbl := range tables {
		if tbl.Name == t.ref.Table {
			table = tbl
			break
		}
	}
	if table == nil {
		return nil, nil, errors.NewTableError(errors.TableErrMissingMap,
			fmt.Sprintf("table %s %s does not exist", t.ref.Family, t.ref.Table), nil)
	}

	set, err := conn.GetSetByName(table, name)
	if err != nil {
		return nil, nil, tableError("get map", mapName{t.ref, name}, err)
	}
	if set == nil {
		return nil, nil, errors.NewTableError(errors.TableErrMissingMap,
			fmt.Sprintf("map %s does not exist", mapName{t.ref, name}), nil)
	}

	return conn, set, nil
}

func (t *NetlinkMarkTable) Get(ctx context.Context, addr netip.Addr) (MarkEntry, error) {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return MarkEntry{Addr: addr}, err
	}

	conn, set, err := t.openMap(name)
	if err != nil {
		return MarkEntry{Addr: key}, err
	}

	return t.lookup(conn, set, key)
}

func (t *NetlinkMarkTable) lookup(conn *nftables.Conn, set *nftables.Set, key netip.Addr) (MarkEntry, error) {
	elements, err := conn.GetSetElements(set)
	if err != nil {
		return MarkEntry{Addr: key}, tableError("list elements of", mapName{t.ref, set.Name}, err)
	}

	for _, el := range elements {
		addr, ok := netip.AddrFromSlice(el.Key)
		if !ok || addr != key {
			continue
		}
		return entryFromElement(addr, el), nil
	}
	return MarkEntry{Addr: key}, nil
}

func entryFromElement(addr netip.Addr, el nftables.SetElement) MarkEntry {
	entry := MarkEntry{Addr: addr, Found: true, Expires: el.Expires}
	if len(el.Val) >= 4 {
		entry.Mark = binaryutil.NativeEndian.Uint32(el.Val[:4])
	}
	return entry
}

// Replace sends add(old), delete, add(new) in one batch. The kernel accepts
// the leading add when the entry holds old or has expired since the read, and
// rejects it when another writer stored a different mark. The batch then
// commits nothing, so a concurrent writer's bits are never overwritten.
func (t *NetlinkMarkTable) Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	conn, set, err := t.openMap(name)
	if err != nil {
		return err
	}
	if ttl > 0 && !set.HasTimeout {
		return errors.NewTableError(errors.TableErrUnsupported,
			fmt.Sprintf("map %s has no timeout flag", mapName{t.ref, name}), nil)
	}

	keyBytes := key.AsSlice()
	if err := conn.SetAddElements(set, []nftables.SetElement{
		{Key: keyBytes, Val: binaryutil.NativeEndian.PutUint32(old)},
	}); err != nil {
		return tableError("add element to", mapName{t.ref, name}, err)
	}
	if err := conn.SetDeleteElements(set, []nftables.SetElement{{Key: keyBytes}}); err != nil {
		return tableError("delete element from", mapName{t.ref, name}, err)
	}
	if err := conn.SetAddElements(set, []nftables.SetElement{
		{Key: keyBytes, Val: binaryutil.NativeEndian.PutUint32(mark), Timeout: ttl},
	}); err != nil {
		return tableError("add element to", mapName{t.ref, name}, err)
	}

	if err := conn.Flush(); err != nil {
		return conflictError(key, mapName{t.ref, name}, old, tableError("replace element in", mapName{t.ref, name}, err))
	}

	log.Debugf("Replaced %s in %s: %#x -> %#x (ttl %s)", key, mapName{t.ref, name}, old, mark, ttl)
	return nil
}

func (t *NetlinkMarkTable) Delete(ctx context.Context, addr netip.Addr) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	conn, set, err := t.openMap(name)
	if err != nil {
		return err
	}

	current, err := t.lookup(conn, set, key)
	if err != nil {
		return err
	}
	if !current.Found {
		return nil
	}

	keyBytes := key.AsSlice()
	// Same leading add as Replace: the entry may expire between the read and the commit.
	if err := conn.SetAddElements(set, []nftables.SetElement{
		{Key: keyBytes, Val: binaryutil.NativeEndian.PutUint32(current.Mark)},
	}); err != nil {
		return tableError("add element to", mapName{t.ref, name}, err)
	}
	if err := conn.SetDeleteElements(set, []nftables.SetElement{{Key: keyBytes}}); err != nil {
		return tableError("delete element from", mapName{t.ref, name}, err)
	}
	if err := conn.Flush(); err != nil {
		return tableError("delete element from", mapName{t.ref, name}, err)
	}

	log.Debugf("Deleted %s from %s (was %#x)", key, mapName{t.ref, name}, current.Mark)
	return nil
}

func (t *NetlinkMarkTable) List(ctx context.Context) ([]MarkEntry, error) {
	var entries []MarkEntry
	for _, name := range t.ref.Maps() {
		conn, set, err := t.openMap(name)
		if err != nil {
			return nil, err
		}
		elements, err := conn.GetSetElements(set)
		if err != nil {
			return nil, tableError("list elements of", mapName{t.ref, name}, err)
		}
		for _, el := range elements {
			addr, ok := netip.AddrFromSlice(el.Key)
			if !ok {
				continue
			}
			entries = append(entries, entryFromElement(addr, el))
		}
	}
	return entries, nil
}

func (t *NetlinkMarkTable) Check(ctx context.Context) error {
	for _, name := range t.ref.Maps() {
		_, set, err := t.openMap(name)
		if err != nil {
			return err
		}
		if !set.IsMap {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("%s is a set, not a map", mapName{t.ref, name}), nil)
		}
		if set.KeyType.Name != nftables.TypeIPAddr.Name && set.KeyType.Name != nftables.TypeIP6Addr.Name {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("%s is keyed by %s, want an address type", mapName{t.ref, name}, set.KeyType.Name), nil)
		}
		if set.DataType.Name != nftables.TypeMark.Name {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("%s maps to %s, want mark", mapName{t.ref, name}, set.DataType.Name), nil)
		}
		if !set.HasTimeout {
			log.Warnf("Map %s has no timeout flag: only permanent entries can be written", mapName{t.ref, name})
		}
	}
	return nil
}
