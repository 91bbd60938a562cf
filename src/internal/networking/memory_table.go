package networking

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
)

type memoryEntry struct {
	mark     uint32
	deadline time.Time // zero means permanent
}

// MemoryMarkTable keeps entries in process memory. It backs --dry-run and
// backend = "memory" and expires entries against its clock like the kernel does.
type MemoryMarkTable struct {
	ref MapRef
	now func() time.Time

	mu      sync.Mutex
	entries map[string]map[netip.Addr]memoryEntry
}

// NewMemoryMarkTable returns an empty table. A nil clock uses time.Now.
func NewMemoryMarkTable(ref MapRef, now func() time.Time) *MemoryMarkTable {
	if now == nil {
		now = time.Now
	}
	return &MemoryMarkTable{
		ref:     ref,
		now:     now,
		entries: make(map[string]map[netip.Addr]memoryEntry),
	}
}

// lookup returns the live entry of key, dropping it once expired. Callers hold mu.
func (t *MemoryMarkTable) lookup(name string, key netip.Addr) (memoryEntry, bool) {
	e, ok := t.entries[name][key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.deadline.IsZero() && !t.now().Before(e.deadline) {
		delete(t.entries[name], key)
		return memoryEntry{}, false
	}
	return e, true
}

func (t *MemoryMarkTable) toEntry(key netip.Addr, e memoryEntry) MarkEntry {
	entry := MarkEntry{Addr: key, Mark: e.mark, Found: true}
	if !e.deadline.IsZero() {
		entry.Expires = e.deadline.Sub(t.now())
	}
	return entry
}

func (t *MemoryMarkTable) Get(ctx context.Context, addr netip.Addr) (MarkEntry, error) {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return MarkEntry{Addr: addr}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(name, key)
	if !ok {
		return MarkEntry{Addr: key}, nil
	}
	return t.toEntry(key, e), nil
}

// Replace fails with a conflict when the live entry holds a mark other than
// old, matching the kernel's rejection of the leading add.
func (t *MemoryMarkTable) Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.lookup(name, key); ok && current.mark != old {
		return errors.NewTableError(errors.TableErrConflict,
			fmt.Sprintf("entry of %s in memory map %s holds %#x, not %#x", key, name, current.mark, old), nil)
	}

	e := memoryEntry{mark: mark}
	if ttl > 0 {
		e.deadline = t.now().Add(ttl)
	}
	if t.entries[name] == nil {
		t.entries[name] = make(map[netip.Addr]memoryEntry)
	}
	t.entries[name][key] = e

	log.Debugf("Replaced %s in memory map %s: %#x (ttl %s)", key, name, mark, ttl)
	return nil
}

func (t *MemoryMarkTable) Delete(ctx context.Context, addr netip.Addr) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries[name], key)
	return nil
}

// List returns live entries sorted by address.
func (t *MemoryMarkTable) List(ctx context.Context) ([]MarkEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []MarkEntry
	for _, name := range t.ref.Maps() {
		for key := range t.entries[name] {
			if e, ok := t.lookup(name, key); ok {
				entries = append(entries, t.toEntry(key, e))
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Addr.Less(entries[j].Addr)
	})
	return entries, nil
}

func (t *MemoryMarkTable) Check(ctx context.Context) error {
	return nil
}
