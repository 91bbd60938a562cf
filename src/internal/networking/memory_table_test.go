package networking

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRef() MapRef {
	return MapRef{Family: "inet", Table: "wlt", Map: "src2mark", Map6: "src2mark6"}
}

func TestMemoryMarkTable_GetMissing(t *testing.T) {
	table := NewMemoryMarkTable(testRef(), nil)

	entry, err := table.Get(context.Background(), netip.MustParseAddr("10.0.0.5"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if entry.Found || entry.Mark != 0 || entry.Expires != 0 {
		t.Errorf("Expected empty entry, got %+v", entry)
	}
}

func TestMemoryMarkTable_ReplaceAndExpire(t *testing.T) {
	clock := newFakeClock()
	table := NewMemoryMarkTable(testRef(), clock.Now)
	ctx := context.Background()
	addr := netip.MustParseAddr("10.0.0.5")

	if err := table.Replace(ctx, addr, 0, 0x101, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	clock.Advance(10 * time.Minute)
	entry, _ := table.Get(ctx, addr)
	if !entry.Found || entry.Mark != 0x101 {
		t.Fatalf("Expected entry 0x101, got %+v", entry)
	}
	if entry.Expires != 50*time.Minute {
		t.Errorf("Expected 50m left, got %v", entry.Expires)
	}

	clock.Advance(50 * time.Minute)
	entry, _ = table.Get(ctx, addr)
	if entry.Found {
		t.Errorf("Expected entry to expire, got %+v", entry)
	}
}

func TestMemoryMarkTable_Permanent(t *testing.T) {
	clock := newFakeClock()
	table := NewMemoryMarkTable(testRef(), clock.Now)
	ctx := context.Background()
	addr := netip.MustParseAddr("::ffff:10.0.0.5")

	if err := table.Replace(ctx, addr, 0, 0x102, 0); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	clock.Advance(1000 * time.Hour)

	entry, _ := table.Get(ctx, netip.MustParseAddr("10.0.0.5"))
	if !entry.Permanent() || entry.Mark != 0x102 {
		t.Errorf("Expected permanent entry 0x102 under the unmapped key, got %+v", entry)
	}
}

func TestMemoryMarkTable_ReplaceConflict(t *testing.T) {
	table := NewMemoryMarkTable(testRef(), nil)
	ctx := context.Background()
	addr := netip.MustParseAddr("10.0.0.5")

	if err := table.Replace(ctx, addr, 0, 0x2, 0); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	// A second writer still expecting the missing entry must not clobber 0x2.
	err := table.Replace(ctx, addr, 0, 0x100, 0)
	if !errors.IsConflict(err) {
		t.Fatalf("Expected conflict, got: %v", err)
	}
	if entry, _ := table.Get(ctx, addr); entry.Mark != 0x2 {
		t.Errorf("Expected 0x2 to survive, got %+v", entry)
	}

	if err := table.Replace(ctx, addr, 0x2, 0x102, time.Hour); err != nil {
		t.Errorf("Replace with the current mark failed: %v", err)
	}
	if entry, _ := table.Get(ctx, addr); entry.Mark != 0x102 {
		t.Errorf("Expected 0x102, got %+v", entry)
	}
}

func TestMemoryMarkTable_DeleteIsIdempotent(t *testing.T) {
	table := NewMemoryMarkTable(testRef(), nil)
	ctx := context.Background()
	addr := netip.MustParseAddr("10.0.0.5")

	if err := table.Delete(ctx, addr); err != nil {
		t.Errorf("Deleting a missing entry failed: %v", err)
	}
	_ = table.Replace(ctx, addr, 0, 0x1, 0)
	if err := table.Delete(ctx, addr); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if entry, _ := table.Get(ctx, addr); entry.Found {
		t.Errorf("Expected entry to be gone, got %+v", entry)
	}
}

func TestMemoryMarkTable_List(t *testing.T) {
	clock := newFakeClock()
	table := NewMemoryMarkTable(testRef(), clock.Now)
	ctx := context.Background()

	_ = table.Replace(ctx, netip.MustParseAddr("10.0.0.7"), 0, 0x2, time.Hour)
	_ = table.Replace(ctx, netip.MustParseAddr("10.0.0.5"), 0, 0x1, 0)
	_ = table.Replace(ctx, netip.MustParseAddr("2001:db8::1"), 0, 0x100, 0)
	_ = table.Replace(ctx, netip.MustParseAddr("10.0.0.9"), 0, 0x3, time.Minute)
	clock.Advance(2 * time.Minute)

	entries, err := table.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 live entries, got %d: %v", len(entries), entries)
	}
	want := []string{"10.0.0.5", "10.0.0.7", "2001:db8::1"}
	for i, e := range entries {
		if e.Addr.String() != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Addr, want[i])
		}
	}
}
