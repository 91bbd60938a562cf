package mocks

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/wlt-go/wlt/src/internal/networking"
)

// MockMarkTable is a mock implementation of the networking.MarkTable interface.
//
// Without hooks it behaves like an in-memory map, so tests can drive the
// service end to end and only override the calls they care about.
type MockMarkTable struct {
	// GetFunc is called by Get if not nil
	GetFunc func(ctx context.Context, addr netip.Addr) (networking.MarkEntry, error)

	// ReplaceFunc is called by Replace if not nil
	ReplaceFunc func(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error

	// DeleteFunc is called by Delete if not nil
	DeleteFunc func(ctx context.Context, addr netip.Addr) error

	// ListFunc is called by List if not nil
	ListFunc func(ctx context.Context) ([]networking.MarkEntry, error)

	// CheckFunc is called by Check if not nil
	CheckFunc func(ctx context.Context) error

	// Track calls for verification in tests. Read them after concurrent callers finish.
	GetCalls     int
	ReplaceCalls int
	DeleteCalls  int
	ListCalls    int
	CheckCalls   int

	mu      sync.Mutex
	backing *networking.MemoryMarkTable
}

// NewMockMarkTable creates a new mock backed by an empty in-memory table.
func NewMockMarkTable() *MockMarkTable {
	return NewMockMarkTableWithClock(nil)
}

// NewMockMarkTableWithClock uses now for expiry of the backing table.
func NewMockMarkTableWithClock(now func() time.Time) *MockMarkTable {
	ref := networking.MapRef{Family: "inet", Table: "wlt", Map: "src2mark", Map6: "src2mark6"}
	return &MockMarkTable{backing: networking.NewMemoryMarkTable(ref, now)}
}

func (m *MockMarkTable) count(counter *int) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

// Backing returns the in-memory table used when no hook is set.
func (m *MockMarkTable) Backing() *networking.MemoryMarkTable {
	return m.backing
}

// Get returns the entry of addr.
func (m *MockMarkTable) Get(ctx context.Context, addr netip.Addr) (networking.MarkEntry, error) {
	m.count(&m.GetCalls)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, addr)
	}
	return m.backing.Get(ctx, addr)
}

// Replace writes the entry of addr.
func (m *MockMarkTable) Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
	m.count(&m.ReplaceCalls)
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, addr, old, mark, ttl)
	}
	return m.backing.Replace(ctx, addr, old, mark, ttl)
}

// Delete removes the entry of addr.
func (m *MockMarkTable) Delete(ctx context.Context, addr netip.Addr) error {
	m.count(&m.DeleteCalls)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, addr)
	}
	return m.backing.Delete(ctx, addr)
}

// List returns all entries.
func (m *MockMarkTable) List(ctx context.Context) ([]networking.MarkEntry, error) {
	m.count(&m.ListCalls)
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return m.backing.List(ctx)
}

// Check verifies the table.
func (m *MockMarkTable) Check(ctx context.Context) error {
	m.count(&m.CheckCalls)
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx)
	}
	return nil
}

// TableCalls returns the number of calls that touched the table entries.
func (m *MockMarkTable) TableCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls + m.ReplaceCalls + m.DeleteCalls
}
