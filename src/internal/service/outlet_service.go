package service

import (
	"context"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/metrics"
	"github.com/wlt-go/wlt/src/internal/networking"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

const (
	opApply  = "apply"
	opReset  = "reset"
	opStatus = "status"
)

// Result describes a completed write.
type Result struct {
	Addr    netip.Addr    `json:"addr"`
	OldMark uint32        `json:"old_mark"`
	NewMark uint32        `json:"new_mark"`
	TTL     time.Duration `json:"ttl"`
}

// Permanent reports whether the written entry never expires.
func (r Result) Permanent() bool {
	return r.TTL == 0
}

// GroupStatus is the outlet currently selected in one group.
type GroupStatus struct {
	Title  string        `json:"title"`
	Outlet outlet.Outlet `json:"outlet"`
	// Known is false when the group's bits match none of its outlets.
	// Outlet.Value then holds the raw bits and Outlet.Name is empty.
	Known bool `json:"known"`
}

// Status is the read-only view of an address.
type Status struct {
	Addr    netip.Addr    `json:"addr"`
	Found   bool          `json:"found"`
	Mark    uint32        `json:"mark"`
	Expires time.Duration `json:"expires"`
	Groups  []GroupStatus `json:"groups"`
}

// OutletService applies outlet selections to the mark map.
type OutletService struct {
	catalog atomic.Pointer[outlet.Catalog]
	table   networking.MarkTable
	locks   *KeyedLock
	metrics *metrics.Metrics
}

type Option func(*OutletService)

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OutletService) {
		s.metrics = m
	}
}

// NewOutletService creates a new outlet service.
//
// Parameters:
//   - catalog: The validated outlet groups and durations
//   - table: The mark map backend
func NewOutletService(catalog *outlet.Catalog, table networking.MarkTable, opts ...Option) *OutletService {
	s := &OutletService{
		table: table,
		locks: NewKeyedLock(),
	}
	s.catalog.Store(catalog)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the catalog requests are validated against.
func (s *OutletService) Catalog() *outlet.Catalog {
	return s.catalog.Load()
}

// SetCatalog swaps the catalog. Requests already validated finish with the old one.
func (s *OutletService) SetCatalog(c *outlet.Catalog) {
	s.catalog.Store(c)
}

// Table returns the mark map backend.
func (s *OutletService) Table() networking.MarkTable {
	return s.table
}

func validateAddr(addr netip.Addr) (netip.Addr, error) {
	if !addr.IsValid() {
		return addr, errors.NewValidationError("invalid source address", nil)
	}
	return addr.Unmap().WithZone(""), nil
}

func (s *OutletService) validateDuration(c *outlet.Catalog, hours int) error {
	if !c.DurationAllowed(hours) {
		return errors.NewValidationError(fmt.Sprintf("duration %dh is not allowed", hours), nil)
	}
	return nil
}

// Apply selects outletValue in the group at groupIndex for addr and resets the
// entry's TTL to hours. Bits of other groups are preserved.
func (s *OutletService) Apply(ctx context.Context, addr netip.Addr, groupIndex int, outletValue uint32, hours int) (res Result, err error) {
	defer func() { s.metrics.ObserveOperation(opApply, err) }()

	addr, err = validateAddr(addr)
	if err != nil {
		return Result{}, err
	}
	c := s.Catalog()
	group, ok := c.Group(groupIndex)
	if !ok {
		return Result{}, errors.NewValidationError(fmt.Sprintf("unknown outlet group %d", groupIndex), nil)
	}
	if _, ok := group.Outlet(outletValue); !ok {
		return Result{}, errors.NewValidationError(
			fmt.Sprintf("value %#x is not an outlet of group %q", outletValue, group.Title), nil)
	}
	if err := s.validateDuration(c, hours); err != nil {
		return Result{}, err
	}

	return s.write(ctx, addr, hours, func(current uint32) (uint32, error) {
		return group.Compose(current, outletValue)
	})
}

// ApplySelections selects one outlet per group, values in group order, and
// resets the entry's TTL to hours. Bits outside every group mask are preserved.
func (s *OutletService) ApplySelections(ctx context.Context, addr netip.Addr, values []uint32, hours int) (res Result, err error) {
	defer func() { s.metrics.ObserveOperation(opApply, err) }()

	addr, err = validateAddr(addr)
	if err != nil {
		return Result{}, err
	}
	c := s.Catalog()
	if len(values) != c.Len() {
		return Result{}, errors.NewValidationError(
			fmt.Sprintf("expected %d selections, got %d", c.Len(), len(values)), nil)
	}
	selections := make([]outlet.Selection, 0, len(values))
	for i, group := range c.Groups() {
		if _, ok := group.Outlet(values[i]); !ok {
			return Result{}, errors.NewValidationError(
				fmt.Sprintf("value %#x is not an outlet of group %q", values[i], group.Title), nil)
		}
		selections = append(selections, outlet.Selection{Mask: group.Mask, Value: values[i]})
	}
	if err := s.validateDuration(c, hours); err != nil {
		return Result{}, err
	}

	return s.write(ctx, addr, hours, func(current uint32) (uint32, error) {
		return outlet.ComposeAll(current, selections)
	})
}

// lock waits for addr's lock. Once acquired, the returned context is detached
// from ctx so a caller going away cannot interrupt the write.
func (s *OutletService) lock(ctx context.Context, addr netip.Addr) (context.Context, func(), error) {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, addr)
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		log.Debugf("Gave up waiting for %s: %v", addr, err)
		return nil, nil, err
	}
	s.metrics.SetLockedKeys(s.locks.Len())
	return context.WithoutCancel(ctx), func() {
		unlock()
		s.metrics.SetLockedKeys(s.locks.Len())
	}, nil
}

// writeAttempts bounds the read-compose-write retries after losing a race
// with a writer outside this process, such as the CLI next to the daemon.
const writeAttempts = 3

func (s *OutletService) write(ctx context.Context, addr netip.Addr, hours int, compose func(uint32) (uint32, error)) (Result, error) {
	ctx, unlock, err := s.lock(ctx, addr)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ttl := outlet.TTL(hours)
	for attempt := 1; ; attempt++ {
		current, err := s.table.Get(ctx, addr)
		if err != nil {
			log.Errorf("Failed to read entry of %s: %v", addr, err)
			return Result{}, err
		}

		mark, err := compose(current.Mark)
		if err != nil {
			return Result{}, err
		}

		err = s.table.Replace(ctx, addr, current.Mark, mark, ttl)
		if errors.IsConflict(err) && attempt < writeAttempts {
			log.Warnf("Entry of %s changed while writing, retrying: %v", addr, err)
			continue
		}
		if err != nil {
			log.Errorf("Failed to write entry of %s: %v", addr, err)
			return Result{}, err
		}

		log.Infof("Applied %s: mark %#x -> %#x, ttl %s", addr, current.Mark, mark, ttlString(ttl))
		return Result{Addr: addr, OldMark: current.Mark, NewMark: mark, TTL: ttl}, nil
	}
}

func ttlString(ttl time.Duration) string {
	if ttl == 0 {
		return "permanent"
	}
	return ttl.String()
}

// Reset removes the entry of addr, so its traffic falls back to the default path.
func (s *OutletService) Reset(ctx context.Context, addr netip.Addr) (err error) {
	defer func() { s.metrics.ObserveOperation(opReset, err) }()

	addr, err = validateAddr(addr)
	if err != nil {
		return err
	}

	ctx, unlock, err := s.lock(ctx, addr)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = s.table.Delete(ctx, addr)
		if errors.IsConflict(err) && attempt < writeAttempts {
			log.Warnf("Entry of %s changed while deleting, retrying: %v", addr, err)
			continue
		}
		break
	}
	if err != nil {
		log.Errorf("Failed to delete entry of %s: %v", addr, err)
		return err
	}

	log.Infof("Reset %s", addr)
	return nil
}

// Status reports the outlet selected in each group for addr. An address without
// an entry shows every group's default outlet.
func (s *OutletService) Status(ctx context.Context, addr netip.Addr) (st Status, err error) {
	defer func() { s.metrics.ObserveOperation(opStatus, err) }()

	addr, err = validateAddr(addr)
	if err != nil {
		return Status{}, err
	}

	entry, err := s.table.Get(ctx, addr)
	if err != nil {
		return Status{}, err
	}

	return s.statusOf(entry), nil
}

func (s *OutletService) statusOf(entry networking.MarkEntry) Status {
	groups := s.Catalog().Groups()
	st := Status{
		Addr:    entry.Addr,
		Found:   entry.Found,
		Mark:    entry.Mark,
		Expires: entry.Expires,
		Groups:  make([]GroupStatus, 0, len(groups)),
	}

	for _, g := range groups {
		gs := GroupStatus{Title: g.Title, Known: true}
		if !entry.Found {
			gs.Outlet = g.Default()
		} else if o, ok := g.Selection(entry.Mark); ok {
			gs.Outlet = o
		} else {
			gs.Outlet = outlet.Outlet{Value: entry.Mark & g.Mask}
			gs.Known = false
		}
		st.Groups = append(st.Groups, gs)
	}
	return st
}

// Entries lists every entry of the map with its per-group status.
func (s *OutletService) Entries(ctx context.Context) ([]Status, error) {
	entries, err := s.table.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, s.statusOf(e))
	}
	return statuses, nil
}

// Check verifies the mark map.
func (s *OutletService) Check(ctx context.Context) error {
	return s.table.Check(ctx)
}
