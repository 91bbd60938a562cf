package outlet

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/errors"
)

// Outlet is a named value inside a group's mask.
type Outlet struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// Group is a set of mutually exclusive outlets owning the bits of Mask.
type Group struct {
	Title   string   `json:"title"`
	Mask    uint32   `json:"mask"`
	Outlets []Outlet `json:"outlets"`
}

func (g Group) clone() Group {
	g.Outlets = slices.Clone(g.Outlets)
	return g
}

// Outlet returns the outlet with the given value.
func (g Group) Outlet(value uint32) (Outlet, bool) {
	for _, o := range g.Outlets {
		if o.Value == value {
			return o, true
		}
	}
	return Outlet{}, false
}

// OutletByName returns the outlet with the given name.
func (g Group) OutletByName(name string) (Outlet, bool) {
	for _, o := range g.Outlets {
		if o.Name == name {
			return o, true
		}
	}
	return Outlet{}, false
}

// Default is the outlet shown for an address without an entry:
// the outlet with value 0 if the group has one, the first outlet otherwise.
func (g Group) Default() Outlet {
	if o, ok := g.Outlet(0); ok {
		return o
	}
	return g.Outlets[0]
}

// Selection returns the outlet whose value equals mark&Mask.
func (g Group) Selection(mark uint32) (Outlet, bool) {
	return g.Outlet(mark & g.Mask)
}

// Catalog is the validated, immutable set of outlet groups and durations.
type Catalog struct {
	groups    []Group
	durations []int
}

// FromConfig builds the catalog of a loaded configuration.
func FromConfig(cfg *config.Config) (*Catalog, error) {
	return NewCatalog(cfg.OutletGroups, cfg.TimeLimits)
}

// NewCatalog copies groups and durations into a Catalog.
// Input that breaks a catalog invariant is a configuration error.
func NewCatalog(groups []*config.OutletGroupConfig, timeLimits []int) (*Catalog, error) {
	if len(groups) == 0 {
		return nil, errors.NewConfigError("at least one outlet group is required", nil)
	}
	if len(timeLimits) == 0 {
		return nil, errors.NewConfigError("at least one time limit is required", nil)
	}

	c := &Catalog{
		groups:    make([]Group, 0, len(groups)),
		durations: make([]int, 0, len(timeLimits)),
	}

	var claimed uint32
	for i, gc := range groups {
		if gc == nil {
			return nil, errors.NewConfigError(fmt.Sprintf("outlet group %d is empty", i), nil)
		}
		if gc.Mask == 0 {
			return nil, errors.NewConfigError(fmt.Sprintf("outlet group %q has an empty mask", gc.Title), nil)
		}
		if claimed&gc.Mask != 0 {
			return nil, errors.NewConfigError(
				fmt.Sprintf("mask %#x of outlet group %q overlaps another group", gc.Mask, gc.Title), nil)
		}
		claimed |= gc.Mask
		if len(gc.Outlets) == 0 {
			return nil, errors.NewConfigError(fmt.Sprintf("outlet group %q has no outlets", gc.Title), nil)
		}

		group := Group{Title: gc.Title, Mask: gc.Mask, Outlets: make([]Outlet, 0, len(gc.Outlets))}
		for _, oc := range gc.Outlets {
			if oc == nil {
				return nil, errors.NewConfigError(fmt.Sprintf("outlet group %q has an empty outlet", gc.Title), nil)
			}
			if oc.Value&^gc.Mask != 0 {
				return nil, errors.NewConfigError(
					fmt.Sprintf("outlet %q value %#x does not fit mask %#x", oc.Name, oc.Value, gc.Mask), nil)
			}
			if _, dup := group.Outlet(oc.Value); dup {
				return nil, errors.NewConfigError(
					fmt.Sprintf("outlet group %q has duplicate value %#x", gc.Title, oc.Value), nil)
			}
			group.Outlets = append(group.Outlets, Outlet{Name: oc.Name, Value: oc.Value})
		}
		c.groups = append(c.groups, group)
	}

	for _, hours := range timeLimits {
		if hours < 0 {
			return nil, errors.NewConfigError(fmt.Sprintf("negative time limit %d", hours), nil)
		}
		if hours > config.MaxTimeLimit {
			return nil, errors.NewConfigError(
				fmt.Sprintf("time limit %d exceeds %d hours", hours, config.MaxTimeLimit), nil)
		}
		if slices.Contains(c.durations, hours) {
			return nil, errors.NewConfigError(fmt.Sprintf("duplicate time limit %d", hours), nil)
		}
		c.durations = append(c.durations, hours)
	}

	return c, nil
}

// Groups returns the groups in display order.
func (c *Catalog) Groups() []Group {
	groups := make([]Group, len(c.groups))
	for i, g := range c.groups {
		groups[i] = g.clone()
	}
	return groups
}

// Len returns the number of groups.
func (c *Catalog) Len() int {
	return len(c.groups)
}

// Group returns the group at index.
func (c *Catalog) Group(index int) (Group, bool) {
	if index < 0 || index >= len(c.groups) {
		return Group{}, false
	}
	return c.groups[index].clone(), true
}

// GroupByTitle returns the index and group with the given title.
func (c *Catalog) GroupByTitle(title string) (int, Group, bool) {
	for i, g := range c.groups {
		if g.Title == title {
			return i, g.clone(), true
		}
	}
	return -1, Group{}, false
}

// LookupGroup resolves a group by index or, failing that, by title.
func (c *Catalog) LookupGroup(ref string) (int, Group, bool) {
	if index, err := strconv.Atoi(ref); err == nil {
		g, ok := c.Group(index)
		return index, g, ok
	}
	return c.GroupByTitle(ref)
}

// Durations returns the allowed durations in hours, in display order.
func (c *Catalog) Durations() []int {
	return slices.Clone(c.durations)
}

// DurationAllowed reports whether hours is one of the configured durations.
func (c *Catalog) DurationAllowed(hours int) bool {
	return slices.Contains(c.durations, hours)
}

// TTL converts an allowed duration to an entry timeout. 0 means permanent.
func TTL(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

// Mask returns the union of all group masks.
func (c *Catalog) Mask() uint32 {
	var mask uint32
	for _, g := range c.groups {
		mask |= g.Mask
	}
	return mask
}

func (c *Catalog) String() string {
	return fmt.Sprintf("%d outlet groups, mask %#x, %d durations", len(c.groups), c.Mask(), len(c.durations))
}
