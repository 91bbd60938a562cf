package networking

import (
	"fmt"
	"testing"

	"github.com/vishvananda/netlink"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

func testCatalog(t *testing.T) *outlet.Catalog {
	t.Helper()
	c, err := outlet.NewCatalog([]*config.OutletGroupConfig{
		{
			Title: "出口",
			Mask:  0xFF,
			Outlets: []*config.OutletConfig{
				{Name: "默认", Value: 0x0},
				{Name: "电信", Value: 0x1},
				{Name: "移动", Value: 0x2},
			},
		},
	}, []int{1, 0})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return c
}

func TestCheckOutletRules(t *testing.T) {
	original := ruleListFiltered
	defer func() { ruleListFiltered = original }()

	var queried []uint32
	ruleListFiltered = func(family int, filter *netlink.Rule, mask uint64) ([]netlink.Rule, error) {
		if mask != netlink.RT_FILTER_MARK {
			t.Errorf("Expected mark filter, got %d", mask)
		}
		queried = append(queried, filter.Mark)
		if filter.Mark == 0x1 {
			r := netlink.NewRule()
			r.Mark = 0x1
			r.Table = 101
			r.Priority = 1001
			return []netlink.Rule{*r}, nil
		}
		return nil, nil
	}

	results, err := CheckOutletRules(testCatalog(t))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(queried) != 2 || queried[0] != 0x1 || queried[1] != 0x2 {
		t.Errorf("Expected queries for 0x1 and 0x2 only, got %v", queried)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if !results[0].Routed() || results[0].Outlet != "电信" {
		t.Errorf("Expected 电信 to be routed, got %+v", results[0])
	}
	if results[1].Routed() {
		t.Errorf("Expected 移动 to be unrouted, got %+v", results[1])
	}
	if got := results[0].Rules[0].String(); got != "rule 1001: from all to all fwmark=0x1 -> table 101" {
		t.Errorf("Unexpected rule string: %s", got)
	}
}

func TestCheckOutletRules_Error(t *testing.T) {
	original := ruleListFiltered
	defer func() { ruleListFiltered = original }()

	ruleListFiltered = func(int, *netlink.Rule, uint64) ([]netlink.Rule, error) {
		return nil, fmt.Errorf("operation not permitted")
	}

	if _, err := CheckOutletRules(testCatalog(t)); err == nil {
		t.Error("Expected error to propagate")
	}
}
