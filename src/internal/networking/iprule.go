package networking

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

type IpRule struct {
	*netlink.Rule
}

func (r *IpRule) String() string {
	from := "all"
	if r.Src != nil && r.Src.String() != "<nil>" {
		from = r.Src.String()
	}

	to := "all"
	if r.Dst != nil && r.Dst.String() != "<nil>" {
		to = r.Dst.String()
	}

	return fmt.Sprintf("rule %d: from %s to %s fwmark=%#x -> table %d",
		r.Priority, from, to, r.Mark, r.Table)
}

// ruleListFiltered is netlink.RuleListFiltered, replaced in tests.
var ruleListFiltered = netlink.RuleListFiltered

// OutletRules is the result of checking one outlet for policy routing rules.
type OutletRules struct {
	Group  string
	Outlet string
	Mark   uint32
	Rules  []*IpRule
}

// Routed reports whether at least one ip rule matches the outlet's mark.
func (o OutletRules) Routed() bool {
	return len(o.Rules) > 0
}

// CheckOutletRules looks up the ip rules that match each outlet value as fwmark.
// Outlets with value 0 leave traffic unmarked and are skipped.
func CheckOutletRules(catalog *outlet.Catalog) ([]OutletRules, error) {
	var results []OutletRules

	for _, group := range catalog.Groups() {
		for _, o := range group.Outlets {
			if o.Value == 0 {
				continue
			}

			filter := netlink.NewRule()
			filter.Mark = o.Value
			rules, err := ruleListFiltered(netlink.FAMILY_ALL, filter, netlink.RT_FILTER_MARK)
			if err != nil {
				log.Warnf("Listing ip rules for fwmark %#x failed: %v", o.Value, err)
				return nil, err
			}

			result := OutletRules{Group: group.Title, Outlet: o.Name, Mark: o.Value}
			for i := range rules {
				result.Rules = append(result.Rules, &IpRule{&rules[i]})
			}
			log.Debugf("Outlet %s/%s (fwmark %#x): %d ip rule(s)", group.Title, o.Name, o.Value, len(result.Rules))
			results = append(results, result)
		}
	}

	return results, nil
}
