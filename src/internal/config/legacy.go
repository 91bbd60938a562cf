package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// legacyConfig is the older file layout: the web listener lives under [flask]
// and each group lists its outlets as an inline table of name = mark.
//
//	[flask]
//	host = "0.0.0.0"
//	port = 80
//
//	[[outlet_groups]]
//	title = "线路"
//	mask = 0xF00
//	outlets = { "电信" = 0x100, "移动" = 0x200 }
type legacyConfig struct {
	Flask        legacyFlask          `toml:"flask"`
	Nftables     legacyNftables       `toml:"nftables"`
	OutletGroups []*legacyOutletGroup `toml:"outlet_groups"`
	TimeLimits   []int                `toml:"time_limits"`
}

type legacyFlask struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
	// Debug toggled the development server and has no counterpart.
	Debug bool `toml:"debug"`
}

type legacyNftables struct {
	Family string `toml:"family"`
	Table  string `toml:"table"`
	Map    string `toml:"map"`
}

type legacyOutletGroup struct {
	Title   string        `toml:"title"`
	Mask    uint32        `toml:"mask"`
	Outlets legacyOutlets `toml:"outlets"`
}

// legacyOutlets keeps the inline table in file order, which a Go map would lose.
type legacyOutlets []*OutletConfig

func (o *legacyOutlets) UnmarshalTOML(node *unstable.Node) error {
	if node.Kind != unstable.InlineTable {
		return fmt.Errorf("outlets must be an inline table of name = mark, got %s", node.Kind)
	}

	it := node.Children()
	for it.Next() {
		kv := it.Node()
		if kv.Kind != unstable.KeyValue {
			continue
		}

		key := kv.Key()
		key.Next()
		name := string(key.Node().Data)
		if !key.IsLast() {
			return fmt.Errorf("outlet %q: dotted keys are not allowed", name)
		}

		value := kv.Value()
		if value.Kind != unstable.Integer {
			return fmt.Errorf("outlet %q: mark must be an integer, got %s", name, value.Kind)
		}
		mark, err := strconv.ParseUint(strings.TrimPrefix(string(value.Data), "+"), 0, 32)
		if err != nil {
			return fmt.Errorf("outlet %q: %w", name, err)
		}
		*o = append(*o, &OutletConfig{Name: name, Value: uint32(mark)})
	}
	return nil
}

// parseLegacyConfig decodes the older layout on top of DefaultConfig.
func parseLegacyConfig(content []byte) (*Config, error) {
	config := DefaultConfig()
	legacy := legacyConfig{
		Flask: legacyFlask{Host: config.Web.Host, Port: config.Web.Port},
		Nftables: legacyNftables{
			Family: config.Nftables.Family,
			Table:  config.Nftables.Table,
			Map:    config.Nftables.Map,
		},
	}

	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	dec.EnableUnmarshalerInterface()
	if err := dec.Decode(&legacy); err != nil {
		return nil, err
	}

	config.Web.Host = legacy.Flask.Host
	config.Web.Port = legacy.Flask.Port
	config.Nftables.Family = legacy.Nftables.Family
	config.Nftables.Table = legacy.Nftables.Table
	config.Nftables.Map = legacy.Nftables.Map
	config.TimeLimits = legacy.TimeLimits
	for _, g := range legacy.OutletGroups {
		if g == nil {
			continue
		}
		config.OutletGroups = append(config.OutletGroups, &OutletGroupConfig{
			Title:   g.Title,
			Mask:    g.Mask,
			Outlets: g.Outlets,
		})
	}
	return config, nil
}
