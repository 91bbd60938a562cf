package networking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
)

const defaultNftCommand = "nft"

// NftMarkTable drives the nft binary. Reads use `nft --json list map`,
// writes feed a script to `nft -f -`, which the kernel commits as one transaction.
type NftMarkTable struct {
	ref     MapRef
	command string
	// run executes nft with args and stdin. Replaced in tests.
	run func(ctx context.Context, stdin string, args ...string) (string, error)
}

func NewNftMarkTable(ref MapRef, command string) *NftMarkTable {
	if command == "" {
		command = defaultNftCommand
	}
	t := &NftMarkTable{ref: ref, command: command}
	t.run = t.exec
	return t
}

func (t *NftMarkTable) exec(ctx context.Context, stdin string, args ...string) (string, error) {
	if _, err := exec.LookPath(t.command); err != nil {
		return "", errors.NewTableError(errors.TableErrUnsupported,
			fmt.Sprintf("failed to find nft command %s", t.command), err)
	}

	cmd := exec.CommandContext(ctx, t.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	log.Debugf("Running: %s %s", t.command, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.NewTableError(classifyNftOutput(msg),
			fmt.Sprintf("%s %s failed: %s", t.command, strings.Join(args, " "), msg), err)
	}
	return stdout.String(), nil
}

// nftListing is the subset of `nft --json list map` output we read.
type nftListing struct {
	Nftables []struct {
		Map *struct {
			Name  string            `json:"name"`
			Type  json.RawMessage   `json:"type"`
			Map   json.RawMessage   `json:"map"`
			Flags []string          `json:"flags"`
			Elem  []json.RawMessage `json:"elem"`
		} `json:"map"`
	} `json:"nftables"`
}

type nftMap struct {
	name       string
	keyType    string
	dataType   string
	hasTimeout bool
	entries    []MarkEntry
}

func (t *NftMarkTable) listMap(ctx context.Context, name string) (*nftMap, error) {
	out, err := t.run(ctx, "", "--json", "list", "map", t.ref.Family, t.ref.Table, name)
	if err != nil {
		return nil, err
	}

	var listing nftListing
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		return nil, errors.NewTableError(errors.TableErrFailed,
			fmt.Sprintf("failed to parse nft output for %s", mapName{t.ref, name}), err)
	}

	for _, item := range listing.Nftables {
		if item.Map == nil {
			continue
		}
		m := &nftMap{
			name:     item.Map.Name,
			keyType:  nftTypeName(item.Map.Type),
			dataType: nftTypeName(item.Map.Map),
		}
		for _, flag := range item.Map.Flags {
			if flag == "timeout" {
				m.hasTimeout = true
			}
		}
		for _, raw := range item.Map.Elem {
			entry, err := parseNftElement(raw)
			if err != nil {
				log.Warnf("Skipping element of %s: %v", mapName{t.ref, name}, err)
				continue
			}
			m.entries = append(m.entries, entry)
		}
		return m, nil
	}

	return nil, errors.NewTableError(errors.TableErrMissingMap,
		fmt.Sprintf("map %s not found in nft output", mapName{t.ref, name}), nil)
}

// nftTypeName returns a map key or data type. Concatenated and typeof types
// are not plain strings and come back as their raw JSON, which Check rejects.
func nftTypeName(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		log.Debugf("Unexpected nft type %s: %v", raw, err)
		return string(raw)
	}
	return name
}

// parseNftElement decodes one map element. Elements with a timeout look like
// [{"elem": {"val": "10.0.0.5", "timeout": 3600, "expires": 3599}}, 1],
// permanent ones like ["10.0.0.5", 1].
func parseNftElement(raw json.RawMessage) (MarkEntry, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return MarkEntry{}, fmt.Errorf("unexpected element %s", raw)
	}

	var entry MarkEntry
	var key string
	if err := json.Unmarshal(pair[0], &key); err != nil {
		var wrapped struct {
			Elem struct {
				Val     string `json:"val"`
				Expires int64  `json:"expires"`
			} `json:"elem"`
		}
		if err := json.Unmarshal(pair[0], &wrapped); err != nil {
			return MarkEntry{}, fmt.Errorf("unexpected element key %s", pair[0])
		}
		key = wrapped.Elem.Val
		entry.Expires = time.Duration(wrapped.Elem.Expires) * time.Second
	}

	addr, err := netip.ParseAddr(key)
	if err != nil {
		return MarkEntry{}, err
	}
	entry.Addr = addr

	mark, err := parseNftMark(pair[1])
	if err != nil {
		return MarkEntry{}, err
	}
	entry.Mark = mark
	entry.Found = true
	return entry, nil
}

func parseNftMark(raw json.RawMessage) (uint32, error) {
	var n uint32
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unexpected mark %s", raw)
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (t *NftMarkTable) Get(ctx context.Context, addr netip.Addr) (MarkEntry, error) {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return MarkEntry{Addr: addr}, err
	}

	m, err := t.listMap(ctx, name)
	if err != nil {
		return MarkEntry{Addr: key}, err
	}
	return m.find(key), nil
}

func (m *nftMap) find(key netip.Addr) MarkEntry {
	for _, e := range m.entries {
		if e.Addr.Unmap() == key {
			return e
		}
	}
	return MarkEntry{Addr: key}
}

func (t *NftMarkTable) element(name string, key netip.Addr) string {
	return fmt.Sprintf("element %s %s %s { %s", t.ref.Family, t.ref.Table, name, key)
}

func nftTimeout(ttl time.Duration) string {
	return strconv.FormatInt(int64(ttl/time.Second), 10) + "s"
}

// Replace writes add(old), delete, add(new) in a single nft script. nft
// rejects the leading add when the entry holds a different mark, which
// aborts the whole script.
func (t *NftMarkTable) Replace(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	if ttl > 0 {
		m, err := t.listMap(ctx, name)
		if err != nil {
			return err
		}
		if !m.hasTimeout {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("map %s has no timeout flag", mapName{t.ref, name}), nil)
		}
	}

	var script strings.Builder
	fmt.Fprintf(&script, "add %s : %#x }\n", t.element(name, key), old)
	fmt.Fprintf(&script, "delete %s }\n", t.element(name, key))
	if ttl > 0 {
		fmt.Fprintf(&script, "add %s timeout %s : %#x }\n", t.element(name, key), nftTimeout(ttl), mark)
	} else {
		fmt.Fprintf(&script, "add %s : %#x }\n", t.element(name, key), mark)
	}

	if _, err := t.run(ctx, script.String(), "-f", "-"); err != nil {
		return conflictError(key, mapName{t.ref, name}, old, err)
	}

	log.Debugf("Replaced %s in %s: %#x -> %#x (ttl %s)", key, mapName{t.ref, name}, old, mark, ttl)
	return nil
}

func (t *NftMarkTable) Delete(ctx context.Context, addr netip.Addr) error {
	key, name, err := t.ref.resolveKey(addr)
	if err != nil {
		return err
	}

	m, err := t.listMap(ctx, name)
	if err != nil {
		return err
	}
	current := m.find(key)
	if !current.Found {
		return nil
	}

	var script strings.Builder
	fmt.Fprintf(&script, "add %s : %#x }\n", t.element(name, key), current.Mark)
	fmt.Fprintf(&script, "delete %s }\n", t.element(name, key))

	if _, err := t.run(ctx, script.String(), "-f", "-"); err != nil {
		return err
	}

	log.Debugf("Deleted %s from %s (was %#x)", key, mapName{t.ref, name}, current.Mark)
	return nil
}

func (t *NftMarkTable) List(ctx context.Context) ([]MarkEntry, error) {
	var entries []MarkEntry
	for _, name := range t.ref.Maps() {
		m, err := t.listMap(ctx, name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, m.entries...)
	}
	return entries, nil
}

func (t *NftMarkTable) Check(ctx context.Context) error {
	for _, name := range t.ref.Maps() {
		m, err := t.listMap(ctx, name)
		if err != nil {
			return err
		}
		if m.keyType != "ipv4_addr" && m.keyType != "ipv6_addr" {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("%s is keyed by %q, want an address type", mapName{t.ref, name}, m.keyType), nil)
		}
		if m.dataType != "mark" {
			return errors.NewTableError(errors.TableErrUnsupported,
				fmt.Sprintf("%s maps to %q, want mark", mapName{t.ref, name}, m.dataType), nil)
		}
		if !m.hasTimeout {
			log.Warnf("Map %s has no timeout flag: only permanent entries can be written", mapName{t.ref, name})
		}
	}
	return nil
}
