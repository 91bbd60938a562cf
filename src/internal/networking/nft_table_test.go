package networking

import (
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/wlt-go/wlt/src/internal/errors"
)

const nftListOutput = `{"nftables": [{"metainfo": {"version": "1.0.9", "json_schema_version": 1}},
{"map": {"family": "inet", "name": "src2mark", "table": "wlt", "type": "ipv4_addr", "handle": 3,
"map": "mark", "flags": ["timeout"], "elem": [
[{"elem": {"val": "10.0.0.5", "timeout": 14400, "expires": 14390}}, 257],
["10.0.0.6", "0x00000002"]
]}}]}`

// fakeNft records nft invocations and returns canned output.
type fakeNft struct {
	listOutput string
	listErr    error
	scriptErr  error
	scripts    []string
}

func (f *fakeNft) run(ctx context.Context, stdin string, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "--json" {
		return f.listOutput, f.listErr
	}
	f.scripts = append(f.scripts, stdin)
	return "", f.scriptErr
}

func newFakeNftTable(f *fakeNft) *NftMarkTable {
	table := NewNftMarkTable(MapRef{Family: "inet", Table: "wlt", Map: "src2mark"}, "")
	table.run = f.run
	return table
}

func TestNftMarkTable_Get(t *testing.T) {
	table := newFakeNftTable(&fakeNft{listOutput: nftListOutput})
	ctx := context.Background()

	entry, err := table.Get(ctx, netip.MustParseAddr("10.0.0.5"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.Found || entry.Mark != 0x101 || entry.Expires != 14390*time.Second {
		t.Errorf("Unexpected timed entry: %+v", entry)
	}

	entry, _ = table.Get(ctx, netip.MustParseAddr("10.0.0.6"))
	if !entry.Permanent() || entry.Mark != 0x2 {
		t.Errorf("Unexpected permanent entry: %+v", entry)
	}

	entry, _ = table.Get(ctx, netip.MustParseAddr("10.0.0.7"))
	if entry.Found {
		t.Errorf("Expected no entry, got %+v", entry)
	}
}

func TestNftMarkTable_ReplaceScript(t *testing.T) {
	f := &fakeNft{listOutput: nftListOutput}
	table := newFakeNftTable(f)

	if err := table.Replace(context.Background(), netip.MustParseAddr("10.0.0.5"), 0x101, 0x102, 0); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := table.Replace(context.Background(), netip.MustParseAddr("10.0.0.7"), 0, 0x1, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	want := []string{
		"add element inet wlt src2mark { 10.0.0.5 : 0x101 }\n" +
			"delete element inet wlt src2mark { 10.0.0.5 }\n" +
			"add element inet wlt src2mark { 10.0.0.5 : 0x102 }\n",
		"add element inet wlt src2mark { 10.0.0.7 : 0x0 }\n" +
			"delete element inet wlt src2mark { 10.0.0.7 }\n" +
			"add element inet wlt src2mark { 10.0.0.7 timeout 3600s : 0x1 }\n",
	}
	if len(f.scripts) != len(want) {
		t.Fatalf("Expected %d scripts, got %d", len(want), len(f.scripts))
	}
	for i := range want {
		if f.scripts[i] != want[i] {
			t.Errorf("script %d:\n%s\nwant:\n%s", i, f.scripts[i], want[i])
		}
	}
}

func TestNftMarkTable_ReplaceConflict(t *testing.T) {
	f := &fakeNft{
		listOutput: nftListOutput,
		scriptErr: errors.NewTableError(classifyNftOutput("Error: Could not process rule: Device or resource busy"),
			"nft -f - failed", nil),
	}
	table := newFakeNftTable(f)

	err := table.Replace(context.Background(), netip.MustParseAddr("10.0.0.5"), 0x1, 0x2, 0)
	if !errors.IsConflict(err) {
		t.Fatalf("Expected conflict, got: %v", err)
	}
	if !strings.Contains(err.Error(), "no longer holds 0x1") {
		t.Errorf("Expected the expected mark in the message, got: %v", err)
	}
	if len(f.scripts) != 1 || !strings.HasPrefix(f.scripts[0], "add element inet wlt src2mark { 10.0.0.5 : 0x1 }\n") {
		t.Errorf("Expected the leading add to carry the expected mark, got %q", f.scripts)
	}
}

func TestNftMarkTable_ReplaceWithoutTimeoutFlag(t *testing.T) {
	f := &fakeNft{listOutput: strings.Replace(nftListOutput, `"flags": ["timeout"], `, "", 1)}
	table := newFakeNftTable(f)

	err := table.Replace(context.Background(), netip.MustParseAddr("10.0.0.5"), 0x101, 0x1, time.Hour)
	if errors.TableKindOf(err) != errors.TableErrUnsupported {
		t.Errorf("Expected unsupported error, got: %v", err)
	}
	if len(f.scripts) != 0 {
		t.Error("Expected no write after a failed precondition")
	}

	if err := table.Replace(context.Background(), netip.MustParseAddr("10.0.0.5"), 0x101, 0x1, 0); err != nil {
		t.Errorf("Expected permanent write to succeed, got: %v", err)
	}
}

func TestNftMarkTable_Delete(t *testing.T) {
	f := &fakeNft{listOutput: nftListOutput}
	table := newFakeNftTable(f)
	ctx := context.Background()

	if err := table.Delete(ctx, netip.MustParseAddr("10.0.0.7")); err != nil {
		t.Fatalf("Delete of missing entry failed: %v", err)
	}
	if len(f.scripts) != 0 {
		t.Error("Expected no script for a missing entry")
	}

	if err := table.Delete(ctx, netip.MustParseAddr("10.0.0.6")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	want := "add element inet wlt src2mark { 10.0.0.6 : 0x2 }\ndelete element inet wlt src2mark { 10.0.0.6 }\n"
	if len(f.scripts) != 1 || f.scripts[0] != want {
		t.Errorf("Unexpected delete script: %q", f.scripts)
	}
}

func TestNftMarkTable_ErrorsPropagate(t *testing.T) {
	listErr := errors.NewTableError(errors.TableErrMissingMap, "nft list failed", nil)
	table := newFakeNftTable(&fakeNft{listErr: listErr})

	_, err := table.Get(context.Background(), netip.MustParseAddr("10.0.0.5"))
	if errors.TableKindOf(err) != errors.TableErrMissingMap {
		t.Errorf("Expected missing map error, got: %v", err)
	}

	table = newFakeNftTable(&fakeNft{listOutput: `{"nftables": [{"metainfo": {}}]}`})
	_, err = table.Get(context.Background(), netip.MustParseAddr("10.0.0.5"))
	if errors.TableKindOf(err) != errors.TableErrMissingMap {
		t.Errorf("Expected missing map error for empty listing, got: %v", err)
	}
}

func TestNftMarkTable_ListAndCheck(t *testing.T) {
	table := newFakeNftTable(&fakeNft{listOutput: nftListOutput})
	ctx := context.Background()

	entries, err := table.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}

	if err := table.Check(ctx); err != nil {
		t.Errorf("Expected check to pass, got: %v", err)
	}

	table = newFakeNftTable(&fakeNft{listOutput: strings.Replace(nftListOutput, `"map": "mark"`, `"map": "verdict"`, 1)})
	if err := table.Check(ctx); errors.TableKindOf(err) != errors.TableErrUnsupported {
		t.Errorf("Expected unsupported error for verdict map, got: %v", err)
	}
}

func TestNftMarkTable_CheckReportsRawType(t *testing.T) {
	ctx := context.Background()

	concat := strings.Replace(nftListOutput, `"type": "ipv4_addr"`, `"type": ["ipv4_addr", "inet_service"]`, 1)
	err := newFakeNftTable(&fakeNft{listOutput: concat}).Check(ctx)
	if errors.TableKindOf(err) != errors.TableErrUnsupported {
		t.Fatalf("Expected unsupported error for concatenated key, got: %v", err)
	}
	if !strings.Contains(err.Error(), "inet_service") {
		t.Errorf("Expected raw key type in error, got: %v", err)
	}

	missing := strings.Replace(nftListOutput, `"map": "mark", `, ``, 1)
	err = newFakeNftTable(&fakeNft{listOutput: missing}).Check(ctx)
	if errors.TableKindOf(err) != errors.TableErrUnsupported {
		t.Errorf("Expected unsupported error for map without data type, got: %v", err)
	}
}
