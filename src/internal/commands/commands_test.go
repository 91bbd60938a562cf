package commands

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/wlt-go/wlt/src/internal/mocks"
	"github.com/wlt-go/wlt/src/internal/networking"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

const testTOML = `time_limits = [1, 4, 0]

[web]
enable = false

[ssh]
enable = false

[nftables]
backend = "memory"

[[outlet_groups]]
title = "A"
mask = 0xFF
outlets = [
  { name = "电信", value = 0x1 },
  { name = "移动", value = 0x2 },
]

[[outlet_groups]]
title = "B"
mask = 0xF00
outlets = [
  { name = "默认", value = 0x0 },
  { name = "覆盖CN路由", value = 0x100 },
]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return configFile
}

func newTestContext(t *testing.T) (*AppContext, *mocks.MockMarkTable, *bytes.Buffer) {
	t.Helper()
	table := mocks.NewMockMarkTable()
	out := &bytes.Buffer{}
	return &AppContext{
		ConfigPath: writeConfig(t, testTOML),
		Table:      table,
		Out:        out,
	}, table, out
}

func runCommand(t *testing.T, cmd Runner, ctx *AppContext, args ...string) error {
	t.Helper()
	if err := cmd.Init(args, ctx); err != nil {
		return err
	}
	return cmd.Run()
}

func TestApplyStatusReset(t *testing.T) {
	ctx, table, out := newTestContext(t)
	addr := netip.MustParseAddr("10.0.0.5")

	if err := runCommand(t, CreateApplyCommand(), ctx, "10.0.0.5", "A", "电信", "1"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// Group by index, outlet by value
	if err := runCommand(t, CreateApplyCommand(), ctx, "10.0.0.5", "1", "0x100", "4"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !strings.Contains(out.String(), "10.0.0.5: 0x1 -> 0x101") {
		t.Errorf("Unexpected apply output:\n%s", out.String())
	}

	entry, _ := table.Backing().Get(context.Background(), addr)
	if entry.Mark != 0x101 {
		t.Fatalf("Expected mark 0x101, got %#x", entry.Mark)
	}

	out.Reset()
	if err := runCommand(t, CreateStatusCommand(), ctx, "10.0.0.5"); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"Mark:     0x101", "Outlets:  电信 + 覆盖CN路由", "B: 覆盖CN路由 (0x100)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected status to contain %q:\n%s", want, out.String())
		}
	}

	if err := runCommand(t, CreateResetCommand(), ctx, "10.0.0.5"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if entry, _ := table.Backing().Get(context.Background(), addr); entry.Found {
		t.Errorf("Expected entry to be removed")
	}
}

func TestApply_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown group", []string{"10.0.0.5", "C", "电信", "1"}},
		{"unknown outlet", []string{"10.0.0.5", "A", "联通", "1"}},
		{"value of another group", []string{"10.0.0.5", "A", "0x100", "1"}},
		{"duration not allowed", []string{"10.0.0.5", "A", "电信", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, table, _ := newTestContext(t)
			if err := runCommand(t, CreateApplyCommand(), ctx, tt.args...); err == nil {
				t.Fatal("Expected error")
			}
			if table.ReplaceCalls != 0 {
				t.Errorf("Expected no write")
			}
		})
	}
}

func TestCommands_BadArguments(t *testing.T) {
	ctx, _, _ := newTestContext(t)

	if err := CreateApplyCommand().Init([]string{"10.0.0.5", "A"}, ctx); err == nil {
		t.Error("Expected usage error for apply")
	}
	if err := CreateApplyCommand().Init([]string{"10.0.0.5", "A", "电信", "x"}, ctx); err == nil {
		t.Error("Expected error for non-numeric hours")
	}
	if err := CreateStatusCommand().Init([]string{"not-an-ip"}, ctx); err == nil {
		t.Error("Expected error for invalid address")
	}
	if err := CreateResetCommand().Init(nil, ctx); err == nil {
		t.Error("Expected usage error for reset")
	}
}

func TestList(t *testing.T) {
	ctx, table, out := newTestContext(t)
	_ = table.Backing().Replace(context.Background(), netip.MustParseAddr("10.0.0.5"), 0, 0x2, 0)
	_ = table.Backing().Replace(context.Background(), netip.MustParseAddr("10.0.0.6"), 0, 0x101, time.Hour)

	if err := runCommand(t, CreateListCommand(), ctx); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 entries, got:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "10.0.0.5") || !strings.Contains(lines[1], "permanent") || !strings.Contains(lines[1], "移动 + 默认") {
		t.Errorf("Unexpected line: %s", lines[1])
	}
	if !strings.Contains(lines[2], "0x101") || !strings.Contains(lines[2], "电信 + 覆盖CN路由") {
		t.Errorf("Unexpected line: %s", lines[2])
	}
}

func TestCheckConfig(t *testing.T) {
	ctx, _, out := newTestContext(t)

	if err := runCommand(t, CreateCheckConfigCommand(), ctx); err != nil {
		t.Fatalf("check-config failed: %v", err)
	}
	for _, want := range []string{"is valid", `Group "B" (mask 0xf00)`, "Durations: 1小时 4小时 永久"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out.String())
		}
	}

	ctx.ConfigPath = writeConfig(t, strings.Replace(testTOML, "mask = 0xF00", "mask = 0xF0F", 1))
	if err := runCommand(t, CreateCheckConfigCommand(), ctx); err == nil {
		t.Error("Expected overlapping masks to be rejected")
	}
}

func TestSelfCheck(t *testing.T) {
	ctx, table, _ := newTestContext(t)

	cmd := CreateSelfCheckCommand()
	cmd.checkRules = func(c *outlet.Catalog) ([]networking.OutletRules, error) {
		return []networking.OutletRules{
			{Group: "A", Outlet: "电信", Mark: 0x1, Rules: []*networking.IpRule{{Rule: netlink.NewRule()}}},
		}, nil
	}
	if err := runCommand(t, cmd, ctx); err != nil {
		t.Fatalf("self-check failed: %v", err)
	}

	// Missing ip rule
	cmd = CreateSelfCheckCommand()
	cmd.checkRules = func(c *outlet.Catalog) ([]networking.OutletRules, error) {
		return []networking.OutletRules{{Group: "A", Outlet: "移动", Mark: 0x2}}, nil
	}
	if err := runCommand(t, cmd, ctx); err == nil {
		t.Error("Expected failure for missing ip rule")
	}

	// Missing map
	table.CheckFunc = func(ctx context.Context) error {
		return errors.New("no such map")
	}
	cmd = CreateSelfCheckCommand()
	cmd.checkRules = func(c *outlet.Catalog) ([]networking.OutletRules, error) { return nil, nil }
	if err := runCommand(t, cmd, ctx); err == nil {
		t.Error("Expected failure for missing map")
	}
}

func TestService_ReloadAndShutdown(t *testing.T) {
	ctx, _, _ := newTestContext(t)

	cmd := CreateServiceCommand()
	if err := cmd.Init([]string{"--dry-run"}, ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !cmd.DryRun {
		t.Fatal("Expected --dry-run to be parsed")
	}

	sigChan := make(chan os.Signal)
	done := make(chan error, 1)
	go func() {
		done <- cmd.run(context.Background(), sigChan)
	}()

	// Invalid config keeps the previous catalog
	if err := os.WriteFile(ctx.ConfigPath, []byte("time_limits = [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sigChan <- syscall.SIGHUP

	// A third group is picked up
	updated := testTOML + `
[[outlet_groups]]
title = "C"
mask = 0xF000
outlets = [ { name = "x", value = 0x1000 } ]
`
	if err := os.WriteFile(ctx.ConfigPath, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	sigChan <- syscall.SIGHUP
	sigChan <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for shutdown")
	}

	if n := cmd.deps.Catalog().Len(); n != 3 {
		t.Errorf("Expected 3 groups after reload, got %d", n)
	}
}
