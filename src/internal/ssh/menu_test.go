package ssh

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/mocks"
	"github.com/wlt-go/wlt/src/internal/outlet"
	"github.com/wlt-go/wlt/src/internal/service"
)

var peer = netip.MustParseAddr("10.0.0.5")

func newTestModel(t *testing.T) (Model, *mocks.MockMarkTable) {
	t.Helper()

	catalog, err := outlet.NewCatalog([]*config.OutletGroupConfig{
		{
			Title: "A",
			Mask:  0xFF,
			Outlets: []*config.OutletConfig{
				{Name: "电信", Value: 0x1},
				{Name: "移动", Value: 0x2},
			},
		},
		{
			Title: "B",
			Mask:  0xF00,
			Outlets: []*config.OutletConfig{
				{Name: "默认", Value: 0x0},
				{Name: "覆盖CN路由", Value: 0x100},
			},
		},
	}, []int{1, 4, 0})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	labels, err := outlet.NewLabels(config.DefaultConfig().Labels)
	if err != nil {
		t.Fatalf("Failed to build labels: %v", err)
	}

	table := mocks.NewMockMarkTable()
	svc := service.NewOutletService(catalog, table)
	m := NewModel(context.Background(), svc, labels, peer, "laptop.lan.")
	return run(m, m.Init()), table
}

// run feeds the result of cmd back into the model until nothing is left to do.
func run(m Model, cmd tea.Cmd) Model {
	for cmd != nil {
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok {
			return m
		}
		next, nextCmd := m.Update(msg)
		m = next.(Model)
		cmd = nextCmd
	}
	return m
}

func press(m Model, key string) (Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func pressAll(m Model, keys ...string) Model {
	for _, key := range keys {
		var cmd tea.Cmd
		m, cmd = press(m, key)
		m = run(m, cmd)
	}
	return m
}

func TestMenu_InitialView(t *testing.T) {
	m, _ := newTestModel(t)

	view := m.View()
	for _, want := range []string{"10.0.0.5 (laptop.lan.)", "当前出口：默认", "开通网络", "重置网络"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "剩余时间") {
		t.Errorf("Expected no remaining time without an entry")
	}
}

func TestMenu_Open(t *testing.T) {
	m, table := newTestModel(t)

	m = pressAll(m, "1")
	if m.screen != screenOutlet || !strings.Contains(m.View(), "移动") {
		t.Fatalf("Expected outlet menu of the first group:\n%s", m.View())
	}

	// Keys outside the menu are ignored
	m = pressAll(m, "9")
	if m.screen != screenOutlet || m.group != 0 {
		t.Fatalf("Expected to stay on the first group")
	}

	m = pressAll(m, "2", "2")
	if m.screen != screenDuration || !strings.Contains(m.View(), "4小时") {
		t.Fatalf("Expected duration menu:\n%s", m.View())
	}

	m = pressAll(m, "2")
	if m.screen != screenMain || m.failed {
		t.Fatalf("Expected main menu without error, got screen %d: %s", m.screen, m.message)
	}
	if m.message != "网络已开通：出口「移动 + 覆盖CN路由」，时限「4小时」" {
		t.Errorf("Unexpected message: %q", m.message)
	}

	entry, err := table.Backing().Get(context.Background(), peer)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Mark != 0x102 || entry.Expires <= 0 || entry.Expires > 4*time.Hour {
		t.Errorf("Unexpected entry: %+v", entry)
	}

	view := m.View()
	if !strings.Contains(view, "当前出口：移动 + 覆盖CN路由") || !strings.Contains(view, "剩余时间") {
		t.Errorf("Expected refreshed status:\n%s", view)
	}
}

func TestMenu_Permanent(t *testing.T) {
	m, table := newTestModel(t)

	m = pressAll(m, "1", "1", "1", "3")
	if !strings.Contains(m.message, "永久") {
		t.Errorf("Unexpected message: %q", m.message)
	}
	entry, _ := table.Backing().Get(context.Background(), peer)
	if entry.Mark != 0x1 || entry.Expires != 0 {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if !strings.Contains(m.View(), "剩余时间：永久") {
		t.Errorf("Expected permanent remaining label:\n%s", m.View())
	}
}

func TestMenu_BackOut(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		t.Run(key, func(t *testing.T) {
			m, table := newTestModel(t)

			m = pressAll(m, "1", "1", key)
			if m.screen != screenMain || m.message != outlet.MsgCancelled || len(m.picks) != 0 {
				t.Fatalf("Expected to back out to the main menu, got screen %d", m.screen)
			}
			if table.ReplaceCalls != 0 {
				t.Errorf("Expected no write")
			}
		})
	}
}

func TestMenu_Quit(t *testing.T) {
	m, _ := newTestModel(t)

	for _, key := range []string{"q", "ctrl+c"} {
		_, cmd := press(m, key)
		if cmd == nil {
			t.Fatalf("Expected quit command for %s", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Expected QuitMsg for %s", key)
		}
	}
}

func TestMenu_Reset(t *testing.T) {
	m, table := newTestModel(t)
	if err := table.Backing().Replace(context.Background(), peer, 0, 0x101, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	m = pressAll(m, "2")
	if m.message != outlet.MsgReset || m.failed {
		t.Errorf("Unexpected message: %q", m.message)
	}
	if entry, _ := table.Backing().Get(context.Background(), peer); entry.Found {
		t.Errorf("Expected entry to be removed")
	}
}

func TestMenu_Failures(t *testing.T) {
	m, table := newTestModel(t)
	table.ReplaceFunc = func(ctx context.Context, addr netip.Addr, old, mark uint32, ttl time.Duration) error {
		return errors.NewTableError(errors.TableErrFailed, "boom", nil)
	}
	table.DeleteFunc = func(ctx context.Context, addr netip.Addr) error {
		return errors.NewTableError(errors.TableErrPermission, "denied", nil)
	}

	m = pressAll(m, "1", "1", "1", "1")
	if !m.failed || m.message != outlet.MsgApplyFailed {
		t.Errorf("Unexpected apply result: %q", m.message)
	}

	m = pressAll(m, "2")
	if !m.failed || m.message != outlet.MsgResetFailed {
		t.Errorf("Unexpected reset result: %q", m.message)
	}
}

func TestMenu_IgnoresKeysWhileBusy(t *testing.T) {
	m, _ := newTestModel(t)

	m, cmd := press(m, "2")
	if !m.busy || cmd == nil {
		t.Fatalf("Expected a pending reset")
	}
	m, next := press(m, "1")
	if next != nil || m.screen != screenMain {
		t.Errorf("Expected keys to be ignored while busy")
	}
	m = run(m, cmd)
	if m.busy {
		t.Errorf("Expected reset to finish")
	}
}

func TestMenuIndex(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{"1", 0},
		{"9", 8},
		{"a", 9},
		{"p", 24},
		{"r", 25},
		{"z", 33},
		{"q", -1},
		{"0", -1},
		{"ctrl+c", -1},
	}
	for _, tt := range tests {
		if got := menuIndex(tt.key); got != tt.want {
			t.Errorf("menuIndex(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestPeerAddr(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
		ok   bool
	}{
		{&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2222}, "10.0.0.5", true},
		{&net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 2222}, "2001:db8::1", true},
		{&net.UnixAddr{Name: "/tmp/sock", Net: "unix"}, "", false},
	}
	for _, tt := range tests {
		got, ok := peerAddr(tt.addr)
		if ok != tt.ok || (ok && got.String() != tt.want) {
			t.Errorf("peerAddr(%v) = %s, %v; want %s, %v", tt.addr, got, ok, tt.want, tt.ok)
		}
	}
}
