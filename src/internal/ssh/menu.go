package ssh

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/outlet"
	"github.com/wlt-go/wlt/src/internal/service"
)

// menuKeys select menu entries in order. q is left out, it backs out of a menu.
const menuKeys = "123456789abcdefghijklmnoprstuvwxyz"

// Backend is the part of the outlet service the menu drives.
type Backend interface {
	Catalog() *outlet.Catalog
	Status(ctx context.Context, addr netip.Addr) (service.Status, error)
	ApplySelections(ctx context.Context, addr netip.Addr, values []uint32, hours int) (service.Result, error)
	Reset(ctx context.Context, addr netip.Addr) error
}

type screen int

const (
	screenMain screen = iota
	screenOutlet
	screenDuration
)

type statusMsg struct {
	status service.Status
	err    error
}

type appliedMsg struct {
	result service.Result
	err    error
}

type resetMsg struct {
	err error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Model is the state of one menu session.
type Model struct {
	ctx      context.Context
	backend  Backend
	labels   *outlet.Labels
	addr     netip.Addr
	hostname string

	screen screen
	// catalog is the snapshot a selection walk runs against.
	catalog *outlet.Catalog
	group   int
	picks   []uint32

	status    service.Status
	statusErr error
	message   string
	failed    bool
	busy      bool
}

// NewModel creates the menu for the peer at addr.
func NewModel(ctx context.Context, backend Backend, labels *outlet.Labels, addr netip.Addr, hostname string) Model {
	if hostname == "" {
		hostname = addr.String()
	}
	return Model{
		ctx:      ctx,
		backend:  backend,
		labels:   labels,
		addr:     addr,
		hostname: hostname,
		catalog:  backend.Catalog(),
	}
}

// Init loads the current status.
func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		st, err := m.backend.Status(m.ctx, m.addr)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) apply(values []uint32, hours int) tea.Cmd {
	return func() tea.Msg {
		res, err := m.backend.ApplySelections(m.ctx, m.addr, values, hours)
		return appliedMsg{result: res, err: err}
	}
}

func (m Model) reset() tea.Cmd {
	return func() tea.Msg {
		return resetMsg{err: m.backend.Reset(m.ctx, m.addr)}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status, m.statusErr = msg.status, msg.err
		return m, nil

	case appliedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err, outlet.MsgApplyFailed)
		} else {
			m.setMessage(m.labels.Opened(m.catalog, msg.result.NewMark, msg.result.TTL))
		}
		return m, m.refresh()

	case resetMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err, outlet.MsgResetFailed)
		} else {
			m.setMessage(outlet.MsgReset)
		}
		return m, m.refresh()

	case tea.KeyMsg:
		if m.busy {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}
		switch m.screen {
		case screenMain:
			return m.updateMain(msg)
		case screenOutlet:
			return m.updateOutlet(msg)
		case screenDuration:
			return m.updateDuration(msg)
		}
	}

	return m, nil
}

func (m *Model) setMessage(message string) {
	m.message, m.failed = message, false
}

// setError shows validation messages as they are and anything else as fallback.
func (m *Model) setError(err error, fallback string) {
	m.failed = true
	m.message = fallback
	var e *errors.Error
	if errors.IsValidation(err) && errors.As(err, &e) {
		m.message = e.Message
	}
}

func (m Model) back() (tea.Model, tea.Cmd) {
	m.screen = screenMain
	m.picks = nil
	m.group = 0
	m.setMessage(outlet.MsgCancelled)
	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "1":
		m.catalog = m.backend.Catalog()
		m.picks = make([]uint32, 0, m.catalog.Len())
		m.group = 0
		m.message = ""
		m.screen = screenOutlet
		if m.catalog.Len() == 0 {
			m.screen = screenDuration
		}
	case "2":
		m.busy = true
		m.message = ""
		return m, m.reset()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateOutlet(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" || key == "esc" {
		return m.back()
	}

	g, _ := m.catalog.Group(m.group)
	i := menuIndex(key)
	if i < 0 || i >= len(g.Outlets) {
		return m, nil
	}

	m.picks = append(m.picks, g.Outlets[i].Value)
	m.group++
	if m.group >= m.catalog.Len() {
		m.screen = screenDuration
	}
	return m, nil
}

func (m Model) updateDuration(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" || key == "esc" {
		return m.back()
	}

	durations := m.catalog.Durations()
	i := menuIndex(key)
	if i < 0 || i >= len(durations) {
		return m, nil
	}

	values := m.picks
	m.screen = screenMain
	m.picks = nil
	m.group = 0
	m.busy = true
	return m, m.apply(values, durations[i])
}

// menuIndex returns the entry a key selects, or -1.
func menuIndex(key string) int {
	if len(key) != 1 {
		return -1
	}
	return strings.IndexByte(menuKeys, key[0])
}

// View renders the current screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("网络出口选择"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "地址：%s", m.addr)
	if m.hostname != m.addr.String() {
		fmt.Fprintf(&b, " (%s)", m.hostname)
	}
	b.WriteString("\n")

	if m.statusErr != nil {
		b.WriteString(errorStyle.Render("读取状态失败：" + m.statusErr.Error()))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "当前出口：%s\n", m.labels.Outlets(m.catalog, m.status.Mark, m.status.Found))
		if m.status.Found {
			fmt.Fprintf(&b, "剩余时间：%s\n", m.labels.Remaining(m.status.Expires))
		}
	}
	b.WriteString("\n")

	switch m.screen {
	case screenMain:
		writeEntry(&b, "1", "开通网络")
		writeEntry(&b, "2", "重置网络")
		writeEntry(&b, "q", "退出")
	case screenOutlet:
		g, _ := m.catalog.Group(m.group)
		b.WriteString(titleStyle.Render(g.Title))
		b.WriteString("\n")
		for i, o := range g.Outlets {
			if i >= len(menuKeys) {
				break
			}
			writeEntry(&b, menuKeys[i:i+1], o.Name)
		}
		b.WriteString(helpStyle.Render("q 返回"))
		b.WriteString("\n")
	case screenDuration:
		b.WriteString(titleStyle.Render("时限"))
		b.WriteString("\n")
		for i, hours := range m.catalog.Durations() {
			if i >= len(menuKeys) {
				break
			}
			writeEntry(&b, menuKeys[i:i+1], m.labels.Duration(hours))
		}
		b.WriteString(helpStyle.Render("q 返回"))
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("请稍候..."))
		b.WriteString("\n")
	} else if m.message != "" {
		b.WriteString("\n")
		if m.failed {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeEntry(b *strings.Builder, key, label string) {
	fmt.Fprintf(b, "  %s  %s\n", keyStyle.Render(key), label)
}
