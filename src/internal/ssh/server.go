package ssh

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/metrics"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

// LabelsProvider returns the labels currently in effect.
type LabelsProvider interface {
	Labels() *outlet.Labels
}

// HostnameResolver looks up a display name for an address.
type HostnameResolver interface {
	Hostname(ctx context.Context, addr netip.Addr) string
}

// Server wraps the Wish SSH server
type Server struct {
	srv      *ssh.Server
	addr     string
	backend  Backend
	labels   LabelsProvider
	resolver HostnameResolver
	metrics  *metrics.Metrics
}

// NewServer creates a new SSH server. The host key is generated at
// cfg.HostKeyPath when it does not exist yet.
func NewServer(cfg config.SSHConfig, backend Backend, labels LabelsProvider, resolver HostnameResolver, m *metrics.Metrics) (*Server, error) {
	addr := cfg.ListenAddr()

	s := &Server{
		addr:     addr,
		backend:  backend,
		labels:   labels,
		resolver: resolver,
		metrics:  m,
	}

	if dir := filepath.Dir(cfg.HostKeyPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create host key directory: %w", err)
		}
	}

	// Without auth handlers the server accepts every client.
	ws, err := wish.NewServer(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithMiddleware(
			bm.Middleware(s.teaHandler),
			activeterm.Middleware(),
			s.measureMiddleware(),
			logging.MiddlewareWithLogger(log.WithPrefix("ssh")),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH server: %w", err)
	}

	s.srv = ws
	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start starts the SSH server. It blocks until the server is stopped.
func (s *Server) Start() error {
	log.Infof("[ssh] Starting server on %s", s.addr)

	if err := s.srv.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
		return fmt.Errorf("ssh server error: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[ssh] Shutting down server...")
	return s.srv.Shutdown(ctx)
}

func (s *Server) teaHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	addr, ok := peerAddr(sess.RemoteAddr())
	if !ok {
		log.Warnf("[ssh] Cannot determine peer address of %s", sess.RemoteAddr())
	}

	hostname := addr.String()
	if ok && s.resolver != nil {
		hostname = s.resolver.Hostname(sess.Context(), addr)
	}

	m := NewModel(sess.Context(), s.backend, s.labels.Labels(), addr, hostname)
	return m, []tea.ProgramOption{tea.WithAltScreen()}
}

func (s *Server) measureMiddleware() wish.Middleware {
	return func(sh ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			s.metrics.SSHSessionStarted()
			defer s.metrics.SSHSessionEnded()

			sh(sess)
		}
	}
}

// peerAddr returns the source address of a session.
func peerAddr(addr net.Addr) (netip.Addr, bool) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		if ip, ok := netip.AddrFromSlice(tcp.IP); ok {
			return ip.Unmap(), true
		}
		return netip.Addr{}, false
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap().WithZone(""), true
}
