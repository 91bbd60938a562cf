package commands

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wlt-go/wlt/src/internal/metrics"
)

// fakeServer fails its first starts, then blocks until stopped.
type fakeServer struct {
	failures int
	panics   bool

	mu      sync.Mutex
	starts  int
	stops   int
	stopped chan struct{}
}

func newFakeServer(failures int, panics bool) *fakeServer {
	return &fakeServer{failures: failures, panics: panics, stopped: make(chan struct{})}
}

func (s *fakeServer) Addr() string { return "127.0.0.1:8080" }

func (s *fakeServer) Start() error {
	s.mu.Lock()
	s.starts++
	n := s.starts
	s.mu.Unlock()

	if s.panics && n == 1 {
		panic("crash")
	}
	if n <= s.failures {
		return errors.New("bind: address already in use")
	}
	<-s.stopped
	return nil
}

func (s *fakeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.stops == 1 {
		close(s.stopped)
	}
	return nil
}

func (s *fakeServer) counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func fastListener(srv server, m *metrics.Metrics, maxRestarts int) *Listener {
	return NewListener(ListenerConfig{
		Name:           "test",
		MaxRestarts:    maxRestarts,
		RestartBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, srv, m)
}

func TestListener_RestartsOnError(t *testing.T) {
	m := metrics.NewMetrics()
	srv := newFakeServer(2, false)
	l := fastListener(srv, m, 0)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "third start", func() bool {
		starts, _ := srv.counts()
		return starts == 3
	})

	st := l.Status()
	if !st.Serving || st.Restarts != 2 {
		t.Errorf("Expected serving after 2 restarts, got %+v", st)
	}
	if !strings.Contains(st.LastError, "address already in use") {
		t.Errorf("Expected last error to be kept, got %q", st.LastError)
	}
	body := scrapeMetrics(t, m)
	for _, want := range []string{
		`wlt_listener_restarts_total{listener="test",reason="error"} 2`,
		`wlt_listener_up{listener="test"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, stops := srv.counts(); stops != 1 {
		t.Errorf("Expected one Stop call, got %d", stops)
	}
	if l.Status().Serving {
		t.Errorf("Expected listener not serving after Stop")
	}
	if !strings.Contains(scrapeMetrics(t, m), `wlt_listener_up{listener="test"} 0`) {
		t.Errorf("Expected listener to be reported down after Stop")
	}
}

func TestListener_RecoversPanic(t *testing.T) {
	m := metrics.NewMetrics()
	srv := newFakeServer(0, true)
	l := fastListener(srv, m, 0)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop(context.Background())

	waitFor(t, "restart after panic", func() bool {
		starts, _ := srv.counts()
		return starts == 2
	})

	st := l.Status()
	if st.Restarts != 1 || !strings.Contains(st.LastError, "crash") {
		t.Errorf("Expected one restart after the panic, got %+v", st)
	}
	if !strings.Contains(scrapeMetrics(t, m), `wlt_listener_restarts_total{listener="test",reason="panic"} 1`) {
		t.Errorf("Expected the panic to be counted")
	}
}

func TestListener_GivesUpAfterMaxRestarts(t *testing.T) {
	srv := newFakeServer(100, false)
	l := fastListener(srv, nil, 3)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "max restarts", func() bool { return l.Status().Restarts == 3 })

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if starts, _ := srv.counts(); starts != 3 {
		t.Errorf("Expected 3 starts with MaxRestarts=3, got %d", starts)
	}
	if l.Status().Serving {
		t.Errorf("Expected listener not serving after giving up")
	}
}

func TestListener_DoubleStart(t *testing.T) {
	l := fastListener(newFakeServer(0, false), nil, 0)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop(context.Background())

	if err := l.Start(context.Background()); err == nil {
		t.Errorf("Expected second Start to fail")
	}
}

func TestListener_StopsOnContextCancel(t *testing.T) {
	srv := newFakeServer(0, false)
	l := fastListener(srv, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "serving", func() bool { return l.Status().Serving })
	cancel()

	waitFor(t, "server stop", func() bool {
		_, stops := srv.counts()
		return stops == 1
	})
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if st := l.Status(); st.Restarts != 0 || st.LastError != "" {
		t.Errorf("Expected a clean stop, got %+v", st)
	}
}

func TestListenerSet(t *testing.T) {
	var set listenerSet
	web := NewListener(ListenerConfig{Name: "web"}, newFakeServer(0, false), nil)
	ssh := NewListener(ListenerConfig{Name: "ssh"}, newFakeServer(0, false), nil)
	for _, l := range []*Listener{web, ssh} {
		if err := l.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		set.add(l)
	}
	waitFor(t, "both serving", func() bool {
		return web.Status().Serving && ssh.Status().Serving
	})

	statuses := set.Listeners()
	if len(statuses) != 2 || statuses[0].Name != "web" || statuses[1].Name != "ssh" {
		t.Fatalf("Expected web and ssh statuses, got %+v", statuses)
	}
	if statuses[0].Addr != "127.0.0.1:8080" {
		t.Errorf("Expected listener address, got %q", statuses[0].Addr)
	}

	set.stopAll(context.Background())
	if len(set.Listeners()) != 0 {
		t.Errorf("Expected no listeners after stopAll")
	}
	if web.Status().Serving || ssh.Status().Serving {
		t.Errorf("Expected listeners stopped")
	}
}
