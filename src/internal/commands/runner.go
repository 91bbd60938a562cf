package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wlt-go/wlt/src/internal/api"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/metrics"
)

// shutdownTimeout bounds how long a front-end gets to close its connections.
const shutdownTimeout = 10 * time.Second

// server is a front-end whose Start blocks until Stop is called.
type server interface {
	Addr() string
	Start() error
	Stop(ctx context.Context) error
}

// ListenerConfig tunes the restarts of one front-end.
type ListenerConfig struct {
	Name           string        // "web" or "ssh", also the metrics label
	MaxRestarts    int           // 0 = unlimited restarts
	RestartBackoff time.Duration // Initial backoff (default: 1s)
	MaxBackoff     time.Duration // Max backoff (default: 30s)
}

// Listener keeps one front-end serving. A server that fails to listen, exits
// or panics is started again with exponential backoff, so a broken SSH menu
// never takes the selection page down with it.
type Listener struct {
	cfg     ListenerConfig
	srv     server
	metrics *metrics.Metrics

	mu       sync.RWMutex
	running  bool
	serving  bool
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewListener(cfg ListenerConfig, srv server, m *metrics.Metrics) *Listener {
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Listener{cfg: cfg, srv: srv, metrics: m}
}

// Start serves in the background until ctx is cancelled or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("%s listener is already running", l.cfg.Name)
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.running = true
	l.restarts = 0
	l.lastErr = nil

	go l.loop(ctx)
	return nil
}

// Stop shuts the server down, waiting until ctx is done at most.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("%s listener: timeout waiting for stop: %w", l.cfg.Name, ctx.Err())
	}

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	return nil
}

// Status reports the listener for /health.
func (l *Listener) Status() api.ListenerStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := api.ListenerStatus{
		Name:     l.cfg.Name,
		Addr:     l.srv.Addr(),
		Serving:  l.serving,
		Restarts: l.restarts,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	return st
}

func (l *Listener) setServing(serving bool) {
	l.mu.Lock()
	l.serving = serving
	l.mu.Unlock()
	l.metrics.SetListenerUp(l.cfg.Name, serving)
}

func (l *Listener) loop(ctx context.Context) {
	defer close(l.done)
	defer l.setServing(false)

	backoff := l.cfg.RestartBackoff
	for {
		res := l.serve(ctx)
		err := res.err
		if ctx.Err() != nil {
			log.Infof("%s listener on %s stopped", l.cfg.Name, l.srv.Addr())
			return
		}
		if err == nil {
			err = fmt.Errorf("server exited")
		}

		l.mu.Lock()
		l.lastErr = err
		l.restarts++
		restarts := l.restarts
		l.mu.Unlock()
		l.metrics.ObserveListenerRestart(l.cfg.Name, res.panicked)

		if l.cfg.MaxRestarts > 0 && restarts >= l.cfg.MaxRestarts {
			log.Errorf("%s listener: max restarts (%d) reached, giving up. Last error: %v", l.cfg.Name, l.cfg.MaxRestarts, err)
			return
		}
		log.Errorf("%s listener on %s failed: %v. Restarting in %v (restart #%d)", l.cfg.Name, l.srv.Addr(), err, backoff, restarts)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > l.cfg.MaxBackoff {
			backoff = l.cfg.MaxBackoff
		}
	}
}

type serveResult struct {
	err      error
	panicked bool
}

// serve runs the server once. Cancelling ctx shuts it down and yields a nil error.
func (l *Listener) serve(ctx context.Context) serveResult {
	resCh := make(chan serveResult, 1)

	l.setServing(true)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				resCh <- serveResult{err: fmt.Errorf("panic: %v", recovered), panicked: true}
			}
		}()
		resCh <- serveResult{err: l.srv.Start()}
	}()

	select {
	case res := <-resCh:
		l.setServing(false)
		return res
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := l.srv.Stop(shutdownCtx); err != nil {
			log.Errorf("Error during %s listener shutdown: %v", l.cfg.Name, err)
		}
		<-resCh
		return serveResult{}
	}
}

// listenerSet holds the listeners of the service. /health reads it while
// the service is still starting listeners.
type listenerSet struct {
	mu    sync.Mutex
	items []*Listener
}

func (s *listenerSet) add(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, l)
}

// Listeners implements api.ListenerReporter.
func (s *listenerSet) Listeners() []api.ListenerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]api.ListenerStatus, 0, len(s.items))
	for _, l := range s.items {
		statuses = append(statuses, l.Status())
	}
	return statuses
}

func (s *listenerSet) stopAll(ctx context.Context) {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for _, l := range items {
		if err := l.Stop(ctx); err != nil {
			log.Errorf("Failed to stop: %v", err)
		}
	}
}
