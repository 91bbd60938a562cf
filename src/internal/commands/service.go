package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wlt-go/wlt/src/internal/api"
	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/core"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/ssh"
)

func CreateServiceCommand() *ServiceCommand {
	sc := &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}

	sc.fs.BoolVar(&sc.DryRun, "dry-run", false, "Keep entries in memory instead of the kernel mark map")

	return sc
}

type ServiceCommand struct {
	fs     *flag.FlagSet
	cfg    *config.Config
	ctx    *AppContext
	DryRun bool

	// Dependencies
	deps *core.AppDependencies

	// Front-ends, each restarted on its own
	listeners listenerSet
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx); err != nil {
		return err
	} else {
		s.cfg = cfg
	}
	log.SetVerbose(s.cfg.General.Verbose)

	deps, err := newDependencies(ctx, s.cfg, s.DryRun)
	if err != nil {
		return err
	}
	s.deps = deps

	return nil
}

func (s *ServiceCommand) Run() error {
	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	return s.run(context.Background(), sigChan)
}

func (s *ServiceCommand) run(ctx context.Context, sigChan <-chan os.Signal) error {
	log.Infof("Starting wlt service...")
	if s.DryRun {
		log.Warnf("Dry run: entries are kept in memory and do not affect traffic")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.deps.Service().Check(ctx); err != nil {
		log.Errorf("Mark map check failed: %v", err)
		log.Warnf("Requests will fail until the mark map is available")
	}
	log.Infof("Loaded %s", s.deps.Catalog())

	if s.cfg.Web.Enable {
		if err := s.startWebServer(ctx); err != nil {
			log.Errorf("Failed to start web server: %v", err)
		}
	} else {
		log.Infof("Web page and JSON API are disabled")
	}

	if s.cfg.SSH.Enable {
		if err := s.startSSHServer(ctx); err != nil {
			log.Errorf("Failed to start SSH server: %v", err)
		}
	} else {
		log.Infof("SSH menu is disabled")
	}

	log.Infof("Service started successfully.")
	log.Infof("Send SIGHUP to reload outlet groups, durations and labels")

	// Run signal handling loop
	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			log.Infof("Received SIGHUP signal, reloading configuration...")
			if err := s.reload(); err != nil {
				log.Errorf("Failed to reload configuration, keeping the previous one: %v", err)
			} else {
				log.Infof("Configuration reloaded successfully")
			}

		case syscall.SIGINT, syscall.SIGTERM:
			log.Infof("Received signal %v, shutting down...", sig)
			return s.shutdown()
		}
	}
	return s.shutdown()
}

func (s *ServiceCommand) reload() error {
	cfg, err := loadAndValidateConfigOrFail(s.ctx)
	if err != nil {
		s.deps.Metrics().ObserveReload(err)
		return err
	}
	if err := s.deps.Reload(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// startWebServer starts the web page and JSON API under a listener.
func (s *ServiceCommand) startWebServer(ctx context.Context) error {
	metricsPath := ""
	if s.cfg.Metrics.Enable {
		metricsPath = s.cfg.Metrics.Path
	}

	h := api.NewHandler(s.deps.Service(), s.deps, s.deps.Resolver(), s.cfg.Web.TrustProxyHeaders,
		api.WithCORSOrigins(s.cfg.Web.CORSOrigins),
		api.WithListeners(&s.listeners),
	)
	router := api.NewRouter(h, s.deps.Metrics(), metricsPath)
	srv := api.NewServer(s.cfg.Web.ListenAddr(), router)

	return s.startListener(ctx, "web", srv)
}

// startSSHServer starts the SSH menu under a listener.
func (s *ServiceCommand) startSSHServer(ctx context.Context) error {
	sshCfg := s.cfg.SSH
	sshCfg.HostKeyPath = s.cfg.GetAbsHostKeyPath()

	srv, err := ssh.NewServer(sshCfg, s.deps.Service(), s.deps, s.deps.Resolver(), s.deps.Metrics())
	if err != nil {
		return err
	}

	return s.startListener(ctx, "ssh", srv)
}

func (s *ServiceCommand) startListener(ctx context.Context, name string, srv server) error {
	l := NewListener(ListenerConfig{
		Name:           name,
		MaxRestarts:    0, // Unlimited restarts
		RestartBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}, srv, s.deps.Metrics())

	if err := l.Start(ctx); err != nil {
		return err
	}
	s.listeners.add(l)
	return nil
}

// shutdown performs graceful shutdown of all components.
func (s *ServiceCommand) shutdown() error {
	log.Infof("Shutting down wlt service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*shutdownTimeout)
	defer cancel()

	s.listeners.stopAll(shutdownCtx)

	log.Infof("Service stopped successfully")
	return nil
}
