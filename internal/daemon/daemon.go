// Package daemon implements the router process lifecycle: configuration,
// logging, metrics, link transport and the router's receive and sweep loops.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/srouter/internal/arp"
	"firestige.xyz/srouter/internal/config"
	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/link"
	logpkg "firestige.xyz/srouter/internal/log"
	"firestige.xyz/srouter/internal/metrics"
	"firestige.xyz/srouter/internal/route"
	"firestige.xyz/srouter/internal/router"
)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithTransport makes the daemon use t instead of opening the configured
// link. The daemon still closes t on Stop or a failed Start.
func WithTransport(t link.Transport) Option {
	return func(d *Daemon) { d.transport = t }
}

// WithClock replaces time.Now for the router.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) { d.now = now }
}

// Daemon manages the router process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.RouterConfig
	configPath string
	pidFile    string
	now        func() time.Time

	// Core components
	transport     link.Transport
	router        *router.Router
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{} // closed when the receive and sweep loops exit
	runErr       error
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
}

// New loads the configuration at configPath and creates a Daemon.
// An empty pidFile falls back to control.pid_file.
func New(configPath, pidFile string, opts ...Option) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d := NewWithConfig(cfg, pidFile, opts...)
	d.configPath = configPath
	return d, nil
}

// NewWithConfig creates a Daemon from an already validated configuration.
// Reload is unavailable without a config path.
func NewWithConfig(cfg *config.RouterConfig, pidFile string, opts ...Option) *Daemon {
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}
	d := &Daemon{
		config:       cfg,
		pidFile:      pidFile,
		now:          time.Now,
		done:         make(chan struct{}),
		shutdownChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Router returns the running router, or nil before Start.
func (d *Daemon) Router() *router.Router {
	return d.router
}

// Done is closed once the packet loops have exited.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Start initializes all components and launches the packet loops.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting srouter daemon",
		"hostname", d.config.Node.Hostname,
		"config", d.configPath,
		"interfaces", len(d.config.Interfaces),
		"routes", len(d.config.StaticRoutes),
	)

	// 2. Build interface and routing tables
	ifaces, err := route.NewInterfaceTable(d.config.CoreInterfaces())
	if err != nil {
		return fmt.Errorf("failed to build interface table: %w", err)
	}
	routes, err := route.NewTable(d.config.StaticRoutes)
	if err != nil {
		return fmt.Errorf("failed to build routing table: %w", err)
	}

	// 3. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 4. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 5. Open link transport
	if d.transport == nil {
		t, err := openTransport(d.config)
		if err != nil {
			d.cleanup()
			return fmt.Errorf("failed to open link: %w", err)
		}
		d.transport = t
	}

	// 6. Create router
	d.router, err = router.New(router.Config{
		ARP: arp.Config{
			EntryTimeout:  d.config.ARP.EntryTimeout,
			RetryInterval: d.config.ARP.RetryInterval,
			MaxAttempts:   d.config.ARP.MaxAttempts,
			MaxQueued:     d.config.ARP.MaxQueuedFrames,
		},
		SweepInterval: d.config.ARP.SweepInterval,
		ICMPRateLimit: d.config.ICMP.RateLimit,
		ICMPBurst:     d.config.ICMP.Burst,
		Now:           d.now,
	}, ifaces, routes, d.transport)
	if err != nil {
		d.closeTransport()
		d.cleanup()
		return fmt.Errorf("failed to create router: %w", err)
	}

	// 7. Launch receive loop and resolution sweeper
	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error { return d.receive(gctx) })
	g.Go(func() error { return d.router.Run(gctx) })
	go func() {
		d.runErr = g.Wait()
		close(d.done)
	}()

	slog.Info("daemon started successfully", "link", d.config.Link.Type)
	return nil
}

// receive feeds frames from the transport into the router until ctx is
// cancelled or the transport closes. Exhausted offline input is not an error;
// the sweeper keeps running so queued frames still resolve or expire.
func (d *Daemon) receive(ctx context.Context) error {
	for {
		frame, iface, err := d.transport.ReadFrame(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, core.ErrTransportClosed):
				return nil
			case errors.Is(err, io.EOF):
				slog.Info("link input exhausted")
				return nil
			default:
				return fmt.Errorf("link read failed: %w", err)
			}
		}
		d.router.HandleFrame(frame, iface)
	}
}

// Stop performs graceful shutdown of all daemon components. Safe to call
// more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		slog.Info("initiating graceful shutdown")

		// 1. Cancel the packet loops and unblock readers
		d.cancel()
		d.closeTransport()
		if d.router != nil {
			<-d.done
		}

		// 2. Unregister signal handler to prevent goroutine leak
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		d.cleanup()
		slog.Info("daemon stopped gracefully")
		_ = logpkg.Close()
	})
}

// closeTransport closes the link and unblocks pending reads.
func (d *Daemon) closeTransport() {
	if d.transport == nil {
		return
	}
	if err := d.transport.Close(); err != nil {
		slog.Error("error closing link", "error", err)
	}
}

// cleanup stops the metrics server and removes the PID file.
func (d *Daemon) cleanup() {
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		d.metricsServer = nil
	}
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT, TriggerShutdown,
// or a failure of the packet loops. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown requested")
			d.Stop()
			return nil

		case <-d.done:
			err := d.runErr
			if err != nil {
				slog.Error("packet loop failed", "error", err)
			}
			d.Stop()
			return err
		}
	}
}

// TriggerShutdown asks Run to stop the daemon.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Reload re-reads the configuration file.
// Hot-reloadable: log level/format/outputs.
// Cold (requires restart): interfaces, routes, arp, icmp, link, metrics.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no configuration file to reload")
	}
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	old := d.config
	if newConfig.Log != old.Log {
		if err := logpkg.Init(newConfig.Log); err != nil {
			return fmt.Errorf("failed to reinitialize logging: %w", err)
		}
		hotReloaded = append(hotReloaded, "log")
	}

	requiresRestart := []string{}
	if !sameInterfaces(old.Interfaces, newConfig.Interfaces) {
		requiresRestart = append(requiresRestart, "interfaces")
	}
	if !sameRoutes(old.StaticRoutes, newConfig.StaticRoutes) {
		requiresRestart = append(requiresRestart, "routes")
	}
	if old.ARP != newConfig.ARP {
		requiresRestart = append(requiresRestart, "arp")
	}
	if old.ICMP != newConfig.ICMP {
		requiresRestart = append(requiresRestart, "icmp")
	}
	if old.Metrics != newConfig.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	// Only the hot-reloadable part takes effect.
	d.config.Log = newConfig.Log

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

func sameInterfaces(a, b []config.InterfaceConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameRoutes(a, b []core.Route) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	srv := metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := srv.Start(d.ctx); err != nil {
		return err
	}
	d.metricsServer = srv
	return nil
}

// openTransport opens the configured link, wrapped in a tracer when
// link.trace_file is set.
func openTransport(cfg *config.RouterConfig) (link.Transport, error) {
	var (
		t   link.Transport
		err error
	)
	switch cfg.Link.Type {
	case config.LinkAFPacket:
		t, err = link.NewAFPacketTransport(link.AFPacketConfig{
			SnapLen:      cfg.Link.SnapLen,
			BufferSizeMB: cfg.Link.BufferSizeMB,
			TimeoutMs:    cfg.Link.TimeoutMs,
		}, cfg.CoreInterfaces())
	case config.LinkPcap:
		inputs := make(map[string]string, len(cfg.Link.Pcap.Inputs))
		for _, in := range cfg.Link.Pcap.Inputs {
			inputs[in.Interface] = in.File
		}
		t, err = link.NewPcapTransport(link.PcapConfig{
			Inputs:    inputs,
			OutputDir: cfg.Link.Pcap.OutputDir,
			SnapLen:   cfg.Link.SnapLen,
		}, cfg.InterfaceNames())
	default:
		err = fmt.Errorf("%w: unsupported link type %q", core.ErrConfigInvalid, cfg.Link.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Link.TraceFile == "" {
		return t, nil
	}
	traced, err := link.NewTracingTransport(t, cfg.Link.TraceFile)
	if err != nil {
		t.Close()
		return nil, err
	}
	slog.Info("tracing link frames", "file", cfg.Link.TraceFile)
	return traced, nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
