// Package agent implements the sflowd agent daemon entry point.
package agent

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sflowd/internal/asic"
	"sflowd/internal/metrics"
	"sflowd/internal/rpc"
	"sflowd/internal/sflow"
	"sflowd/internal/store"
	"sflowd/internal/sysinfo"
	"sflowd/internal/transport"
	"sflowd/pkg/config"
	"sflowd/pkg/logger"
)

// Run starts the sFlow agent daemon: the switch, the orchestrator, the
// control socket and the datagram flush loop.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Agent.LogLevel)

	flushInterval, err := cfg.Agent.ParseFlushInterval()
	if err != nil {
		return fmt.Errorf("parsing flush interval: %w", err)
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.Agent.DBPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	// Ensure RPC socket directory exists
	sockDir := filepath.Dir(cfg.Agent.RPCSocket)
	if err := os.MkdirAll(sockDir, 0700); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", sockDir, err)
	}

	db, err := store.New(cfg.Agent.DBPath, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	sw, err := asic.New(asic.Config{
		Ports:   cfg.Hardware.Ports,
		Capture: cfg.Hardware.Capture,
		SnapLen: cfg.Hardware.SnapLen,
	}, db, log)
	if err != nil {
		return fmt.Errorf("initializing switch: %w", err)
	}
	defer sw.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sender := transport.NewUDPSender(cfg.Agent.TOS, m, log)
	defer sender.Close()

	agent := sflow.New(sflow.Config{
		Defaults: cfg.Agent.Defaults(),
		Hardware: sw,
		Sender:   sender,
		Metrics:  m,

		ResolveDevice: sysinfo.InterfaceAddress,
	}, log)
	sw.SetSink(agent)

	opts := cfg.Agent.Options()
	if cfg.Agent.StartEnabled() {
		if _, err := agent.Enable(opts); err != nil {
			return fmt.Errorf("enabling sFlow agent: %w", err)
		}
	}
	defer agent.Disable()

	ln, err := rpc.StartServer(cfg.Agent.RPCSocket, rpc.NewService(agent, sw, opts, log), log)
	if err != nil {
		return fmt.Errorf("starting RPC server: %w", err)
	}
	defer ln.Close()

	if cfg.Agent.MetricsAddr != "" {
		metrics.Serve(cfg.Agent.MetricsAddr, reg, log)
	}

	hi := sysinfo.Host()
	log.Info().
		Str("hostname", hi.Hostname).
		Str("os", hi.OS).
		Str("kernel", hi.Kernel).
		Str("db_path", cfg.Agent.DBPath).
		Str("rpc_socket", cfg.Agent.RPCSocket).
		Strs("collectors", cfg.Agent.Collectors).
		Dur("flush_interval", flushInterval).
		Bool("capture", cfg.Hardware.Capture).
		Msg("sflowd agent started")

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	// Wait for shutdown signal, flushing datagrams meanwhile
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			agent.Tick()
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			// Cleanup: remove RPC socket
			os.Remove(cfg.Agent.RPCSocket)
			return nil
		}
	}
}
