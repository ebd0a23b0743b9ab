package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentwall/agentwall/internal/audit"
	"github.com/agentwall/agentwall/internal/chain"
	"github.com/agentwall/agentwall/internal/config"
	"github.com/agentwall/agentwall/internal/dashboard"
	"github.com/agentwall/agentwall/internal/egress"
	"github.com/agentwall/agentwall/internal/injection"
	"github.com/agentwall/agentwall/internal/killswitch"
	"github.com/agentwall/agentwall/internal/policy"
	"github.com/agentwall/agentwall/internal/proxy"
	"github.com/agentwall/agentwall/internal/scanner"
)

// newRunCmd is the command that actually spawns and intercepts a tool
// server, grounded on the teacher's cmd/oktsec/commands/proxy.go: a child
// command line after "--", a shared collaborator set built once up front,
// and a signal.NotifyContext-driven graceful shutdown.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Spawn a tool server and proxy its stdio through the security pipeline",
		Example: `  agentwall run -- npx @modelcontextprotocol/server-filesystem /data
  agentwall --config strict.yaml run -- python tool_server.py`,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

			auditStore, err := audit.NewStore(cfg.AuditStoreConfig())
			if err != nil {
				return fmt.Errorf("opening audit store: %w", err)
			}
			defer func() { _ = auditStore.Close() }()

			bus := &proxy.Bus{}

			engineCfg := proxy.Config{
				Policy: policy.NewEvaluator(cfg.PolicyConfig()),
				Audit:  auditStore,
				Events: bus,
				Logger: logger,
			}
			if cfg.ScanningEnabled() {
				engineCfg.Scanner = scanner.New(cfg.ScannerConfig())
			}
			if cfg.InjectionEnabled() {
				engineCfg.Injection = injection.New(cfg.InjectionConfig())
			}
			if cfg.EgressEnabled() {
				engineCfg.Egress = egress.New(cfg.EgressConfig())
			}
			var ks *killswitch.KillSwitch
			if cfg.KillSwitchEnabled() {
				ks = killswitch.New(cfg.KillSwitchConfig())
				defer ks.Dispose()
				engineCfg.KillSwitch = ks
			}
			if cfg.ChainEnabled() {
				engineCfg.Chain = chain.New(cfg.ChainConfig())
			}

			engine := proxy.NewEngine(engineCfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go watchForReload(ctx, engine, logger)

			var httpSrv *http.Server
			if cfg.Dashboard.Enabled {
				bridge := dashboard.NewBridge(dashboard.Config{
					Engine:     engine,
					Events:     bus,
					KillSwitch: ks,
					Audit:      auditStore,
				})
				bridge.Start(ctx)
				defer bridge.Close()

				listen := cfg.Dashboard.Listen
				if listen == "" {
					listen = "127.0.0.1:7474"
				}
				httpSrv = &http.Server{Addr: listen, Handler: dashboard.NewHTTPServer(bridge, logger).Handler()}
				go func() {
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("dashboard http server exited", "error", err)
					}
				}()
				defer httpSrv.Close()

				printBanner(cfg, listen)
			} else {
				printBanner(cfg, "")
			}

			runner := proxy.NewRunner(engine, os.Stdin, os.Stdout, logger)
			return runner.Run(ctx, args[0], args[1:])
		},
	}

	return cmd
}

// watchForReload installs the SIGHUP handler that reloads the policy YAML
// and applies it to the running engine, grounded on the teacher's
// proxy/server.go key-reload handler — generalized from reloading signing
// keys to reloading the whole configuration (§9 "Cyclic reload").
func watchForReload(ctx context.Context, engine *proxy.Engine, logger *slog.Logger) {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			cfg, err := config.Load(cfgFile)
			if err != nil {
				logger.Error("config reload failed, keeping previous configuration", "error", err)
				continue
			}
			engine.UpdateConfig(cfg)
			logger.Info("configuration reloaded", "path", cfgFile)
		}
	}
}

func printBanner(cfg *config.Config, dashboardAddr string) {
	bold := color.New(color.Bold)
	fmt.Fprintln(os.Stderr)
	bold.Fprintln(os.Stderr, "  Agent Wall")
	fmt.Fprintln(os.Stderr, "  ────────────────────────────────────────")
	fmt.Fprintf(os.Stderr, "  Mode:            %s\n", cfg.Mode)
	fmt.Fprintf(os.Stderr, "  Default action:  %s\n", cfg.DefaultAction)
	fmt.Fprintf(os.Stderr, "  Rules loaded:    %d\n", len(cfg.Rules))
	if dashboardAddr != "" {
		fmt.Fprintf(os.Stderr, "  Dashboard:       http://%s/api/stats\n", dashboardAddr)
	}
	fmt.Fprintln(os.Stderr, "  ────────────────────────────────────────")
	fmt.Fprintln(os.Stderr, "  Press Ctrl+C to stop.")
	fmt.Fprintln(os.Stderr)
}
