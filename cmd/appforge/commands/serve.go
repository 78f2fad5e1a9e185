package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/event"
	"github.com/appforge-ai/appforge/internal/guard"
	"github.com/appforge-ai/appforge/internal/logging"
	"github.com/appforge-ai/appforge/internal/metrics"
	"github.com/appforge-ai/appforge/internal/provider"
	"github.com/appforge-ai/appforge/internal/ratelimit"
	"github.com/appforge-ai/appforge/internal/server"
	"github.com/appforge-ai/appforge/internal/session"
	"github.com/appforge-ai/appforge/internal/tool"
	"github.com/appforge-ai/appforge/internal/workspace"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AppForge API server",
	Long: `Start the agent runtime as an HTTP server.

Clients create sessions, submit prompts, and consume the per-session
event stream over SSE.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Workspace directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Pretty: true})
	log := logging.Logger
	log.Info().Str("version", Version).Str("workspace", workDir).Msg("starting appforge")

	securityGuard, err := guard.NewSecurityGuard(cfg.Security)
	if err != nil {
		return err
	}
	urlValidator := guard.NewURLValidator(cfg.AllowedDomains)
	limiter := ratelimit.New(cfg.RateLimiterConfig())

	workspaceFs := afero.NewBasePathFs(afero.NewOsFs(), workDir)
	registry := tool.NewRegistry()
	registry.Register(tool.NewReadTool(workspaceFs))
	registry.Register(tool.NewWriteTool(workspaceFs))
	registry.Register(tool.NewListTool(workspaceFs))
	registry.Register(tool.NewSearchTool(workspaceFs))
	fetcher := tool.NewFetchTool()
	fetcher.SetRedirectPolicy(func(raw string) error {
		if res := urlValidator.Validate(raw); !res.Valid {
			return errors.New(res.Message)
		}
		return nil
	})
	registry.Register(fetcher)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(log, logging.ParseLevel(cfg.LogLevel), promReg)
	bus := event.NewBus()
	defer bus.Close()

	prov, err := provider.NewOpenAIProvider(cmd.Context(), &provider.OpenAIConfig{})
	if err != nil {
		return err
	}

	orch := session.NewOrchestrator(session.OrchestratorConfig{
		MaxTurns:   cfg.MaxTurns,
		ChunkSize:  cfg.ChunkSize,
		ChunkDelay: cfg.ChunkDelay(),
	}, prov, registry, securityGuard, securityGuard, urlValidator, limiter, collector, bus, log)

	sessions := session.NewService(orch, log)
	defer sessions.Close()

	watcher, err := workspace.NewWatcher(workDir, bus, log)
	if err != nil {
		log.Warn().Err(err).Msg("workspace watcher disabled")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.Port
	srv := server.New(serverConfig, sessions, collector, promReg, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
