package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agilbank/concierge/internal/config"
	"github.com/agilbank/concierge/internal/logger"
	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/internal/server"
	"github.com/agilbank/concierge/pkg/agents"
	"github.com/agilbank/concierge/pkg/exchange"
	"github.com/agilbank/concierge/pkg/ledger"
	"github.com/agilbank/concierge/pkg/orchestrator"
	"github.com/agilbank/concierge/pkg/provider"
	"github.com/agilbank/concierge/pkg/sessions"
	"github.com/agilbank/concierge/pkg/tools"
	"github.com/agilbank/concierge/pkg/turnqueue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversation service",
	Long: `Run the conversation service in the foreground.
Serves the chat API, the read-only ledger tables, the trace event stream
and Prometheus metrics until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	validator := config.NewValidator()
	if errs := validator.ValidateConfig(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	log := appLogger.GetZerolog()
	log.Info().Str("version", version).Msg("Starting concierge")

	if cfg.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.AuditFile); err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer observability.GetAuditLogger().Close()
	}

	store, err := ledger.New(cfg.Ledger.Dir)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	var watcher *ledger.Watcher
	if cfg.Ledger.Watch {
		watcher, err = ledger.NewWatcher(store, log)
		if err != nil {
			return fmt.Errorf("failed to start ledger watcher: %w", err)
		}
	}

	fetcher := exchange.New(exchange.Config{
		PrimaryURL:   cfg.Exchange.PrimaryURL,
		SecondaryURL: cfg.Exchange.SecondaryURL,
		BitcoinURL:   cfg.Exchange.BitcoinURL,
		Timeout:      cfg.Exchange.Timeout(),
		Logger:       log,
	})

	registry, err := tools.NewBankingRegistry(tools.Deps{
		Store:  store,
		Quotes: fetcher,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	broadcaster := server.NewBroadcaster(log)

	orch, err := orchestrator.New(orchestrator.Options{
		Graph:  agents.DefaultGraph(),
		Tools:  registry,
		Sink:   broadcaster,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	queue := turnqueue.New()

	sessionRegistry := sessions.NewRegistry(cfg.Sessions.TTL(), log)
	sweeper, err := sessions.NewSweeper(sessionRegistry, cfg.Sessions.SweepSchedule, log)
	if err != nil {
		return fmt.Errorf("failed to build session sweeper: %w", err)
	}
	sweeper.OnEvict = func(ids []string) {
		for _, id := range ids {
			queue.DropLane(id)
		}
	}
	sweeper.Start()

	factory := provider.NewFactory(provider.Credentials{
		OpenAIKey:    cfg.Engines.OpenAIKey,
		AnthropicKey: cfg.Engines.AnthropicKey,
	})

	srv, err := server.New(server.Config{
		Server:      cfg.Server,
		Engines:     cfg.Engines,
		Registry:    sessionRegistry,
		Orch:        orch,
		Queue:       queue,
		Factory:     factory,
		Store:       store,
		Broadcaster: broadcaster,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	engineNames := []string{}
	for _, info := range factory.Available() {
		engineNames = append(engineNames, info.Name)
	}
	log.Info().
		Str("ledger_dir", store.Dir()).
		Str("default_engine", cfg.Engines.Default).
		Strs("available_engines", engineNames).
		Msg("Concierge is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	sweeper.Stop()
	queue.Shutdown()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Ledger watcher stop error")
		}
	}

	log.Info().Msg("Concierge stopped")
	return nil
}
