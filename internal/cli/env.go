package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	rootpkg "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/config"
	"github.com/getpup/ledger-migrator/ledger"
	"github.com/getpup/ledger-migrator/ledger/memory"
	"github.com/getpup/ledger-migrator/ledger/rpc"
	"github.com/getpup/ledger-migrator/logging"
	"github.com/getpup/ledger-migrator/metrics"
	"github.com/getpup/ledger-migrator/pkg/migrator"
	"github.com/getpup/ledger-migrator/signer"
	"github.com/getpup/ledger-migrator/store"
	memstore "github.com/getpup/ledger-migrator/store/memory"
	"github.com/getpup/ledger-migrator/store/sqlstore"
)

// environment is everything a command needs, built from the configuration file.
type environment struct {
	config  config.Config
	logger  *logging.SlogLogger
	program rootpkg.Address
	ledger  ledger.Ledger
	signer  *signer.Keypair
	store   store.CampaignStore
	metrics *metrics.Collector

	db     *sql.DB
	server *metrics.Server
}

// loadConfig reads the configuration file, or returns the defaults when none is given.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(opts.ConfigPath)
}

// newLogger writes structured logs to the command's stderr.
// --verbose lowers the configured level to debug.
func newLogger(cmd *cobra.Command, opts *RootOptions, cfg config.Config) (*logging.SlogLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return logging.New(cmd.ErrOrStderr(), cfg.Log.Format, level)
}

// setup builds the environment. The ledger, signer and metrics server are only
// built when withLedger is set.
func setup(ctx context.Context, cmd *cobra.Command, opts *RootOptions, withLedger bool) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logger, err := newLogger(cmd, opts, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	env := &environment{config: cfg, logger: logger}

	if err := env.openStore(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open campaign store", err)
	}

	if !withLedger {
		return env, nil
	}

	if err := env.openLedger(ctx); err != nil {
		env.close(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	if cfg.Metrics.Addr != "" {
		env.metrics = metrics.NewCollector(cfg.Metrics.Program)
		env.server = metrics.NewServer(cfg.Metrics.Addr, env.metrics)
		env.server.Start()
		logger.Info(ctx, "metrics server started", "addr", cfg.Metrics.Addr)
	}

	return env, nil
}

func (e *environment) openStore(ctx context.Context) error {
	sc := e.config.Store
	if sc.Driver == config.DriverMemory {
		e.store = memstore.New()
		return nil
	}

	dialect, err := sqlstore.ParseDialect(sc.Driver)
	if err != nil {
		return err
	}
	db, err := sqlstore.Open(dialect, sc.DSN)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	s := sqlstore.NewWithConfig(db, dialect, sqlstore.TableConfig{
		CampaignsTable: sc.CampaignsTable,
		OutcomesTable:  sc.OutcomesTable,
	})
	if sc.Migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return err
		}
	}

	e.db = db
	e.store = s
	e.logger.Debug(ctx, "campaign store ready", "driver", dialect)
	return nil
}

func (e *environment) openLedger(ctx context.Context) error {
	lc := e.config.Ledger

	if lc.Program != "" {
		program, err := address.ParseAddress(lc.Program)
		if err != nil {
			return fmt.Errorf("invalid program: %w", err)
		}
		e.program = program
	}

	if e.config.Signer.Keypair != "" {
		kp, err := signer.LoadFile(e.config.Signer.Keypair)
		if err != nil {
			return err
		}
		e.signer = kp
	} else {
		kp, err := signer.Generate()
		if err != nil {
			return err
		}
		e.signer = kp
		e.logger.Info(ctx, "using an ephemeral signer", "publicKey", kp.PublicKey().String())
	}

	switch lc.Engine {
	case config.EngineRPC:
		l, err := rpc.New(rpc.Config{
			Endpoint:     lc.Endpoint,
			Program:      e.program,
			HTTPClient:   &http.Client{Timeout: lc.Timeout},
			Commitment:   lc.Commitment,
			PollInterval: lc.PollInterval,
			Logger:       e.logger,
		})
		if err != nil {
			return err
		}
		e.ledger = l
		return nil

	case config.EngineMemory:
		l := memory.New(memory.Config{
			Program:       e.program,
			RetainSources: lc.RetainSources,
		})
		if lc.Fixtures != "" {
			if err := seedFixtures(l, lc.Fixtures); err != nil {
				return err
			}
		}
		e.ledger = l
		return nil

	default:
		return fmt.Errorf("unknown ledger engine %q", lc.Engine)
	}
}

func seedFixtures(l *memory.Ledger, path string) error {
	fixtures, err := config.LoadFixtures(path)
	if err != nil {
		return err
	}
	for i, fx := range fixtures {
		owner, key, err := fx.Keys()
		if err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
		if _, err := l.Put(rootpkg.NamespaceTag(fx.Generation), owner, key, rootpkg.Payload(fx.Payload)); err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
	}
	return nil
}

// migrator builds the facade over the environment. concurrency overrides the
// configured value when positive.
func (e *environment) migrator(concurrency int) (*migrator.Migrator, error) {
	cc := e.config.Campaign
	if concurrency <= 0 {
		concurrency = cc.Concurrency
	}

	opts := []migrator.Option{
		migrator.WithLedger(e.ledger),
		migrator.WithProgram(e.program),
		migrator.WithSigner(e.signer),
		migrator.WithStore(e.store),
		migrator.WithConcurrency(concurrency),
		migrator.WithPageSize(cc.PageSize),
		migrator.WithMaxAttempts(cc.MaxAttempts),
		migrator.WithAttemptTimeout(cc.AttemptTimeout),
		migrator.WithRetryDelay(cc.RetryDelay),
		migrator.WithListRetry(cc.ListAttempts, cc.ListBackoff),
		migrator.WithHeartbeatInterval(cc.HeartbeatInterval),
		migrator.WithLogger(e.logger),
	}
	if e.metrics != nil {
		opts = append(opts, migrator.WithMetrics(e.metrics))
	}
	return migrator.New(opts...)
}

func (e *environment) close(ctx context.Context) {
	if e.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.logger.Error(ctx, "error stopping metrics server", "error", err)
		}
		if err := e.server.Err(); err != nil {
			e.logger.Error(ctx, "metrics server failed", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Error(ctx, "error closing database", "error", err)
		}
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *logging.SlogLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(commandContext(cmd))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if logger != nil {
				logger.Info(ctx, "received signal, cancelling campaign", "signal", sig.String())
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// campaignResult maps a finished campaign to the command's exit status.
func campaignResult(c *rootpkg.Campaign, err error) error {
	if err != nil {
		if errors.Is(err, rootpkg.ErrUnsupportedGeneration) {
			return WrapExitError(ExitCommandError, "unsupported generation", err)
		}
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "campaign cancelled", err)
		}
		return WrapExitError(ExitFailure, "campaign did not complete", err)
	}
	if failed := c.Summary().Failed; failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", failed))
	}
	return nil
}
