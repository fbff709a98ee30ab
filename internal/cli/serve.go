package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhouse/tally/internal/api"
	"github.com/tallyhouse/tally/internal/config"
	"github.com/tallyhouse/tally/internal/events"
	"github.com/tallyhouse/tally/internal/events/kafka"
	"github.com/tallyhouse/tally/internal/identity"
	"github.com/tallyhouse/tally/internal/ledger"
	"github.com/tallyhouse/tally/internal/models"
	sigbus "github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
	"github.com/tallyhouse/tally/internal/storage/memory"
	"github.com/tallyhouse/tally/internal/storage/postgres"
	"github.com/tallyhouse/tally/internal/storage/sqlite"
	"github.com/tallyhouse/tally/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger daemon",
	Long: `Start both ledger instances, sync them against the store, and serve
the HTTP API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Setup()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	who, err := operatorIdentity(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, who)
	if err != nil {
		return err
	}
	defer store.Close()

	var fallback *sqlite.Fallback
	if cfg.Store.SnapshotPath != "" {
		fallback, err = sqlite.Open(cfg.Store.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer fallback.Close()
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		kp := kafka.NewPublisher(cfg.Kafka.Brokers)
		defer kp.Close()
		publisher = kp
		slog.Info("kafka event stream enabled", "brokers", cfg.Kafka.Brokers)
	}

	bus := sigbus.NewBus()
	from := time.Now().AddDate(0, 0, -cfg.Ledgers.WindowDays)

	credits := ledger.New(ledger.Options{
		Label:         "credits",
		Kind:          models.KindCredit,
		Store:         store,
		Bus:           bus,
		Fallback:      fallback,
		Publisher:     publisher,
		RequireBranch: cfg.Ledgers.CreditsRequireBranch,
		Filter: storage.ListFilter{
			Kind:   models.KindCredit,
			From:   from,
			Branch: cfg.Ledgers.Branch,
		},
	})
	deposits := ledger.New(ledger.Options{
		Label:         "deposits",
		Kind:          models.KindDeposit,
		Store:         store,
		Bus:           bus,
		Fallback:      fallback,
		Publisher:     publisher,
		RequireBranch: cfg.Ledgers.DepositsRequireBranch,
		Filter: storage.ListFilter{
			Kind: models.KindDeposit,
			From: from,
		},
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	credits.Start(ctx)
	deposits.Start(ctx)
	defer credits.Stop()
	defer deposits.Stop()

	server := api.NewServer(credits, deposits)
	server.EnableMetrics()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr, "operator", who.DisplayName)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop:
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}
	return nil
}

// operatorIdentity resolves who is running this session. A verified token
// takes precedence; otherwise the OS user name is used.
func operatorIdentity(cfg config.Config) (storage.Identity, error) {
	if cfg.Auth.Token != "" {
		who, err := identity.FromToken(cfg.Auth.Token, cfg.Auth.Secret)
		if err != nil {
			return storage.Identity{}, fmt.Errorf("invalid operator token: %w", err)
		}
		return who, nil
	}
	name := os.Getenv("USER")
	if name == "" {
		name = "operator"
	}
	return storage.Identity{DisplayName: name}, nil
}

func openStore(cfg config.Config, who storage.Identity) (storage.LedgerStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		store, err := postgres.New(cfg.Store.DSN, who)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to store: %w", err)
		}
		if cfg.Store.Migrate {
			if err := store.MigrateSelf(); err != nil {
				store.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
		}
		return store, nil
	case "memory", "":
		return memory.New(who), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
