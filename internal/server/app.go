// Package server initializes and runs the auth service: it wires the token
// store backend, the Postgres ledger and account repositories, runs the
// schema migrations, and serves the HTTP API until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ashid-platform/auth-service/internal/audit"
	"github.com/ashid-platform/auth-service/internal/identity"
	"github.com/ashid-platform/auth-service/internal/ledger"
	"github.com/ashid-platform/auth-service/internal/logging"
	"github.com/ashid-platform/auth-service/internal/server/api"
	"github.com/ashid-platform/auth-service/internal/server/config"
	"github.com/ashid-platform/auth-service/internal/server/lifecycle"
	"github.com/ashid-platform/auth-service/internal/server/migrations"
	"github.com/ashid-platform/auth-service/internal/token"
	"github.com/ashid-platform/auth-service/internal/tokenstore"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	store  tokenstore.Store
	tokens *lifecycle.Coordinator
	server *api.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := newTokenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("token store init error: %w", err)
	}

	encoder := token.NewEncoder([]byte(cfg.SecretKey), cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.JWTLeeway)
	coordinator := lifecycle.NewCoordinator(
		encoder,
		store,
		ledger.NewPostgresLedger(db),
		identity.NewPostgresVerifier(db),
		lifecycle.Options{RevokeAccessOnRotate: cfg.RevokeAccessOnRotate},
		logger,
	)

	srv := api.NewServer(cfg, logger, coordinator, audit.NewPostgresRecorder(db))

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		store:  store,
		tokens: coordinator,
		server: srv,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func newTokenStore(ctx context.Context, cfg *config.Config) (tokenstore.Store, error) {
	switch cfg.TokenStoreBackend {
	case config.BackendVault:
		return tokenstore.NewVaultStore(ctx, cfg.VaultAddr, cfg.VaultToken, cfg.VaultMount, cfg.VaultPathPrefix)
	case config.BackendRedis:
		return tokenstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
	case config.BackendS3:
		return tokenstore.NewS3Store(ctx, tokenstore.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Prefix:       cfg.S3KeyPrefix,
		})
	case config.BackendMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", cfg.TokenStoreBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runLedgerPruner deletes expired ledger entries on a fixed interval.
func (app *App) runLedgerPruner(ctx context.Context) {
	if app.config.LedgerPruneInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.LedgerPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.tokens.PruneLedger(ctx)
			if err != nil {
				app.logger.Error(ctx, "ledger prune failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "pruned expired ledger entries", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "backend", app.config.TokenStoreBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Start(ctx); err != nil {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runLedgerPruner(ctx)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "token store close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
