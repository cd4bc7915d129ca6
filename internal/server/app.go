// Package server wires configuration, storage, the message bus and the
// transports together and runs them until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/auth"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/bus"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/config"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/httpapi"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/storage"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/telemetry"
	"github.com/nats-io/nats.go"

	gs "github.com/Fawas-Anayat/Document-Processing-System/internal/server/grpc"
)

// ServiceName identifies the server in traces and on the bus.
const ServiceName = "docchat-server"

const pingTimeout = 5 * time.Second

// OpenDB opens the pgx-backed pool and checks connectivity.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	bus     *bus.Bus
	http    *httpapi.Server
	grpc    *gs.GRPCServer
	tracing telemetry.Shutdown
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogFormat, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	tracing, err := telemetry.Init(ctx, ServiceName, c.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}

	db, err := OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, tracing: tracing}
	if err := app.wire(ctx, rm); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) wire(ctx context.Context, rm repomanager.RepositoryManager) error {
	c := app.config

	var refreshSecret []byte
	if c.RefreshSecretKey != "" {
		refreshSecret = []byte(c.RefreshSecretKey)
	}
	codec, err := auth.NewCodec([]byte(c.SecretKey), refreshSecret, c.AccessTokenTTL, c.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("token codec init error: %w", err)
	}

	hasher := services.NewBcryptHasher(c.BcryptCost)
	users, err := services.NewUserService(app.db, rm, hasher, app.logger)
	if err != nil {
		return err
	}
	sessions := services.NewSessionService(app.db, rm, users, codec, hasher, app.logger)
	authn := services.NewAuthenticator(app.db, rm, users, codec)

	store, err := storage.NewS3Store(ctx, storage.Settings{
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Region:       c.S3Region,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
		PresignTTL:   c.S3PresignTTL,
	})
	if err != nil {
		return fmt.Errorf("object storage init error: %w", err)
	}

	checks := []httpapi.Check{
		{Name: "database", Probe: app.db.PingContext},
		{Name: "object_storage", Probe: store.Ping},
	}

	// nil interfaces, not typed nil pointers, when no bus is configured
	var (
		publisher services.EventPublisher
		requester services.ChatRequester
	)
	if c.NATSURL != "" {
		b, err := bus.New(c.NATSURL, nats.Name(ServiceName), nats.MaxReconnects(-1))
		if err != nil {
			app.logger.Warn(ctx, "message bus unavailable, documents stay pending and chat is disabled", "error", err)
		} else if err := b.EnsureStream(ctx); err != nil {
			b.Close()
			app.logger.Warn(ctx, "document stream unavailable, documents stay pending and chat is disabled", "error", err)
		} else {
			app.bus = b
			publisher, requester = b, b
			checks = append(checks, httpapi.Check{Name: "bus", Probe: func(context.Context) error { return b.Ping() }})
		}
	}

	docs := services.NewDocumentService(app.db, rm, store, publisher, requester, services.DocumentSettings{
		MaxUploadSize:     c.MaxUploadSize,
		AllowedExtensions: c.AllowedExtensions,
		EmbeddingModel:    c.EmbeddingModel,
		ChunkSize:         c.ChunkSize,
		ChunkOverlap:      c.ChunkOverlap,
		LLMModel:          c.LLMModel,
		ChatTimeout:       c.ChatTimeout,
	}, app.logger)

	api, err := httpapi.New(httpapi.Deps{
		Accounts:      users,
		Sessions:      sessions,
		Authenticator: authn,
		Documents:     docs,
		Checks:        checks,
		Metrics:       httpapi.NewMetrics(),
		Logger:        app.logger,
	}, c.MaxUploadSize)
	if err != nil {
		return err
	}

	opts := httpapi.Options{
		AllowedOrigins: c.AllowedOrigins,
		RateLimit:      c.RateLimit,
		RequestTimeout: c.RequestTimeout,
	}
	if c.OTLPEndpoint != "" {
		opts.ServiceName = ServiceName
	}

	app.http = httpapi.NewServer(c.HTTPAddr, api.Routes(opts), app.logger)
	app.grpc = gs.NewGRPCServer(c.GRPCAddr, app.logger, authn)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server stopped with error", "server", name, "error", err)
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is cancelled or a signal arrives, then
// releases every resource.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.http)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	app.bus.Close()

	var errs []error
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		errs = append(errs, app.tracing(shutdownCtx))
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Warn(ctx, "shutdown incomplete", "error", err)
	}
}
