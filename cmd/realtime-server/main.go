// Package main provides the realtime server executable: an HTTP API over
// the publish/acknowledge engine and the security propagation services.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/adapters/consolelog"
	"github.com/coregx/realtime/adapters/lrucache"
	"github.com/coregx/realtime/adapters/memory"
	relicaadapter "github.com/coregx/realtime/adapters/relica"
	"github.com/coregx/realtime/cmd/realtime-server/internal/api"
	"github.com/coregx/realtime/cmd/realtime-server/internal/config"
	"github.com/coregx/realtime/model"
	"github.com/coregx/realtime/retry"
)

func main() {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "realtime-server",
		Short: "Realtime publish/acknowledge server",
		Long: "realtime-server exposes the realtime engine over a REST API:\n" +
			"session-targeted publications with per-message consistency levels,\n" +
			"publication acknowledgements, and security directory propagation\n" +
			"(token revocation, permission resets, session activity).",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, verbose)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath, verbose)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *consolelog.Logger {
	level := consolelog.LevelInfo
	if verbose {
		level = consolelog.LevelDebug
	}
	return consolelog.New(level)
}

func runServe(configPath string, verbose bool) error {
	logger := newLogger(verbose)
	logger.Info("starting realtime server")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Infof("listening on %s:%d, persistence=%v", cfg.Server.Host, cfg.Server.Port, cfg.PersistenceEnabled())

	// collaborators: in-process directory, user store and loopback wire
	sessions := memory.NewSessionDirectory()
	users := memory.NewUserStore()
	loopback := memory.NewLoopbackTransport()

	sessions.OnDisconnect = func(session *model.Session, reason string) {
		logger.Infof("session %s disconnected: %s", session.ID, reason)
	}

	transport, err := realtime.NewRetryTransport(loopback, retry.DefaultStrategy(), logger.Named("transport"))
	if err != nil {
		return err
	}

	revokedCache, activityCache, revocationStore, closeDB, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	var notifications realtime.NotificationService = &realtime.NoOpNotificationService{}
	if cfg.Engine.EnableNotifications {
		notifications = realtime.NewLoggingNotificationService(logger.Named("notify"))
	}

	publisher, err := realtime.NewPublisherService(
		realtime.WithPublisherTransport(transport),
		realtime.WithPublisherLogger(logger.Named("publisher")),
		realtime.WithPublicationDefaults(realtime.PublicationOptions{
			AcknowledgeTimeout: cfg.Engine.AcknowledgeTimeout,
			FanoutLimit:        cfg.Engine.FanoutLimit,
		}),
		realtime.WithPublisherNotifications(notifications),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	resetter, err := realtime.NewSessionPermissionResetter(
		realtime.WithResetterSessions(sessions),
		realtime.WithResetterUsers(users),
		realtime.WithResetterRevokedTokens(revokedCache),
		realtime.WithResetterLogger(logger.Named("resetter")),
	)
	if err != nil {
		return fmt.Errorf("failed to create permission resetter: %w", err)
	}

	queue, err := realtime.NewDataChangeQueue(
		realtime.WithQueueResetter(resetter),
		realtime.WithQueueLogger(logger.Named("queue")),
	)
	if err != nil {
		return fmt.Errorf("failed to create change queue: %w", err)
	}

	revocationOpts := []realtime.RevocationOption{
		realtime.WithRevocationCache(revokedCache),
		realtime.WithRevocationQueue(queue),
		realtime.WithRevocationLogger(logger.Named("revocation")),
		realtime.WithRevocationPolicy(realtime.RevocationPolicy{
			StatefulTTL:  cfg.Engine.RevocationStateful,
			StatelessTTL: cfg.Engine.RevocationStateless,
		}),
	}
	if revocationStore != nil {
		revocationOpts = append(revocationOpts, realtime.WithRevocationStore(revocationStore))
	}
	revocation, err := realtime.NewTokenRevocation(revocationOpts...)
	if err != nil {
		return fmt.Errorf("failed to create token revocation: %w", err)
	}

	activity, err := realtime.NewSessionActivityLog(activityCache, cfg.Engine.ActivityTTL, logger.Named("activity"))
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go queue.Run(ctx)

	if err := revocation.Activate(ctx); err != nil {
		return fmt.Errorf("failed to activate token revocation: %w", err)
	}

	handler := api.NewHandler(publisher, queue, revocation, activity, sessions, users, loopback, logger.Named("api"))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions", handler.HandleSessions)
	mux.HandleFunc("/api/v1/sessions/", handler.HandleSessionByID)
	mux.HandleFunc("/api/v1/publish", handler.HandlePublish)
	mux.HandleFunc("/api/v1/acknowledge", handler.HandleAcknowledge)
	mux.HandleFunc("/api/v1/security/changes", handler.HandleSecurityChange)
	mux.HandleFunc("/api/v1/tokens/revoke", handler.HandleRevokeToken)
	mux.HandleFunc("/api/v1/tokens/restore", handler.HandleRestoreToken)
	mux.HandleFunc("/api/v1/tokens/check", handler.HandleCheckToken)
	mux.HandleFunc("/api/v1/activity", handler.HandleActivity)
	mux.HandleFunc("/api/v1/stats", handler.HandleStats)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger.Named("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("forced shutdown: %v", err)
	}
	cancel()
	logger.Info("server stopped")
	return nil
}

// buildStores assembles the revoked-token and activity caches, persisted
// when a database is configured, memory-only otherwise.
func buildStores(cfg *config.Config, logger *consolelog.Logger) (revoked, activity realtime.Cache, store realtime.RevocationStore, closeFn func(), err error) {
	closeFn = func() {}

	revokedMemory, err := lrucache.New(cfg.Engine.CacheCapacity)
	if err != nil {
		return nil, nil, nil, closeFn, err
	}
	activityMemory, err := lrucache.New(cfg.Engine.CacheCapacity)
	if err != nil {
		return nil, nil, nil, closeFn, err
	}

	if !cfg.PersistenceEnabled() {
		return revokedMemory, activityMemory, nil, closeFn, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, nil, nil, closeFn, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, nil, closeFn, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeFn = func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warnf("failed to close database: %v", closeErr)
		}
	}

	repos := relicaadapter.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)

	persistedRevoked, err := relicaadapter.NewPersistedCache(
		revokedMemory, repos.Cache, relicaadapter.JSONDecoder[model.RevokedToken](), logger.Named("cache"))
	if err != nil {
		closeFn()
		return nil, nil, nil, func() {}, err
	}

	persistedActivity, err := relicaadapter.NewActivityCache(
		activityMemory, repos.Activity, cfg.Engine.ActivityTTL, logger.Named("activity-cache"))
	if err != nil {
		closeFn()
		return nil, nil, nil, func() {}, err
	}

	logger.Info("persistence enabled (relica adapters)")
	return persistedRevoked, persistedActivity, repos.Revocations, closeFn, nil
}

func runMigrate(configPath string, verbose bool) error {
	logger := newLogger(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.PersistenceEnabled() {
		return fmt.Errorf("no database driver configured, nothing to migrate")
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	entries, err := realtime.MigrationsFor(cfg.Database.Driver)
	if err != nil {
		return err
	}

	for _, name := range entries {
		data, err := fs.ReadFile(realtime.MigrationFiles, name)
		if err != nil {
			return err
		}
		logger.Infof("applying %s", name)
		for _, stmt := range strings.Split(string(data), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %s failed: %w", name, err)
			}
		}
	}

	logger.Info("migrations applied")
	return nil
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger realtime.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
