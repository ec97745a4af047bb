package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicq/clinicq/internal/config"
	"github.com/clinicq/clinicq/internal/domain/reservation"
	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
	"github.com/clinicq/clinicq/internal/domain/summary"
	"github.com/clinicq/clinicq/internal/platform/apierror"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/middleware"
	"github.com/clinicq/clinicq/internal/platform/websocket"
	"github.com/clinicq/clinicq/internal/realtime"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicq-server",
		Short: "Walk-in poly clinic queue server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the queue API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("to")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			migrator := st.migrator(migrationsDir(cfg, dir))
			fmt.Printf("Running %s migrations\n", cfg.DBDriver)

			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR/<driver>)")
	upCmd.Flags().Int("to", 0, "Stop after this version")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			statuses, err := st.migrator(migrationsDir(cfg, dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status (%s)\n", cfg.DBDriver)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				state := "pending"
				appliedAt := ""
				if s.Applied {
					state = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR/<driver>)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live queue status of one poly",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL, _ := cmd.Flags().GetString("url")
			poly, _ := cmd.Flags().GetString("poly")
			token, _ := cmd.Flags().GetString("token")
			throttle, _ := cmd.Flags().GetDuration("throttle")
			retry, _ := cmd.Flags().GetDuration("retry")
			if token == "" {
				token = os.Getenv("CLINICQ_TOKEN")
			}

			logger := newLogger(os.Getenv("ENV"))
			wsURL, err := watchURL(rawURL, token)
			if err != nil {
				return err
			}

			transport := &realtime.WSTransport{URL: wsURL, Logger: logger}
			if token != "" {
				transport.Header = http.Header{"Authorization": []string{"Bearer " + token}}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lost := make(chan error, 1)
			w, err := realtime.Watch(ctx, transport, realtime.Options{
				Poly:     poly,
				Throttle: throttle,
				Logger:   logger,
				OnDisconnect: func(err error) {
					select {
					case lost <- err:
					default:
					}
				},
				OnUpdate: func(name string, ps realtime.PolyStatus, found bool) {
					if !found {
						logger.Warn().Str("poly", name).Msg("poly not in snapshot")
						return
					}
					ev := logger.Info().Str("poly", name)
					if ps.QueueNumberAnamnesa != nil {
						ev = ev.Int("anamnesa", *ps.QueueNumberAnamnesa)
					}
					if ps.QueueNumberWithDoctor != nil {
						ev = ev.Int("with_doctor", *ps.QueueNumberWithDoctor)
					}
					ev.Msg("queue status")
				},
				OnInvalidate: func() {
					logger.Debug().Msg("queue status changed")
				},
			})
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer w.Close()

			logger.Info().Str("url", rawURL).Str("poly", poly).Msg("watching queue status")
			keepWatching(ctx, w, lost, retry, logger)
			return nil
		},
	}
	cmd.Flags().String("url", "ws://localhost:8000/api/v1/ws", "Websocket endpoint of a running server")
	cmd.Flags().String("poly", "", "Poly to follow, e.g. \"Poli Gigi\" or \"gigi\"")
	cmd.Flags().String("token", "", "Bearer token (falls back to CLINICQ_TOKEN)")
	cmd.Flags().Duration("throttle", realtime.DefaultThrottle, "Minimum spacing between change notices")
	cmd.Flags().Duration("retry", 2*time.Second, "Delay between resubscribe attempts after the connection drops")
	return cmd
}

// keepWatching blocks until ctx is done. Each report on lost resubscribes w,
// retrying every retry interval until the transport accepts it.
func keepWatching(ctx context.Context, w *realtime.Watcher, lost <-chan error, retry time.Duration, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
		}
		for {
			err := w.SetEnabled(ctx, true)
			if err == nil {
				logger.Info().Msg("resubscribed to queue status")
				break
			}
			logger.Warn().Err(err).Dur("retry_in", retry).Msg("resubscribe failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
		}
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			name, _ := cmd.Flags().GetString("name")
			roles, _ := cmd.Flags().GetString("roles")
			polyID, _ := cmd.Flags().GetInt64("poly-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			parsed, err := parseRoles(roles)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to sign tokens")
			}

			signed, claims, err := auth.IssueToken(jwtConfig(cfg, nil), subject, name, parsed, polyID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			fmt.Fprintf(os.Stderr, "expires %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("subject", "", "User id carried in the token")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("roles", auth.RoleReceptionist, "Comma-separated roles")
	cmd.Flags().Int64("poly-id", 0, "Restrict the holder to one poly (0 = all)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Database
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to connect to database")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	catalog, err := status.Load(ctx, st.statuses, cfg.StatusLabelsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load status catalog")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Auth middleware
	revocations := auth.NewTokenRevocationStore(5 * time.Minute)
	defer revocations.Close()
	jwtCfg := jwtConfig(cfg, revocations)
	if cfg.IsDev() && cfg.JWTSecret == "" {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.checker))

	// Realtime
	hub := websocket.NewHub(logger)
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// Domain services
	scheduleSvc := schedule.NewService(st.schedules, cfg.GeneralPoly)
	reservationSvc := reservation.NewService(st.reservations, catalog,
		reservation.Policy{CallLimit: cfg.CallLimit}, hub, loc, logger)
	summarySvc := summary.NewService(reservationSvc, scheduleSvc, catalog, reservationSvc.Today)

	auth.NewHandler(revocations).RegisterRoutes(apiV1)
	status.NewHandler(catalog).RegisterRoutes(apiV1)
	schedule.NewHandler(scheduleSvc).RegisterRoutes(apiV1)
	reservation.NewHandler(reservationSvc, catalog).RegisterRoutes(apiV1)
	summary.NewHandler(summarySvc).RegisterRoutes(apiV1)

	// Prime the hub so displays that connect before the first transition
	// still receive a snapshot.
	reservationSvc.Publish(ctx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config, revocations *auth.TokenRevocationStore) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:      cfg.AuthIssuer,
		SigningKey:  []byte(cfg.JWTSecret),
		Revocations: revocations,
		Skipper:     auth.IsPublicPath,
	}
}

// store bundles the repositories of whichever driver is configured.
type store struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB

	statuses     status.Repository
	schedules    schedule.Repository
	reservations reservation.Repository
	checker      db.Checker
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	switch cfg.DBDriver {
	case config.DriverMySQL:
		sqlDB, err := db.OpenMySQL(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, loc)
		if err != nil {
			return nil, err
		}
		return &store{
			sqlDB:        sqlDB,
			statuses:     status.NewRepoMySQL(sqlDB),
			schedules:    schedule.NewRepoMySQL(sqlDB),
			reservations: reservation.NewRepoMySQL(sqlDB),
			checker:      db.SQLChecker{DB: sqlDB},
		}, nil
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, loc)
		if err != nil {
			return nil, err
		}
		return &store{
			pool:         pool,
			statuses:     status.NewRepoPG(pool),
			schedules:    schedule.NewRepoPG(pool),
			reservations: reservation.NewRepoPG(pool),
			checker:      db.PGChecker{Pool: pool},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func (s *store) migrator(dir string) *db.Migrator {
	if s.sqlDB != nil {
		return db.NewMySQLMigrator(s.sqlDB, dir)
	}
	return db.NewMigrator(s.pool, dir)
}

func (s *store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
}

// migrationsDir keeps one migration set per driver under MIGRATIONS_DIR.
func migrationsDir(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(cfg.MigrationsDir, cfg.DBDriver)
}

// parseRoles splits a comma-separated role list and rejects unknown roles.
func parseRoles(raw string) ([]string, error) {
	known := map[string]bool{
		auth.RoleAdmin:        true,
		auth.RoleReceptionist: true,
		auth.RoleNurse:        true,
		auth.RoleDoctor:       true,
		auth.RoleDisplay:      true,
	}
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if !known[r] {
			return nil, fmt.Errorf("unknown role %q", r)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return roles, nil
}

// watchURL validates the websocket endpoint and, since browsers and some
// proxies drop the Authorization header on upgrade, also carries the token
// as access_token.
func watchURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
