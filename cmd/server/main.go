package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tremolo/internal/capcache"
	"tremolo/internal/database/boltstore"
	"tremolo/internal/database/sqlitestore"
	"tremolo/internal/email"
	"tremolo/internal/handlers"
	"tremolo/internal/metrics"
	"tremolo/internal/moderation"
	"tremolo/internal/notify"
	"tremolo/internal/roles"
	"tremolo/internal/routing"
	"tremolo/internal/tracing"
)

func main() {
	setupLogging()

	log.Info().Msg("Starting Tremolo moderation service")

	port := getenvDefault("PORT", "18910")
	secureCookies := os.Getenv("SECURE_COOKIES") == "true"

	dataDir := dataDirectory()

	// SQLite holds all moderation state
	sqlitePath := getenvDefault("TREMOLO_SQLITE_PATH", filepath.Join(dataDir, "moderation.db"))
	db, err := sqlitestore.Open(sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", sqlitePath).Msg("Failed to open sqlite database")
	}
	defer db.Close()
	log.Info().Str("path", sqlitePath).Msg("SQLite database opened")

	moderationStore := sqlitestore.NewModerationStore(db)
	contentStore := sqlitestore.NewContentStore(db)
	notificationStore := sqlitestore.NewNotificationStore(db)

	// BoltDB holds sessions so logins survive restarts
	boltPath := getenvDefault("TREMOLO_DB_PATH", filepath.Join(dataDir, "tremolo.db"))
	sessions, err := boltstore.Open(boltstore.Options{Path: boltPath})
	if err != nil {
		log.Fatal().Err(err).Str("path", boltPath).Msg("Failed to open session database")
	}
	defer sessions.Close()
	sessionStore := sessions.SessionStore()
	log.Info().Str("path", boltPath).Msg("Session database opened")

	// Staff role grants from JSON config; absent config disables moderation
	roleService, err := roles.NewService(os.Getenv("MOD_ROLES_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load roles config")
	}
	if roleService.IsEnabled() {
		log.Info().Int("grants", len(roleService.ListGrants())).Msg("Role config loaded")
	} else {
		log.Warn().Msg("No role config; moderation endpoints will refuse staff operations")
	}

	// SMTP for critical admin alerts; disabled without SMTP_HOST
	smtpPort, err := strconv.Atoi(getenvDefault("SMTP_PORT", "587"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid SMTP_PORT")
	}
	emailSender := email.NewSender(email.Config{
		Host:       os.Getenv("SMTP_HOST"),
		Port:       smtpPort,
		User:       os.Getenv("SMTP_USER"),
		Pass:       os.Getenv("SMTP_PASS"),
		From:       os.Getenv("SMTP_FROM"),
		AdminEmail: os.Getenv("ADMIN_EMAIL"),
	})

	capabilityCache := capcache.New(time.Now)
	service := moderation.NewService(moderationStore, roleService, moderation.Options{
		Notifier: notify.NewDispatcher(notificationStore, time.Now),
		Alerter:  notify.NewAlerter(emailSender),
		Content:  contentStore,
		Cache:    capabilityCache,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing is best-effort: a missing collector only costs spans
	tp, err := tracing.Init(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	startCollector(ctx, moderationStore)
	startPurge(ctx, sessionStore, capabilityCache)

	h := handlers.NewHandler(service, roleService, sessionStore, handlers.Config{
		SecureCookies: secureCookies,
		PublicURL:     os.Getenv("SERVER_PUBLIC_URL"),
	})
	h.SetNotifications(notificationStore)
	h.SetCapabilityCache(capabilityCache)

	handler := routing.SetupRouter(routing.Config{
		Handlers:      h,
		Identity:      sessionStore,
		Logger:        log.Logger,
		SecureCookies: secureCookies,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("address", server.Addr).
			Bool("secure_cookies", secureCookies).
			Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog from LOG_LEVEL and LOG_FORMAT.
func setupLogging() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// JSON in production, pretty console logs in development
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

// getenvDefault returns the environment value or a default when unset.
func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// dataDirectory resolves where database files live: TREMOLO_DATA_DIR, then
// XDG data, then ~/.local/share. This avoids issues when running from
// read-only locations.
func dataDirectory() string {
	if dir := os.Getenv("TREMOLO_DATA_DIR"); dir != "" {
		return dir
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get home directory")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tremolo")
}

// startCollector feeds the Prometheus gauges from store counts.
func startCollector(ctx context.Context, store *sqlitestore.ModerationStore) {
	metrics.StartCollector(ctx, metrics.StatsSource{
		PendingReportCount: func() int {
			n, err := store.CountPendingReports(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count pending reports")
			}
			return n
		},
		PendingByPriority: func() map[int]int {
			counts, err := store.CountPendingByPriority(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count reports by priority")
			}
			return counts
		},
		ActiveRestrictionCount: func() int {
			n, err := store.CountActiveRestrictions(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count restrictions")
			}
			return n
		},
		SuspendedUserCount: func() int {
			n, err := store.CountSuspendedUsers(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count suspended users")
			}
			return n
		},
	}, time.Minute)
}

// startPurge drops expired sessions and stale capability verdicts hourly.
func startPurge(ctx context.Context, sessions *boltstore.SessionStore, capabilities *capcache.Cache) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				capabilities.Purge()
				purged, err := sessions.PurgeExpired(ctx, time.Now())
				if err != nil {
					log.Warn().Err(err).Msg("Session purge failed")
					continue
				}
				if purged > 0 {
					log.Info().Int("purged", purged).Msg("Expired sessions purged")
				}
			}
		}
	}()
}
