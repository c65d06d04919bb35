package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/api"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/config"
	"github.com/alecgard/okrtracker/internal/health"
	"github.com/alecgard/okrtracker/internal/mail"
	"github.com/alecgard/okrtracker/internal/metrics"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/alecgard/okrtracker/internal/ratelimit"
	"github.com/alecgard/okrtracker/internal/summary"
	"github.com/alecgard/okrtracker/internal/team"
	"github.com/alecgard/okrtracker/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (OKR_JWT_SECRET) is required to serve")
	}
	setupLogger(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (int32, int32, int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	})

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	userStore := user.NewStore(pool)
	userService := user.NewService(userStore, tokens)

	teamStore := team.NewStore(pool)
	mailer := mail.NewSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	teamService := team.NewService(teamStore, userService, mailer, team.Options{
		InvitationTTL: cfg.Invitations.TTL(),
		AcceptURL:     cfg.Invitations.AcceptURL,
	})

	okrStore := okr.NewStore(pool)
	okrService := okr.NewService(okrStore)
	okrService.ObserveHealth(func(s health.Status) { m.ObserveHealth(s.String()) })

	var summarizer summary.Summarizer
	if len(cfg.Summarizer.Command) > 0 {
		summarizer = summary.NewCommandSummarizer(cfg.Summarizer.Command, cfg.Summarizer.Timeout)
		slog.Info("external summarizer enabled", "command", cfg.Summarizer.Command[0])
	}
	summaryService := summary.NewService(summarizer, m.ObserveSummary)

	activityStore := activity.NewStore(pool)
	collector := activity.NewCollector(activityStore, cfg.Activity.BatchSize, cfg.Activity.FlushInterval, m.ObserveActivityFlush)
	go collector.Start(ctx)

	loginLimiter := ratelimit.New(cfg.RateLimit.Login, cfg.RateLimit.Window)
	apiLimiter := ratelimit.New(cfg.RateLimit.API, cfg.RateLimit.Window)
	go sweepLimiters(ctx, cfg.RateLimit.Window, loginLimiter, apiLimiter)

	router := api.NewRouter(api.RouterDeps{
		Accounts:       userService,
		Teams:          teamService,
		OKR:            okrService,
		Summaries:      summaryService,
		Activity:       activityStore,
		Recorder:       collector,
		Tokens:         tokens,
		Identities:     userStore,
		Memberships:    teamStore,
		Owners:         okrStore,
		LoginLimiter:   loginLimiter,
		APILimiter:     apiLimiter,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Debug:          cfg.Server.Debug,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		slog.Info("shutting down")
	case err := <-errCh:
		slog.Error("server error", "error", err)
		collector.Stop()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	// Requests are drained, so the final flush sees every recorded entry.
	collector.Stop()
	return err
}

// sweepLimiters drops idle rate-limit buckets once per window.
func sweepLimiters(ctx context.Context, window time.Duration, limiters ...*ratelimit.Limiter) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				if l.Enabled() {
					l.Sweep(window)
				}
			}
		}
	}
}
