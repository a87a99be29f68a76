package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/config"
	"github.com/solumlabs/authcore/internal/httpapi"
	"github.com/solumlabs/authcore/internal/jobs"
	"github.com/solumlabs/authcore/internal/notify"
	"github.com/solumlabs/authcore/internal/obs"
	"github.com/solumlabs/authcore/internal/store/pg"
	"github.com/solumlabs/authcore/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("AUTHCORE_PG_DSN is required")
	}

	st, err := pg.Open(cfg.PGDSN, pg.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := auth.SeedRBAC(seedCtx, st); err != nil {
		cancel()
		log.Fatalf("seed rbac: %v", err)
	}
	cancel()

	issuer, err := token.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	trail := auth.NewTrail(st.Audit(ctx))
	notifier := notify.LogNotifier{}
	sessions := auth.NewRegistry(st.Sessions(ctx), trail, cfg.SessionTTL)
	csrf, err := auth.NewCsrfGuard(st.CsrfTokens(ctx), cfg.CSRFSecret, cfg.CSRFTTL)
	if err != nil {
		log.Fatalf("csrf guard: %v", err)
	}
	mfa := auth.NewMfa(st, trail, notifier)
	authn := auth.NewAuthenticator(st, issuer, sessions, csrf, mfa, trail, notifier, cfg.OTPTTL)

	api := httpapi.New(
		httpapi.ReadyProbe{DB: st.DB()},
		version,
		authn,
		sessions,
		csrf,
		mfa,
		cfg.RefreshTTL,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithCsrfTTL(cfg.CSRFTTL),
	)

	sweeper := jobs.NewSweeper(
		jobs.Sweep{Kind: "sessions", Interval: time.Hour, Run: sessions.CleanupExpired},
		jobs.Sweep{Kind: "csrf_tokens", Interval: cfg.CSRFTTL, Run: csrf.CleanupExpired},
		jobs.Sweep{Kind: "otps", Interval: 24 * time.Hour, Run: authn.CleanupExpiredOtps},
	)
	sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authcore-api %s on %s (%s)", version, srv.Addr, cfg)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = srv.Shutdown(shutdownCtx)
	api.Close()
	log.Println("Stopped")
}
