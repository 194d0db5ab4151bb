package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/auth"
	"pennywise.app/internal/config"
	"pennywise.app/internal/httpapi"
	"pennywise.app/internal/obs"
	"pennywise.app/internal/session"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		principalStore auth.PrincipalStore
		sessionStore   session.Store
		eventStore     audit.EventStore
	)
	if db != nil {
		principalStore = auth.NewPGStore(db)
		sessionStore = session.NewPGStore(db)
		eventStore = audit.NewPGStore(db)
	} else {
		principalStore = auth.NewMemoryPrincipalStore()
		sessionStore = session.NewMemoryStore()
		eventStore = audit.NewMemoryStore()
	}

	recorder := audit.NewRecorder(eventStore)
	authn, err := auth.NewAuthenticator(principalStore, recorder, auth.WithPolicies(cfg.Policies()))
	if err != nil {
		log.Fatalf("init authenticator: %v", err)
	}
	monitor, err := session.NewManager(sessionStore, authn, recorder,
		session.WithPolicies(cfg.Policies()),
		session.WithCheckInterval(cfg.CheckInterval()),
		session.WithMaxPasswordAge(cfg.MaxPasswordAge()),
	)
	if err != nil {
		log.Fatalf("init session monitor: %v", err)
	}
	if err := monitor.Start(context.Background()); err != nil {
		log.Fatalf("start session monitor: %v", err)
	}

	api := httpapi.New(monitor, authn, recorder, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting pennywise-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	monitor.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
