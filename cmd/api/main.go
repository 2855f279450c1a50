package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lojinha.org/internal/audit"
	"lojinha.org/internal/auth"
	"lojinha.org/internal/catalog"
	"lojinha.org/internal/config"
	"lojinha.org/internal/httpapi"
	"lojinha.org/internal/obs"
	"lojinha.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenLifetime)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	var (
		userStore    auth.UserStore
		catalogStore catalog.Store
		auditStore   audit.Store
		ready        httpapi.ReadyProbe
		closeStore   func() error
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		userStore = auth.NewPGStore(store.DB())
		catalogStore = store
		auditStore = audit.NewPGStore(store.DB())
		ready = httpapi.ReadyProbe{DB: store.DB()}
		closeStore = store.Close
	} else {
		// in-memory fallback for local development
		userStore = auth.NewInMemoryStore()
		catalogStore = catalog.NewInMemory()
		auditStore = audit.NewInMemoryStore()
		closeStore = func() error { return nil }
	}

	recorder := audit.NewRecorder(auditStore)
	authSvc := auth.NewService(userStore, tokens)
	catalogSvc := catalog.NewService(catalogStore, recorder)

	api := httpapi.New(httpapi.Config{
		Ready:      ready,
		Version:    version,
		Auth:       authSvc,
		Catalog:    catalogSvc,
		RatePerSec: cfg.RatePerSec,
		RateBurst:  cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lojinha-api %s on %s", version, srv.Addr)

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
	_ = closeStore()
	log.Println("Stopped")
}
