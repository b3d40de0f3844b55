package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"lumenid.org/internal/client"
	"lumenid.org/internal/config"
	"lumenid.org/internal/httpapi"
	"lumenid.org/internal/obs"
	"lumenid.org/internal/oidc"
	"lumenid.org/internal/session"
	"lumenid.org/internal/token"
	"lumenid.org/internal/user"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres is optional; without a DSN everything runs in memory.
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	var userStore user.Store
	if db != nil {
		userStore = user.NewPGStore(db)
	} else {
		userStore = user.NewMemoryStore()
	}
	users := user.NewService(userStore,
		user.WithLockoutPolicy(cfg.MaxFailedAttempts, cfg.FailureWindow, cfg.LockoutDuration),
	)
	if cfg.SeedUsers {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := user.Seed(ctx, users, user.DefaultSeedUsers); err != nil {
			log.Fatalf("seed: %v", err)
		}
		cancel()
	}

	signer, err := newSigner(cfg)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	clients, err := config.LoadClients(cfg.ClientsFile)
	if err != nil {
		log.Fatalf("clients: %v", err)
	}
	registry, err := client.NewInMemoryRegistry(clients)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	var corsOrigins []string
	for _, c := range clients {
		corsOrigins = append(corsOrigins, c.AllowedCORSOrigins...)
	}

	var codes oidc.CodeStore
	var sessionStore session.Store
	switch {
	case rdb != nil:
		codes = oidc.NewRedisCodeStore(rdb)
		sessionStore = session.NewRedisStore(rdb)
	case db != nil:
		codes = oidc.NewPGCodeStore(db)
		sessionStore = session.NewMemoryStore()
	default:
		codes = oidc.NewMemoryCodeStore()
		sessionStore = session.NewMemoryStore()
	}

	sessionKey := []byte(cfg.SessionKey)
	if len(sessionKey) == 0 {
		// Ephemeral key: sessions do not survive a restart.
		sessionKey = make([]byte, 32)
		if _, err := rand.Read(sessionKey); err != nil {
			log.Fatalf("session key: %v", err)
		}
		log.Print("LUMENID_SESSION_KEY not set, using an ephemeral key")
	}
	sessions, err := session.NewIssuer(sessionStore, sessionKey,
		session.WithTTL(cfg.SessionTTL),
		session.WithSecureCookies(cfg.SecureCookies),
	)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}

	provider := oidc.NewProvider(registry, codes, signer,
		oidc.WithCodeTTL(cfg.CodeTTL),
		oidc.WithIDTokenTTL(cfg.IDTokenTTL),
	)

	api := httpapi.New(provider, users, sessions, httpapi.ReadyProbe{DB: db}, version,
		httpapi.WithCORSOrigins(corsOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lumenid %s on %s (issuer %s)", version, srv.Addr, cfg.IssuerURL)

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
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func newSigner(cfg config.Config) (*token.Signer, error) {
	if cfg.SigningKeyFile == "" || cfg.SigningPubKeyFile == "" {
		log.Print("signing key files not set, generating an ephemeral key")
		return token.NewDevSigner(cfg.IssuerURL)
	}
	priv, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	pub, err := os.ReadFile(cfg.SigningPubKeyFile)
	if err != nil {
		return nil, err
	}
	return token.NewSigner(priv, pub, cfg.IssuerURL, token.WithKeyID(cfg.SigningKeyID))
}
