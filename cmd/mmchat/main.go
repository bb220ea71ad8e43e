package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/config"
	"github.com/ageniuscoder/mmchat/chatcore/internal/relay"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage/postgres"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

type seedList []string

func (s *seedList) String() string { return strings.Join(*s, ",") }

func (s *seedList) Set(v string) error {
	if strings.Count(v, ":") < 1 {
		return fmt.Errorf("want user:password[:display name], got %q", v)
	}
	*s = append(*s, v)
	return nil
}

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exits")
	var seeds seedList
	flag.Var(&seeds, "seed", "create an account, user:password[:display name] (repeatable)")
	flag.Parse()

	//config part
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error Loading Env file: %v", err)
	}
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	//database handling
	store, err := open(cfg)
	if err != nil {
		log.Fatalf("Error loading to database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate || len(seeds) > 0 {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed %v", err)
		}
		slog.Info("Migration Completed", "driver", cfg.DBDriver)
		for _, s := range seeds {
			if err := seed(ctx, store, s); err != nil {
				log.Fatalf("Seed failed: %v", err)
			}
		}
		return
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           relay.NewServer(cfg, store, hub, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	slog.Info("relay listening", "addr", cfg.Addr, "driver", cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

func open(cfg config.Config) (*storage.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return sqlite.New(cfg.DBDsn)
	case "postgres":
		return postgres.New(cfg.DBDsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func seed(ctx context.Context, store *storage.Store, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	username, password := parts[0], parts[1]
	name := username
	if len(parts) == 3 && parts[2] != "" {
		name = parts[2]
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	id, err := store.CreateUser(ctx, username, name, hash)
	if errors.Is(err, storage.ErrConflict) {
		slog.Info("account exists", "username", username)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("account created", "username", username, "id", id)
	return nil
}
