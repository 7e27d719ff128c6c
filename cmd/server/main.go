package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/npezzotti/go-jukebox/internal/api"
	"github.com/npezzotti/go-jukebox/internal/config"
	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/fanout"
	"github.com/npezzotti/go-jukebox/internal/jobs"
	"github.com/npezzotti/go-jukebox/internal/kv"
	"github.com/npezzotti/go-jukebox/internal/metadata"
	"github.com/npezzotti/go-jukebox/internal/ratelimit"
	"github.com/npezzotti/go-jukebox/internal/server"
	"github.com/npezzotti/go-jukebox/internal/stats"
	"github.com/redis/go-redis/v9"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	envFile        string
	addr           string
	dsn            string
	storageDriver  string
	redisAddr      string
	signingKey     string
	allowedOrigins stringSliceFlag
)

// repository is the storage surface main needs beyond the domain interface.
type repository interface {
	database.Repository
	io.Closer
}

func main() {
	flag.StringVar(&envFile, "env-file", ".env", "optional file of environment variables to load")
	flag.StringVar(&addr, "addr", "", "server address (overrides JUKEBOX_ADDR)")
	flag.StringVar(&dsn, "dsn", "", "database connection string (overrides DATABASE_URL)")
	flag.StringVar(&storageDriver, "storage", "", "storage driver, postgres or memory (overrides STORAGE_DRIVER)")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address (overrides REDIS_ADDR)")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key (overrides SIGNING_KEY)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[jukebox] ", log.LstdFlags)

	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Fatal("config:", err)
	}
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := openRepository(cfg)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	err = rdb.Ping(pingCtx).Err()
	cancelPing()
	if err != nil {
		logger.Fatal("redis ping:", err)
	}

	resolver, youtube := newResolver(logger, cfg)

	bus := fanout.NewRedisBus(rdb, logger)
	defer bus.Close()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	co := server.NewCoordinator(logger, server.CoordinatorConfig{
		Repo:        repo,
		Bus:         bus,
		Guard:       ratelimit.NewGuard(kv.NewRedisStore(rdb), repo),
		Resolver:    resolver,
		Queue:       jobs.NewRedisQueue(rdb, cfg.ProcessID),
		Stats:       statsUpdater,
		Workers:     cfg.Workers,
		Policy:      server.HostPolicy{AllowReassignment: cfg.AllowHostReassignment},
		IdleRoomTTL: cfg.IdleRoomTTL,
	})

	var search api.VideoSearcher
	if youtube != nil {
		search = youtube
	}
	srv := api.NewApp(mux, logger, co, repo, resolver, search, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := co.Run(ctx); err != nil {
			logger.Println("coordinator:", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down coordinator...")
	if err := co.Shutdown(shutDownCtx); err != nil {
		logger.Println("coordinator shutdown:", err)
	}

	logger.Println("shutdown complete")
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ServerAddr = addr
		case "dsn":
			cfg.DatabaseDSN = dsn
		case "storage":
			cfg.StorageDriver = storageDriver
		case "redis-addr":
			cfg.RedisAddr = redisAddr
		case "signing-key":
			cfg.SigningSecret = signingKey
		case "allowed-origins":
			cfg.AllowedOrigins = allowedOrigins
		}
	})
}

type nopCloser struct {
	*database.MemoryRepository
}

func (nopCloser) Close() error { return nil }

func openRepository(cfg *config.Config) (repository, error) {
	if cfg.StorageDriver == config.DriverMemory {
		return nopCloser{database.NewMemoryRepository()}, nil
	}

	pg, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := pg.Migrate(); err != nil {
		pg.Close()
		return nil, err
	}

	return pg, nil
}

// newResolver registers a provider for every platform with credentials. The
// YouTube provider is also returned for the search route, nil when missing.
func newResolver(logger *log.Logger, cfg *config.Config) (*metadata.Resolver, *metadata.YouTubeProvider) {
	resolver := metadata.NewResolver(logger, cfg.MetadataTimeout)

	var yt *metadata.YouTubeProvider
	if cfg.YouTubeAPIKey != "" {
		p, err := metadata.NewYouTubeProvider(context.Background(), cfg.YouTubeAPIKey)
		if err != nil {
			logger.Fatal("youtube:", err)
		}
		resolver.Register(database.PlatformYouTube, p)
		yt = p
	} else {
		logger.Println("YOUTUBE_API_KEY not set, youtube links will not resolve")
	}

	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		resolver.Register(database.PlatformSpotify, metadata.NewSpotifyProvider(
			context.Background(), cfg.SpotifyClientID, cfg.SpotifyClientSecret))
	} else {
		logger.Println("spotify credentials not set, spotify links will not resolve")
	}

	return resolver, yt
}
