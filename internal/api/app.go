package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-jukebox/internal/config"
	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/metadata"
	"github.com/npezzotti/go-jukebox/internal/ratelimit"
	"github.com/npezzotti/go-jukebox/internal/server"
	"github.com/teris-io/shortid"
)

// VideoSearcher finds YouTube videos for the search route.
type VideoSearcher interface {
	Search(ctx context.Context, query string, limit int64) ([]metadata.SearchResult, error)
}

type App struct {
	log             *log.Logger
	db              database.Repository
	srv             *http.Server
	co              *server.Coordinator
	resolver        server.MetadataResolver
	search          VideoSearcher
	throttle        *ratelimit.StreamThrottle
	signingKey      []byte
	allowedOrigins  []string
	generateShortId func() (string, error)
}

// NewApp wires the HTTP routes onto mux. search may be nil, in which case the
// search route answers 503.
func NewApp(mux *http.ServeMux, logger *log.Logger, co *server.Coordinator, db database.Repository,
	resolver server.MetadataResolver, search VideoSearcher, cfg *config.Config) *App {
	s := &App{
		log:             logger,
		db:              db,
		co:              co,
		resolver:        resolver,
		search:          search,
		throttle:        ratelimit.NewStreamThrottle(db),
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/spaces", s.authMiddleware(s.createSpace))
	mux.Handle("GET /api/streams", s.authMiddleware(s.getStreams))
	mux.Handle("POST /api/streams", s.authMiddleware(s.createStream))
	mux.Handle("GET /api/user/tokens", s.authMiddleware(s.getTokens))
	mux.Handle("GET /api/user/transactions", s.authMiddleware(s.getTransactions))
	mux.Handle("GET /api/youtube/search", s.authMiddleware(s.searchYouTube))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(s.accessLog(h))

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
