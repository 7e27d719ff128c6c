package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/metadata"
	"github.com/npezzotti/go-jukebox/internal/ratelimit"
	"github.com/npezzotti/go-jukebox/internal/server"
	"github.com/npezzotti/go-jukebox/internal/types"
)

const (
	searchLimit = 10
	joinTimeout = 5 * time.Second
)

type CreateSpaceRequest struct {
	Name string `json:"name"`
}

// CreateStreamRequest is the body of POST /api/streams. CreatorId is accepted
// for compatibility but the space's stored host is authoritative.
type CreateStreamRequest struct {
	CreatorId string `json:"creatorId"`
	Url       string `json:"url"`
	SpaceId   string `json:"spaceId"`
}

type TokensResponse struct {
	Tokens int `json:"tokens"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// lookupError turns a repository error into a 404 or a 500.
func lookupError(err error) *ApiError {
	if errors.Is(err, database.ErrNotFound) {
		return NewNotFoundError()
	}
	return NewInternalServerError(err)
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *App) createSpace(w http.ResponseWriter, r *http.Request) {
	var req CreateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sp, err := s.db.CreateSpace(r.Context(), database.CreateSpaceParams{
		Id:     sid,
		Name:   strings.TrimSpace(req.Name),
		HostId: userId,
	})
	if err != nil {
		s.log.Printf("create space: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.FromSpace(sp))
}

// getStreams returns the full state of a space as seen by the caller.
// Clients use it to resynchronise after missed events.
func (s *App) getStreams(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	spaceId := r.URL.Query().Get("spaceId")
	if spaceId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sp, err := s.db.GetSpace(r.Context(), spaceId)
	if err != nil {
		errResp := lookupError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	streams, err := s.db.ListActiveStreams(r.Context(), spaceId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	state := types.SpaceState{
		Streams:   make([]types.QueuedStream, 0, len(streams)),
		HostId:    sp.HostId,
		IsCreator: sp.HostId == userId,
		SpaceName: sp.Name,
	}
	for _, st := range streams {
		state.Streams = append(state.Streams, types.QueuedStream{
			Stream:      types.FromStream(st.Stream),
			Upvotes:     st.Upvotes,
			HaveUpvoted: st.HaveUpvoted,
		})
	}

	cur, err := s.db.GetCurrentStream(r.Context(), spaceId)
	switch {
	case err == nil:
		state.ActiveStream = types.FromCurrentStream(cur)
	case !errors.Is(err, database.ErrNotFound):
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

// createStream adds a stream outside the realtime path. Limits come from the
// durable records and missing metadata falls back to placeholders.
func (s *App) createStream(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.SpaceId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(req.Url) == "" {
		errResp := NewInvalidInputError("YouTube link cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ref, err := metadata.Parse(req.Url)
	if err != nil {
		errResp := NewInvalidInputError("Invalid URL format")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sp, err := s.db.GetSpace(r.Context(), req.SpaceId)
	if err != nil {
		errResp := lookupError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// creatorId is client supplied; only the stored host skips the throttle
	isHost := userId == sp.HostId
	if err := s.throttle.Check(r.Context(), req.SpaceId, userId, ref.Id, isHost); err != nil {
		var denied *ratelimit.DeniedError
		if errors.As(err, &denied) {
			errResp := NewTooManyRequestsError(denied.Reason)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	desc, err := s.resolver.Resolve(r.Context(), req.Url)
	if err != nil {
		s.log.Printf("resolve %q, using placeholder: %v", req.Url, err)
		desc = metadata.Placeholder(ref, req.Url)
	}

	st, err := s.db.CreateStream(r.Context(), database.CreateStreamParams{
		SpaceId:     req.SpaceId,
		UserId:      sp.HostId,
		AddedBy:     userId,
		Url:         req.Url,
		ExtractedId: desc.ExtractedId,
		Type:        desc.Type,
		Platform:    desc.Platform,
		Title:       desc.Title,
		SmallImg:    desc.SmallImg,
		BigImg:      desc.BigImg,
	})
	if err != nil {
		s.log.Printf("create stream: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.co.PublishNewStream(r.Context(), st)

	s.writeJson(w, http.StatusOK, types.NewStream{Stream: types.FromStream(st)})
}

func (s *App) getTokens(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeJson(w, http.StatusOK, TokensResponse{})
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, TokensResponse{Tokens: user.Tokens})
}

func (s *App) getTransactions(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	txs, err := s.db.ListTransactions(r.Context(), userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		res = append(res, types.FromTransaction(tx))
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *App) searchYouTube(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		errResp := NewServiceUnavailableError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	results, err := s.search.Search(r.Context(), q, searchLimit)
	if err != nil {
		s.log.Printf("youtube search: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, results)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	spaceId := r.URL.Query().Get("spaceId")
	if spaceId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetSpace(r.Context(), spaceId); err != nil {
		errResp := lookupError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	token := sessionToken(r.Context())
	client := server.NewClient(conn, s.co, s.log, userId, token)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := s.co.Join(ctx, spaceId, userId, client, token, r.URL.Query().Get("creatorId")); err != nil {
		s.log.Printf("join space %q: %v", spaceId, err)
		s.co.Leave(client)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "join failed"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
