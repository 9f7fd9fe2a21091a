package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/service"
	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultMaxBodySize      = 1 << 16
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type GameService interface {
	JoinMatchmaking(ctx context.Context, userID string) error
	LeaveMatchmaking(ctx context.Context, userID string) error
	CreatePrivateMatch(ctx context.Context, userID string) (*model.PrivateMatch, error)
	JoinPrivateMatch(ctx context.Context, userID, code string) error
	StartPrivateMatch(ctx context.Context, userID, code string) (*model.PrivateMatchStart, error)
	PrivateLobby(ctx context.Context, code string) (*model.PrivateLobby, error)
	CreatePveGame(ctx context.Context, userID string, difficulty int) (*model.PveGame, error)
	Profile(ctx context.Context, userID string) model.Profile
}

type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    GameService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	GameService GameService
	ListenAddr  string
}

type ctxKey struct{}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.GameService,
	}
	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}
	return srv
}

// Routes builds the REST router, mounted under /api.
func (srv *Server) Routes() http.Handler {
	api := chi.NewRouter()
	api.Use(srv.authenticate)
	api.Post("/matchmaking/join", srv.joinMatchmaking)
	api.Post("/matchmaking/leave", srv.leaveMatchmaking)
	api.Post("/private-matches", srv.createPrivateMatch)
	api.Post("/private-matches/join", srv.joinPrivateMatch)
	api.Post("/private-matches/start", srv.startPrivateMatch)
	api.Get("/private-matches/{code}", srv.privateLobby)
	api.Post("/game/pve", srv.createPveGame)
	api.Get("/profile/me", srv.myProfile)
	api.Get("/profile/{userID}", srv.profile)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Mount("/api", api)
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			corsPreflight(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsPreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// authenticate takes the bearer token as the user id, there is no real
// identity provider behind the dev backend.
func (srv *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := BearerToken(r.Header.Get("Authorization"))
		if userID == "" {
			srv.writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: "missing bearer token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

// BearerToken extracts the token of an Authorization header value.
func BearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func userIDFrom(r *http.Request) string {
	userID, _ := r.Context().Value(ctxKey{}).(string)
	return userID
}

func (srv *Server) joinMatchmaking(w http.ResponseWriter, r *http.Request) {
	if err := srv.svc.JoinMatchmaking(r.Context(), userIDFrom(r)); err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "queued"})
}

func (srv *Server) leaveMatchmaking(w http.ResponseWriter, r *http.Request) {
	if err := srv.svc.LeaveMatchmaking(r.Context(), userIDFrom(r)); err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "left"})
}

func (srv *Server) createPrivateMatch(w http.ResponseWriter, r *http.Request) {
	pm, err := srv.svc.CreatePrivateMatch(r.Context(), userIDFrom(r))
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, pm)
}

func (srv *Server) joinPrivateMatch(w http.ResponseWriter, r *http.Request) {
	code, ok := srv.readCode(w, r)
	if !ok {
		return
	}
	if err := srv.svc.JoinPrivateMatch(r.Context(), userIDFrom(r), code); err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "joined"})
}

func (srv *Server) startPrivateMatch(w http.ResponseWriter, r *http.Request) {
	code, ok := srv.readCode(w, r)
	if !ok {
		return
	}
	started, err := srv.svc.StartPrivateMatch(r.Context(), userIDFrom(r), code)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, started)
}

func (srv *Server) privateLobby(w http.ResponseWriter, r *http.Request) {
	lobby, err := srv.svc.PrivateLobby(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, lobby)
}

func (srv *Server) createPveGame(w http.ResponseWriter, r *http.Request) {
	difficulty, err := strconv.Atoi(r.URL.Query().Get("difficulty"))
	if err != nil {
		srv.writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "difficulty must be a number"})
		return
	}
	game, err := srv.svc.CreatePveGame(r.Context(), userIDFrom(r), difficulty)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, game)
}

func (srv *Server) myProfile(w http.ResponseWriter, r *http.Request) {
	p := srv.svc.Profile(r.Context(), userIDFrom(r))
	srv.writeJSON(w, http.StatusOK, &p)
}

func (srv *Server) profile(w http.ResponseWriter, r *http.Request) {
	p := srv.svc.Profile(r.Context(), chi.URLParam(r, "userID"))
	srv.writeJSON(w, http.StatusOK, &p)
}

func (srv *Server) readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req model.PrivateCodeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBodySize))
	if err := dec.Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		srv.writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "code is required"})
		return "", false
	}
	return req.Code, true
}

func (srv *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrInvalid):
		code = http.StatusBadRequest
	default:
		srv.logger.Error().Err(err).Msg("request failed")
	}
	srv.writeJSON(w, code, &GenericResponse{Error: err.Error()})
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
