package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mx    sync.Mutex
	calls []string
	auth  []string
}

func (rec *recorder) record(r *http.Request) {
	rec.mx.Lock()
	defer rec.mx.Unlock()
	rec.calls = append(rec.calls, r.Method+" "+r.URL.RequestURI())
	rec.auth = append(rec.auth, r.Header.Get("Authorization"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/api/matchmaking/join", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/matchmaking/leave", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "not in queue"})
	})
	r.Post("/api/private-matches", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, model.PrivateMatch{Code: "ABC123", ExpiresInSeconds: 600})
	})
	r.Post("/api/private-matches/join", func(w http.ResponseWriter, r *http.Request) {
		var req model.PrivateCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code != "ABC123" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown code"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/private-matches/{code}", func(w http.ResponseWriter, r *http.Request) {
		guest := "u-2"
		writeJSON(w, http.StatusOK, model.PrivateLobby{HostUserID: chi.URLParam(r, "code") + "-host", GuestUserID: &guest})
	})
	r.Post("/api/game/pve", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("difficulty") == "9" {
			writeJSON(w, http.StatusOK, model.PveGame{})
			return
		}
		writeJSON(w, http.StatusOK, model.PveGame{GameID: "g-ai", PlayerID: "u-1", Difficulty: 3})
	})
	r.Get("/api/profile/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, model.Profile{UserID: "u-1", Elo: 1216, Gold: 300})
	})
	r.Get("/api/profile/{userID}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Profile{UserID: chi.URLParam(r, "userID"), Elo: 990})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()
	return New(Config{Logger: &logger, BaseURL: srv.URL + "/api", Token: "tok"}), rec
}

func TestClient_JoinMatchmaking(t *testing.T) {
	c, rec := newTestClient(t)

	require.NoError(t, c.JoinMatchmaking(context.Background()))
	assert.Equal(t, []string{"POST /api/matchmaking/join"}, rec.calls)
	assert.Equal(t, []string{"Bearer tok"}, rec.auth)
}

func TestClient_StatusError(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.LeaveMatchmaking(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Equal(t, "not in queue", statusErr.Message)
}

func TestClient_PrivateMatches(t *testing.T) {
	c, rec := newTestClient(t)
	ctx := context.Background()

	pm, err := c.CreatePrivateMatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", pm.Code)
	assert.Equal(t, 600, pm.ExpiresInSeconds)

	require.NoError(t, c.JoinPrivateMatch(ctx, "ABC123"))

	err = c.JoinPrivateMatch(ctx, "NOPE")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "unknown code", statusErr.Message)

	lobby, err := c.PrivateLobby(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123-host", lobby.HostUserID)
	assert.True(t, lobby.HasGuest())

	assert.Contains(t, rec.calls, "GET /api/private-matches/ABC123")
}

func TestClient_CreatePveGame(t *testing.T) {
	c, rec := newTestClient(t)

	game, err := c.CreatePveGame(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "g-ai", game.GameID)
	assert.Equal(t, []string{"POST /api/game/pve?difficulty=3"}, rec.calls)

	_, err = c.CreatePveGame(context.Background(), 9)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_Profiles(t *testing.T) {
	c, _ := newTestClient(t)

	me, err := c.MyProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1216, me.Elo)

	other, err := c.Profile(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Equal(t, "u-9", other.UserID)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger := zerolog.Nop()
	c := New(Config{Logger: &logger, BaseURL: url})
	err := c.JoinMatchmaking(context.Background())
	assert.ErrorIs(t, err, ErrRequest)
}
