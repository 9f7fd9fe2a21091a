package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dupuishugo80/ranked4/backend/game"
	"github.com/dupuishugo80/ranked4/backend/model"
	"github.com/dupuishugo80/ranked4/backend/service"
	store "github.com/dupuishugo80/ranked4/backend/storage/memory"
	cmodel "github.com/dupuishugo80/ranked4/client/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSwitch struct{}

func (nopSwitch) Connect(context.Context, string, model.Wire) error { return nil }
func (nopSwitch) Disconnect(string) error                           { return nil }
func (nopSwitch) Subscribe(string, string, string) error            { return nil }
func (nopSwitch) Unsubscribe(string, string) error                  { return nil }
func (nopSwitch) Publish(context.Context, string, []byte) int       { return 0 }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		Store:  store.NewMemStore(),
		Switch: nopSwitch{},
		AI:     game.NewAI(1),
		Logger: &logger,
	})
	srv := NewServer(Config{Logger: &logger, GameService: svc})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, user, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	var resp GenericResponse
	assert.Equal(t, http.StatusUnauthorized, call(t, ts, http.MethodGet, "/api/profile/me", "", "", &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestServer_Profile(t *testing.T) {
	ts := newTestServer(t)

	var p cmodel.Profile
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/profile/me", "alice", "", &p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, store.DefaultElo, p.Elo)

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/profile/bob", "alice", "", &p))
	assert.Equal(t, "bob", p.UserID)
}

func TestServer_PrivateMatchFlow(t *testing.T) {
	ts := newTestServer(t)

	var pm cmodel.PrivateMatch
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/private-matches", "host", "{}", &pm))
	require.NotEmpty(t, pm.Code)

	body := `{"code":"` + pm.Code + `"}`
	assert.Equal(t, http.StatusConflict, call(t, ts, http.MethodPost, "/api/private-matches/start", "host", body, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, ts, http.MethodPost, "/api/private-matches/join", "guest", "{}", nil))
	assert.Equal(t, http.StatusNotFound, call(t, ts, http.MethodPost, "/api/private-matches/join", "guest", `{"code":"ZZZZZZ"}`, nil))
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/private-matches/join", "guest", body, nil))

	var lobby cmodel.PrivateLobby
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/private-matches/"+pm.Code, "host", "", &lobby))
	assert.Equal(t, "host", lobby.HostUserID)
	assert.True(t, lobby.HasGuest())

	assert.Equal(t, http.StatusForbidden, call(t, ts, http.MethodPost, "/api/private-matches/start", "guest", body, nil))

	var started cmodel.PrivateMatchStart
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/private-matches/start", "host", body, &started))
	assert.NotEmpty(t, started.MatchID)
}

func TestServer_PveGame(t *testing.T) {
	ts := newTestServer(t)

	var g cmodel.PveGame
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/game/pve?difficulty=2", "alice", "{}", &g))
	assert.NotEmpty(t, g.GameID)
	assert.Equal(t, 2, g.Difficulty)

	assert.Equal(t, http.StatusBadRequest, call(t, ts, http.MethodPost, "/api/game/pve?difficulty=9", "alice", "{}", nil))
	assert.Equal(t, http.StatusBadRequest, call(t, ts, http.MethodPost, "/api/game/pve", "alice", "{}", nil))
}

func TestServer_Matchmaking(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/matchmaking/join", "alice", "{}", nil))
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/matchmaking/leave", "alice", "{}", nil))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
