package memory

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/model"
	cmodel "github.com/dupuishugo80/ranked4/client/model"
)

const (
	DefaultElo = 1200

	defaultDisplayNameLength = 8
)

var (
	ErrGameNotFound  = errors.New("game is not found")
	ErrLobbyNotFound = errors.New("private lobby is not found")
	ErrLobbyFull     = errors.New("private lobby is full")
	ErrLobbyExists   = errors.New("private lobby already exists")
)

type MemStore struct {
	mx       *sync.Mutex
	profiles map[string]*cmodel.Profile
	queue    []string
	lobbies  map[string]*model.PrivateLobby
	games    map[string]*model.Game
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:       &sync.Mutex{},
		profiles: make(map[string]*cmodel.Profile),
		lobbies:  make(map[string]*model.PrivateLobby),
		games:    make(map[string]*model.Game),
	}
}

// Profile returns the profile of userID, creating a fresh one on first use.
func (ms *MemStore) Profile(userID string) cmodel.Profile {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	return *ms.profile(userID)
}

// UpdateProfile applies fn to the profile of userID under the store lock.
func (ms *MemStore) UpdateProfile(userID string, fn func(p *cmodel.Profile)) cmodel.Profile {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	p := ms.profile(userID)
	fn(p)
	return *p
}

func (ms *MemStore) profile(userID string) *cmodel.Profile {
	p, ok := ms.profiles[userID]
	if !ok {
		name := userID
		if len(name) > defaultDisplayNameLength {
			name = name[:defaultDisplayNameLength]
		}
		p = &cmodel.Profile{
			UserID:      userID,
			DisplayName: name,
			Elo:         DefaultElo,
		}
		ms.profiles[userID] = p
	}
	return p
}

// Enqueue adds userID to the matchmaking queue, it is a no-op when the user
// is already queued.
func (ms *MemStore) Enqueue(userID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	if !slices.Contains(ms.queue, userID) {
		ms.queue = append(ms.queue, userID)
	}
}

// Dequeue removes userID from the queue and reports whether it was queued.
func (ms *MemStore) Dequeue(userID string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	idx := slices.Index(ms.queue, userID)
	if idx < 0 {
		return false
	}
	ms.queue = slices.Delete(ms.queue, idx, idx+1)
	return true
}

// PopPair takes the two longest waiting players off the queue.
func (ms *MemStore) PopPair() (string, string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	if len(ms.queue) < 2 {
		return "", "", false
	}
	a, b := ms.queue[0], ms.queue[1]
	ms.queue = slices.Delete(ms.queue, 0, 2)
	return a, b, true
}

func (ms *MemStore) CreateLobby(code, host string) (model.PrivateLobby, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	if _, ok := ms.lobbies[code]; ok {
		return model.PrivateLobby{}, ErrLobbyExists
	}
	lobby := &model.PrivateLobby{Code: code, Host: host, CreatedAt: time.Now()}
	ms.lobbies[code] = lobby
	return *lobby, nil
}

// JoinLobby seats guest in the lobby; joining again as the same guest is allowed.
func (ms *MemStore) JoinLobby(code, guest string) (model.PrivateLobby, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	lobby, ok := ms.lobbies[code]
	if !ok {
		return model.PrivateLobby{}, ErrLobbyNotFound
	}
	if lobby.Host == guest || (lobby.Guest != "" && lobby.Guest != guest) {
		return model.PrivateLobby{}, ErrLobbyFull
	}
	lobby.Guest = guest
	return *lobby, nil
}

func (ms *MemStore) Lobby(code string) (model.PrivateLobby, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	lobby, ok := ms.lobbies[code]
	if !ok {
		return model.PrivateLobby{}, ErrLobbyNotFound
	}
	return *lobby, nil
}

func (ms *MemStore) DeleteLobby(code string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	delete(ms.lobbies, code)
}

// DeleteLobbiesOf drops every lobby hosted or joined by userID.
func (ms *MemStore) DeleteLobbiesOf(userID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	for code, lobby := range ms.lobbies {
		if lobby.Host == userID || lobby.Guest == userID {
			delete(ms.lobbies, code)
		}
	}
}

func (ms *MemStore) SaveGame(g model.Game) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	ms.games[g.ID] = &g
}

func (ms *MemStore) Game(id string) (model.Game, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	g, ok := ms.games[id]
	if !ok {
		return model.Game{}, ErrGameNotFound
	}
	return *g, nil
}

// UpdateGame applies fn to the game under the store lock. Changes are kept
// only when fn returns nil.
func (ms *MemStore) UpdateGame(id string, fn func(g *model.Game) error) (model.Game, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	g, ok := ms.games[id]
	if !ok {
		return model.Game{}, ErrGameNotFound
	}
	updated := *g
	if err := fn(&updated); err != nil {
		return *g, err
	}
	*g = updated
	return updated, nil
}

// ActiveGames lists the ids of games still in progress.
func (ms *MemStore) ActiveGames() []string {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	var ids []string
	for id, g := range ms.games {
		if g.Status == cmodel.GameInProgress {
			ids = append(ids, id)
		}
	}
	return ids
}
