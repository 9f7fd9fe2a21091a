// Package memory holds short-lived client side state.
package memory

import (
	"sync"

	"github.com/dupuishugo80/ranked4/client/model"
)

// Reactions keeps the reaction currently displayed for each player.
type Reactions struct {
	mx *sync.Mutex
	db map[string]model.ReactionEvent
}

func NewReactions() *Reactions {
	return &Reactions{
		mx: &sync.Mutex{},
		db: make(map[string]model.ReactionEvent),
	}
}

// Hold replaces the reaction displayed for ev.PlayerID.
func (rs *Reactions) Hold(ev model.ReactionEvent) {
	rs.mx.Lock()
	defer rs.mx.Unlock()
	rs.db[ev.PlayerID] = ev
}

// ClearIf removes the reaction of playerID only if it is still the one
// sent at timestamp. It reports whether something was removed.
func (rs *Reactions) ClearIf(playerID string, timestamp int64) bool {
	rs.mx.Lock()
	defer rs.mx.Unlock()

	ev, ok := rs.db[playerID]
	if !ok || ev.Timestamp != timestamp {
		return false
	}
	delete(rs.db, playerID)
	return true
}

func (rs *Reactions) Get(playerID string) (model.ReactionEvent, bool) {
	rs.mx.Lock()
	defer rs.mx.Unlock()
	ev, ok := rs.db[playerID]
	return ev, ok
}

// All returns a copy of the displayed reactions keyed by player id.
func (rs *Reactions) All() map[string]model.ReactionEvent {
	rs.mx.Lock()
	defer rs.mx.Unlock()
	all := make(map[string]model.ReactionEvent, len(rs.db))
	for id, ev := range rs.db {
		all[id] = ev
	}
	return all
}

// Len returns the number of players with a displayed reaction.
func (rs *Reactions) Len() int {
	rs.mx.Lock()
	defer rs.mx.Unlock()
	return len(rs.db)
}

func (rs *Reactions) Reset() {
	rs.mx.Lock()
	defer rs.mx.Unlock()
	rs.db = make(map[string]model.ReactionEvent)
}
