package session

import (
	"sort"
	"sync"
)

// Registry maps guild ids to sessions and hands out per-guild locks.
// Commands for the same guild are serialized by Lock; different guilds never
// contend beyond the short map critical sections.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Lock acquires the guild's lock and returns the matching unlock func.
func (r *Registry) Lock(guildID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[guildID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// GetOrCreate returns the guild's session, creating an unbound one if needed.
func (r *Registry) GetOrCreate(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := &Session{GuildID: guildID}
	r.sessions[guildID] = s
	return s
}

// Get returns the guild's session if one exists.
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Remove deletes the guild's session. The guild lock itself is kept so that
// a holder and a waiter keep agreeing on the same mutex.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, guildID)
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot copies every session under its guild lock, sorted by guild id.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		unlock := r.Lock(id)
		if s, ok := r.Get(id); ok {
			out = append(out, s.snapshot())
		}
		unlock()
	}
	return out
}
