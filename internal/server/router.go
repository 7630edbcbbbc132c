package server

import "sync"

// Router owns the username → session table and every delivery primitive.
// A username is bound to at most one session at a time; binding again
// evicts the previous session.
//
// Delivery is best-effort by design: frames to users with no bound session
// and frames that fail to queue are dropped silently.  Frames queued to one
// session arrive in queue order because a single writePump drains them.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newRouter() *Router {
	return &Router{sessions: make(map[string]*Session)}
}

// Bind associates username with s and returns the session it displaced, if
// any.  The caller decides what to do with the evicted session.
func (r *Router) Bind(username string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[username]
	r.sessions[username] = s
	if prev == s {
		return nil
	}
	return prev
}

// Rebind atomically moves s from the old username key to the new one.
func (r *Router) Rebind(old, newName string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[old] == s {
		delete(r.sessions, old)
	}
	r.sessions[newName] = s
}

// Unbind removes the username entry only when it still points at s, so a
// session evicted by a later login cannot unbind its replacement.  It
// reports whether an entry was removed.
func (r *Router) Unbind(username string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[username] != s {
		return false
	}
	delete(r.sessions, username)
	return true
}

// Lookup returns the bound session for username, or nil.
func (r *Router) Lookup(username string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[username]
}

// Unicast delivers frame to username's session if one is bound.
func (r *Router) Unicast(username string, frame any) {
	if s := r.Lookup(username); s != nil {
		s.queueOut(frame)
	}
}

// Multicast delivers frame to every listed user that has a bound session.
func (r *Router) Multicast(usernames []string, frame any) {
	for _, u := range usernames {
		r.Unicast(u, frame)
	}
}
