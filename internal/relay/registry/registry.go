// Package registry tracks live client sessions, their optional authenticated
// user, and their topic subscriptions. It is pure in-memory bookkeeping: no
// operation performs I/O, raises a domain error, or hands out a live
// collection.
package registry

import "sync"

// Registry is the single owned instance of session state. Connection
// handlers and delivery workers share one Registry by reference; all
// mutation happens under its lock.
type Registry struct {
	mu sync.RWMutex

	sessions    map[string]struct{}
	sessionUser map[string]int64
	users       map[int64]map[string]struct{}

	events        map[int64]map[string]struct{}
	campuses      map[int64]map[string]struct{}
	organizations map[int64]map[string]struct{}

	// reverse indexes so unregister removes every membership in one pass
	sessionEvents        map[string]map[int64]struct{}
	sessionCampuses      map[string]map[int64]struct{}
	sessionOrganizations map[string]map[int64]struct{}
}

func New() *Registry {
	return &Registry{
		sessions:             make(map[string]struct{}),
		sessionUser:          make(map[string]int64),
		users:                make(map[int64]map[string]struct{}),
		events:               make(map[int64]map[string]struct{}),
		campuses:             make(map[int64]map[string]struct{}),
		organizations:        make(map[int64]map[string]struct{}),
		sessionEvents:        make(map[string]map[int64]struct{}),
		sessionCampuses:      make(map[string]map[int64]struct{}),
		sessionOrganizations: make(map[string]map[int64]struct{}),
	}
}

// Register adds a session to the active set. Idempotent.
func (r *Registry) Register(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = struct{}{}
}

// RegisterUser registers the session and records the session-user link.
// A user may hold several concurrent sessions (tabs, devices); each is
// tracked independently.
func (r *Registry) RegisterUser(sessionID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = struct{}{}

	if prev, ok := r.sessionUser[sessionID]; ok && prev != userID {
		r.removeUserLink(sessionID, prev)
	}
	r.sessionUser[sessionID] = userID
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][sessionID] = struct{}{}
}

// Unregister removes the session from the active set, its user's session
// set, and every subscription index in one atomic step, so a concurrent
// routing operation either sees the fully registered session or none of it.
// No-op for a session that was never registered.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	if userID, ok := r.sessionUser[sessionID]; ok {
		r.removeUserLink(sessionID, userID)
		delete(r.sessionUser, sessionID)
	}

	for eventID := range r.sessionEvents[sessionID] {
		r.removeMembership(r.events, eventID, sessionID)
	}
	delete(r.sessionEvents, sessionID)

	for campusID := range r.sessionCampuses[sessionID] {
		r.removeMembership(r.campuses, campusID, sessionID)
	}
	delete(r.sessionCampuses, sessionID)

	for orgID := range r.sessionOrganizations[sessionID] {
		r.removeMembership(r.organizations, orgID, sessionID)
	}
	delete(r.sessionOrganizations, sessionID)
}

// SubscribeEvent records the session's interest in one event. Subscribing an
// unregistered session is permitted; connect and subscribe frames can arrive
// in either order.
func (r *Registry) SubscribeEvent(sessionID string, eventID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addMembership(r.events, r.sessionEvents, sessionID, eventID)
}

func (r *Registry) UnsubscribeEvent(sessionID string, eventID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMembership(r.events, eventID, sessionID)
	if subs := r.sessionEvents[sessionID]; subs != nil {
		delete(subs, eventID)
		if len(subs) == 0 {
			delete(r.sessionEvents, sessionID)
		}
	}
}

func (r *Registry) SubscribeCampus(sessionID string, campusID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addMembership(r.campuses, r.sessionCampuses, sessionID, campusID)
}

func (r *Registry) UnsubscribeCampus(sessionID string, campusID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMembership(r.campuses, campusID, sessionID)
	if subs := r.sessionCampuses[sessionID]; subs != nil {
		delete(subs, campusID)
		if len(subs) == 0 {
			delete(r.sessionCampuses, sessionID)
		}
	}
}

func (r *Registry) SubscribeOrganization(sessionID string, orgID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addMembership(r.organizations, r.sessionOrganizations, sessionID, orgID)
}

func (r *Registry) UnsubscribeOrganization(sessionID string, orgID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMembership(r.organizations, orgID, sessionID)
	if subs := r.sessionOrganizations[sessionID]; subs != nil {
		delete(subs, orgID)
		if len(subs) == 0 {
			delete(r.sessionOrganizations, sessionID)
		}
	}
}

// SessionsForEvent returns a copy of the session IDs subscribed to an event.
func (r *Registry) SessionsForEvent(eventID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyMembers(r.events[eventID])
}

// SessionsForCampus returns a copy of the session IDs subscribed to a campus.
func (r *Registry) SessionsForCampus(campusID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyMembers(r.campuses[campusID])
}

// SessionsForOrganization returns a copy of the session IDs subscribed to an
// organization.
func (r *Registry) SessionsForOrganization(orgID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyMembers(r.organizations[orgID])
}

// SessionsForUser returns a copy of the user's live session IDs.
func (r *Registry) SessionsForUser(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyMembers(r.users[userID])
}

// AllSessions returns a copy of every active session ID.
func (r *Registry) AllSessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyMembers(r.sessions)
}

// UserForSession reports the authenticated user behind a session, if any.
func (r *Registry) UserForSession(sessionID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.sessionUser[sessionID]
	return userID, ok
}

// ActiveSessions reports the number of sessions in the active set.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// ActiveUsers reports the number of distinct authenticated users with at
// least one live session.
func (r *Registry) ActiveUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}

func (r *Registry) addMembership(index map[int64]map[string]struct{}, reverse map[string]map[int64]struct{}, sessionID string, id int64) {
	if index[id] == nil {
		index[id] = make(map[string]struct{})
	}
	index[id][sessionID] = struct{}{}

	if reverse[sessionID] == nil {
		reverse[sessionID] = make(map[int64]struct{})
	}
	reverse[sessionID][id] = struct{}{}
}

func (r *Registry) removeMembership(index map[int64]map[string]struct{}, id int64, sessionID string) {
	members := index[id]
	if members == nil {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(index, id)
	}
}

func (r *Registry) removeUserLink(sessionID string, userID int64) {
	sessions := r.users[userID]
	if sessions == nil {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.users, userID)
	}
}

func copyMembers(members map[string]struct{}) []string {
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}
