package internal

import "sort"

// UserRegistry counts the active sessions each user holds in one room. Only
// the 0→1 and 1→0 transitions are reported, so a user connected from several
// devices produces a single joined and a single left notification.
//
// It has no lock of its own; the owning ChatRoom serializes access.
type UserRegistry struct {
	online map[string]int
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{online: make(map[string]int)}
}

// Insert records a new session and reports whether it is the user's first.
func (r *UserRegistry) Insert(identity SessionAndUserID) bool {
	r.online[identity.UserID]++
	return r.online[identity.UserID] == 1
}

// Remove drops a session and reports whether it was the user's last. Removing
// a user that holds no session is a no-op.
func (r *UserRegistry) Remove(identity SessionAndUserID) bool {
	count, ok := r.online[identity.UserID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(r.online, identity.UserID)
		return true
	}
	r.online[identity.UserID] = count - 1
	return false
}

// Sessions returns how many sessions userID currently holds.
func (r *UserRegistry) Sessions(userID string) int {
	return r.online[userID]
}

// UniqueUserIDs lists every present user, sorted.
func (r *UserRegistry) UniqueUserIDs() []string {
	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
