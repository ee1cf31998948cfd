// Package shopper models who is shopping: a registered user or an anonymous
// cart session.
package shopper

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is exactly one of a user id or a session token. Browser is the
// cookie session seen alongside a signed-in user; it never affects ownership.
type Identity struct {
	UserID     *uuid.UUID
	SessionKey string
	Browser    string
}

func ForUser(id uuid.UUID) Identity {
	return Identity{UserID: &id}
}

func ForSession(key string) Identity {
	return Identity{SessionKey: strings.TrimSpace(key)}
}

// IsZero reports an identity with neither a user nor a session.
func (i Identity) IsZero() bool {
	return (i.UserID == nil || *i.UserID == uuid.Nil) && i.SessionKey == ""
}

func (i Identity) IsUser() bool {
	return i.UserID != nil && *i.UserID != uuid.Nil
}

// Key is a stable string form used for Redis keys and log fields.
func (i Identity) Key() string {
	if i.IsUser() {
		return "user:" + i.UserID.String()
	}
	if i.SessionKey != "" {
		return "session:" + i.SessionKey
	}
	return ""
}

// PointerKeys lists every key a redirect back from the gateway can be matched by.
// A signed-in user's bearer token does not survive that redirect, so the browser
// session is included alongside the user key.
func (i Identity) PointerKeys() []string {
	var keys []string
	if k := i.Key(); k != "" {
		keys = append(keys, k)
	}
	if i.IsUser() && i.Browser != "" {
		keys = append(keys, "session:"+i.Browser)
	}
	return keys
}

// Owns reports whether a record stamped with userID/sessionKey belongs to this identity.
func (i Identity) Owns(userID *uuid.UUID, sessionKey *string) bool {
	if i.IsUser() {
		return userID != nil && *userID == *i.UserID
	}
	if i.SessionKey == "" {
		return false
	}
	return sessionKey != nil && *sessionKey == i.SessionKey
}

// SessionPtr returns the session key as a nullable column value.
func (i Identity) SessionPtr() *string {
	if i.IsUser() || i.SessionKey == "" {
		return nil
	}
	key := i.SessionKey
	return &key
}
