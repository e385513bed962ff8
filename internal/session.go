package internal

import (
	"time"

	"github.com/rs/xid"
)

// Session identifies one run of contattach.
type Session struct {
	id xid.ID
}

// GenerateSession starts a session. Sessions generated by any process on
// any host get distinct IDs.
func GenerateSession() Session {
	return Session{id: xid.New()}
}

func (s Session) String() string {
	return string(s.ID())
}

// ID names the session's container: "contattach-" followed by 20 base32
// characters.
func (s Session) ID() SessionID {
	return SessionID("contattach-" + s.id.String())
}

// Started reports when the session was generated, to the second.
func (s Session) Started() time.Time {
	return s.id.Time()
}
