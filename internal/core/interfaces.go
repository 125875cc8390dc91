package core

import "github.com/auxroom/auxroom/internal/domain"

// Frame is a marshaled payload delivered over the signal transport.
type Frame []byte

type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a user and its transport endpoint.
// This is what the registry stores and the dispatcher fans out to.
type MemberSession interface {
	User() *domain.User
	Signal() SignalConnection
}

type memberSession struct {
	user *domain.User
	conn SignalConnection
}

func NewMemberSession(user *domain.User, conn SignalConnection) MemberSession {
	return &memberSession{user: user, conn: conn}
}

func (m *memberSession) User() *domain.User       { return m.user }
func (m *memberSession) Signal() SignalConnection { return m.conn }
