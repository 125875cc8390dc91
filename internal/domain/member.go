package domain

import "time"

type Role string

const (
	RoleHost      Role = "host"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	UserID   UserID    `json:"userId"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	IsOnline bool      `json:"isOnline"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, role Role, now time.Time) Member {
	return Member{
		UserID:   user.ID,
		Username: user.Username,
		Role:     role,
		JoinedAt: now,
		IsOnline: true,
	}
}

// CanControl reports whether the member may drive playback by default.
func (m Member) CanControl() bool {
	return m.Role == RoleHost || m.Role == RoleModerator
}
