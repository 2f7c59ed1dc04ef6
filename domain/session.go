package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeetcodeSession is a sealed upstream session as stored at rest.
type LeetcodeSession struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Sealed     string
	ExpiresAt  *time.Time
	IsActive   bool
	LastUsedAt time.Time
	CreatedAt  time.Time
}

func (s LeetcodeSession) Usable(now time.Time) bool {
	return s.IsActive && (s.ExpiresAt == nil || s.ExpiresAt.After(now))
}
