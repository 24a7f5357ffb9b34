package model

import (
	"time"

	"github.com/google/uuid"
)

type Queue struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name             *string   `gorm:"size:100"`
	HostSecretHash   string    `gorm:"size:128;not null"`
	DefaultSortOrder string    `gorm:"size:16;not null"`
	CreatedAt        time.Time `gorm:"not null"`
	ExpiresAt        time.Time `gorm:"index;not null"`
}

type Message struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	QueueID    uuid.UUID `gorm:"type:uuid;index;not null"`
	Text       string    `gorm:"type:text;not null"`
	AuthorName string    `gorm:"size:100;not null"`
	AuthorID   uuid.UUID `gorm:"type:uuid;not null"`
	VoteCount  int       `gorm:"not null"`
	IsRead     bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// Vote is one ledger row. The composite key makes a second vote by the same
// user on the same message impossible.
type Vote struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

type HandRaise struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	QueueID     uuid.UUID  `gorm:"type:uuid;index;not null;uniqueIndex:idx_hand_raises_active,where:completed = false"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_hand_raises_active,where:completed = false"`
	UserName    string     `gorm:"size:100;not null"`
	RaisedAt    time.Time  `gorm:"index;not null"`
	Completed   bool       `gorm:"not null"`
	CompletedAt *time.Time
}
