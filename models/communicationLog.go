package models

import (
	"time"

	"gorm.io/gorm"
)

// CommunicationLog is the audit trail entry written alongside every switch
// and edit. Created inside the atomic unit so it commits with the switch;
// downstream fan-out happens via the notification outbox.
type CommunicationLog struct {
	ID          int                    `gorm:"primary_key" json:"id"`
	ActorId     int                    `gorm:"index;not null" json:"actor_id"`
	ActorName   string                 `gorm:"size:255" json:"actor_name"`
	EventType   CommunicationEventType `gorm:"size:50;index;not null" json:"event_type"`
	Title       string                 `gorm:"size:255;not null" json:"title"`
	Description string                 `gorm:"type:text" json:"description"`
	StudentId   int                    `gorm:"index;not null" json:"student_id"`
	LocationId  int                    `gorm:"index;not null" json:"location_id"`
	OccurredAt  time.Time              `gorm:"not null" json:"occurred_at"`
	CreatedAt   time.Time              `gorm:"autoCreateTime" json:"created_at"`
}

func CreateCommunicationLog(tx *gorm.DB, entry *CommunicationLog) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return tx.Create(entry).Error
}
