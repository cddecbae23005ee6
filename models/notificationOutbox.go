package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/utils"
	"gorm.io/gorm"
)

// NotificationOutboxRecord implements the transactional outbox for audit
// fan-out: the row is written inside the switch's DB transaction and
// published to Pub/Sub by the dispatcher after commit. Publish failures can
// therefore never roll back a committed switch.
type NotificationOutboxRecord struct {
	ID               int        `gorm:"primary_key" json:"id"`
	EventType        string     `gorm:"size:50;index;not null" json:"event_type"`
	StudentId        int        `gorm:"index;not null" json:"student_id"`
	LocationId       int        `gorm:"index;not null" json:"location_id"`
	ActorId          int        `gorm:"not null" json:"actor_id"`
	TransferId       string     `gorm:"size:36;index" json:"transfer_id"`
	Payload          []byte     `gorm:"type:text" json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;default:PENDING" json:"publish_status"`
	PublishAttempts  int        `gorm:"default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error,omitempty"`
	NextAttemptAt    *time.Time `json:"next_attempt_at,omitempty"`
	LockedAt         *time.Time `json:"locked_at,omitempty"`
	LockedBy         *string    `gorm:"size:36" json:"locked_by,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id,omitempty"`
	CorrelationId    string     `gorm:"size:36;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// QueueNotification writes the outbox row inside the caller's transaction.
func QueueNotification(ctx context.Context, tx *gorm.DB, eventType CommunicationEventType, studentId int, locationId int, actorId int, transferId string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := NotificationOutboxRecord{
		EventType:     string(eventType),
		StudentId:     studentId,
		LocationId:    locationId,
		ActorId:       actorId,
		TransferId:    transferId,
		Payload:       payloadJSON,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToNotificationMessage(rec NotificationOutboxRecord) config.NotificationMessage {
	return config.NotificationMessage{
		ID:            rec.ID,
		EventType:     rec.EventType,
		StudentId:     rec.StudentId,
		LocationId:    rec.LocationId,
		ActorId:       rec.ActorId,
		TransferId:    rec.TransferId,
		OccurredAt:    rec.CreatedAt,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	}
}
