package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

// OutgoingMessage is one unit of business content destined for one receiving
// actor. Rows are immutable once created; they are deleted only when their
// owning bundle is purged after dequeue.
type OutgoingMessage struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BundleID           uuid.UUID             `gorm:"column:bundle_id;type:uuid;not null;index"`
	ReceiverNumber     string                `gorm:"column:receiver_number;type:text;not null"`
	ReceiverRole       enums.ActorRole       `gorm:"column:receiver_role;type:text;not null"`
	Category           enums.MessageCategory `gorm:"column:category;type:text;not null"`
	DocumentType       enums.DocumentType    `gorm:"column:document_type;type:text;not null"`
	BusinessReason     enums.BusinessReason  `gorm:"column:business_reason;type:text;not null"`
	Payload            json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	RelatedToMessageID *uuid.UUID            `gorm:"column:related_to_message_id;type:uuid"`
	SequenceNo         int                   `gorm:"column:sequence_no;not null"`
	CreatedAt          time.Time             `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

// TableName pins the table name regardless of GORM pluralization rules.
func (OutgoingMessage) TableName() string {
	return "outgoing_messages"
}
