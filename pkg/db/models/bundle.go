package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

// Bundle groups outgoing messages that share a partition key
// (receiver number, receiver role, message category) into one delivery.
//
// Two partial unique indexes back the mailbox invariants:
//   - ux_bundles_open_partition: at most one row per partition in state
//     'open';
//   - ux_bundles_deliverable_partition: at most one row per partition in
//     state 'closed' or 'materialized'.
//
// PeekMessageID is the externally visible id returned by Peek; it
// identifies the delivery, not any individual message.
type Bundle struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReceiverNumber string                `gorm:"column:receiver_number;type:text;not null"`
	ReceiverRole   enums.ActorRole       `gorm:"column:receiver_role;type:text;not null"`
	Category       enums.MessageCategory `gorm:"column:category;type:text;not null"`
	DocumentType   enums.DocumentType    `gorm:"column:document_type;type:text;not null"`
	State          enums.BundleState     `gorm:"column:state;type:text;not null;default:open"`
	PeekMessageID  uuid.UUID             `gorm:"column:peek_message_id;type:uuid;not null;uniqueIndex"`
	MessageCount   int                   `gorm:"column:message_count;not null;default:0"`
	OpenedAt       time.Time             `gorm:"column:opened_at;type:timestamptz;autoCreateTime"`
	ClosedAt       *time.Time            `gorm:"column:closed_at;type:timestamptz"`
	DocumentFormat *enums.DocumentFormat `gorm:"column:document_format;type:text"`
	StorageRef     *string               `gorm:"column:storage_ref;type:text"`
	DequeuedAt     *time.Time            `gorm:"column:dequeued_at;type:timestamptz"`
}

// TableName pins the table name regardless of GORM pluralization rules.
func (Bundle) TableName() string {
	return "bundles"
}
