package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

// MessageEnqueuedEvent signals that a message was accepted into a bundle.
type MessageEnqueuedEvent struct {
	MessageID      uuid.UUID             `json:"messageId"`
	BundleID       uuid.UUID             `json:"bundleId"`
	ReceiverNumber string                `json:"receiverNumber"`
	ReceiverRole   enums.ActorRole       `json:"receiverRole"`
	Category       enums.MessageCategory `json:"category"`
	DocumentType   enums.DocumentType    `json:"documentType"`
	SequenceNo     int                   `json:"sequenceNo"`
}

// BundleClosedEvent is emitted when a bundle stops accepting messages.
type BundleClosedEvent struct {
	BundleID       uuid.UUID             `json:"bundleId"`
	ReceiverNumber string                `json:"receiverNumber"`
	ReceiverRole   enums.ActorRole       `json:"receiverRole"`
	Category       enums.MessageCategory `json:"category"`
	MessageCount   int                   `json:"messageCount"`
	OpenedAt       time.Time             `json:"openedAt"`
	ClosedAt       time.Time             `json:"closedAt"`
}

// BundleMaterializedEvent reports that a wire document was generated and stored.
type BundleMaterializedEvent struct {
	BundleID       uuid.UUID            `json:"bundleId"`
	PeekMessageID  uuid.UUID            `json:"peekMessageId"`
	DocumentFormat enums.DocumentFormat `json:"documentFormat"`
	StorageRef     string               `json:"storageRef"`
	SizeBytes      int                  `json:"sizeBytes"`
}

// BundleDequeuedEvent marks the final acknowledgment of a delivery.
type BundleDequeuedEvent struct {
	BundleID      uuid.UUID `json:"bundleId"`
	PeekMessageID uuid.UUID `json:"peekMessageId"`
	DequeuedAt    time.Time `json:"dequeuedAt"`
}
