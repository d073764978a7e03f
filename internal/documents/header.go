package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

// Header carries the document-level fields shared by every wire format. The
// MessageID is the bundle's externally visible peek id, not any individual
// message id.
type Header struct {
	MessageID      uuid.UUID
	DocumentType   enums.DocumentType
	SenderNumber   string
	SenderRole     enums.ActorRole
	ReceiverNumber string
	ReceiverRole   enums.ActorRole
	BusinessReason enums.BusinessReason
	CreatedAt      time.Time
	ReasonCode     string
}

// FormatTimestamp renders timestamps the way market documents expect them:
// UTC, second precision, Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
